package services

import (
	"fmt"

	"github.com/h2non/filetype"
)

// MIME types accepted by intake. Everything else is rejected up front.
const (
	MIMEPDF  = "application/pdf"
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
)

var allowedMIMETypes = map[string]bool{
	MIMEPDF:  true,
	MIMEJPEG: true,
	MIMEPNG:  true,
}

var mimeExtensions = map[string]string{
	MIMEPDF:  ".pdf",
	MIMEJPEG: ".jpg",
	MIMEPNG:  ".png",
}

// formatByteLimit renders a byte limit the way a person would state it,
// without truncating limits that are not whole mebibyte multiples.
func formatByteLimit(n int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
	)
	switch {
	case n >= mb && n%mb == 0:
		return fmt.Sprintf("%dMB", n/mb)
	case n >= mb:
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	case n >= kb && n%kb == 0:
		return fmt.Sprintf("%dKB", n/kb)
	case n >= kb:
		return fmt.Sprintf("%.1fKB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// ExtensionFor returns the canonical file extension for a MIME type.
func ExtensionFor(mime string) string {
	if ext, ok := mimeExtensions[mime]; ok {
		return ext
	}
	return ".bin"
}

// Classification is the result of content sniffing. MIME is empty when the
// buffer was rejected; Reason holds the user-facing rejection message.
type Classification struct {
	MIME   string
	OK     bool
	Reason string
}

// Classifier sniffs the true content type of a byte buffer. The declared
// filename and client content-type are never consulted.
type Classifier struct {
	MaxSize int64
}

// Classify validates size and content type in a single pass over the buffer.
// It is a pure function: no side effects, stable output for a given input.
func (c Classifier) Classify(content []byte, declaredSize int64) Classification {
	size := declaredSize
	if int64(len(content)) > size {
		size = int64(len(content))
	}
	if size > c.MaxSize {
		return Classification{
			Reason: fmt.Sprintf("file too large, maximum size is %s", formatByteLimit(c.MaxSize)),
		}
	}

	kind, err := filetype.Match(content)
	if err != nil || kind == filetype.Unknown {
		return Classification{Reason: "could not recognize the file type"}
	}

	if !allowedMIMETypes[kind.MIME.Value] {
		return Classification{
			MIME:   kind.MIME.Value,
			Reason: "file type not allowed, use PDF, JPG or PNG",
		}
	}

	return Classification{MIME: kind.MIME.Value, OK: true}
}
