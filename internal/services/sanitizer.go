package services

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// SanitizePDF strips active content from a PDF: document-level JavaScript and
// embedded files in the name tree, the auto-open action, and additional
// actions on the catalog and on every page.
//
// Password-protected and unparseable input is rejected. When nothing had to
// be removed the input bytes are returned unmodified, avoiding re-encoding
// drift. Any unexpected failure mid-sanitization rejects the file rather than
// passing through unsanitized content.
func SanitizePDF(content []byte, logger *slog.Logger) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("unexpected panic during PDF sanitization", "panic", r)
			out = nil
			err = validationErrf("could not process this PDF, please try another file")
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(content), conf)
	if err != nil {
		if isEncryptionError(err) {
			return nil, validationErrf("password-protected PDF is not allowed")
		}
		return nil, validationErrf("PDF is invalid or corrupted, please try another file")
	}
	if ctx.Encrypt != nil {
		return nil, validationErrf("password-protected PDF is not allowed")
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, validationErrf("PDF is invalid or corrupted, please try another file")
	}

	modified, err := removeActiveContent(ctx, logger)
	if err != nil {
		logger.Error("PDF sanitization failed", "error", err)
		return nil, validationErrf("could not process this PDF, please try another file")
	}

	if !modified {
		return content, nil
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("failed to serialize sanitized PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func isEncryptionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypt") || strings.Contains(msg, "password")
}

// removeActiveContent deletes dangerous catalog and page entries in place and
// reports whether anything changed.
func removeActiveContent(ctx *model.Context, logger *slog.Logger) (bool, error) {
	root, err := ctx.Catalog()
	if err != nil {
		return false, fmt.Errorf("failed to resolve document catalog: %w", err)
	}

	modified := false

	if namesObj, ok := root["Names"]; ok {
		names, err := ctx.DereferenceDict(namesObj)
		if err == nil && names != nil {
			if _, ok := names["JavaScript"]; ok {
				delete(names, "JavaScript")
				modified = true
				logger.Info("removed JavaScript from PDF")
			}
			if _, ok := names["EmbeddedFiles"]; ok {
				delete(names, "EmbeddedFiles")
				modified = true
				logger.Info("removed embedded files from PDF")
			}
		}
	}

	if _, ok := root["OpenAction"]; ok {
		delete(root, "OpenAction")
		modified = true
		logger.Info("removed OpenAction from PDF")
	}
	if _, ok := root["AA"]; ok {
		delete(root, "AA")
		modified = true
		logger.Info("removed document-level actions from PDF")
	}

	pagesModified, err := removePageActions(ctx, root["Pages"], map[int]bool{})
	if err != nil {
		return modified, err
	}
	if pagesModified {
		modified = true
		logger.Info("removed page-level actions from PDF")
	}

	return modified, nil
}

// removePageActions walks the page tree and deletes AA entries from every
// page dict. The visited set guards against malformed trees with cycles.
func removePageActions(ctx *model.Context, obj types.Object, visited map[int]bool) (bool, error) {
	if obj == nil {
		return false, nil
	}
	if ref, ok := obj.(types.IndirectRef); ok {
		objNr := int(ref.ObjectNumber)
		if visited[objNr] {
			return false, nil
		}
		visited[objNr] = true
	}

	node, err := ctx.DereferenceDict(obj)
	if err != nil || node == nil {
		return false, err
	}

	nodeType, _ := ctx.Dereference(node["Type"])
	modified := false

	switch nodeType {
	case types.Name("Page"):
		if _, ok := node["AA"]; ok {
			delete(node, "AA")
			modified = true
		}
	case types.Name("Pages"):
		kidsObj, _ := ctx.Dereference(node["Kids"])
		kids, ok := kidsObj.(types.Array)
		if !ok {
			return modified, nil
		}
		for _, kid := range kids {
			kidModified, err := removePageActions(ctx, kid, visited)
			if err != nil {
				return modified, err
			}
			modified = modified || kidModified
		}
	}

	return modified, nil
}
