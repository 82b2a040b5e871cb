package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinvault/docintake/internal/models"
	"github.com/clinvault/docintake/internal/repository"
	"github.com/clinvault/docintake/internal/storage"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\w\s\-.]`)
	collapseRuns        = regexp.MustCompile(`[_\s]+`)
)

// SanitizeFilename rewrites a client-supplied filename into a form safe for
// cross-platform filesystem use: path components and traversal sequences are
// dropped, reserved characters replaced, length capped at 255 bytes. An empty
// result falls back to "file".
func SanitizeFilename(name string) string {
	if name == "" {
		return "file"
	}

	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(filepath.Base(name), "..", "")

	for _, ch := range `<>:"|?*` {
		name = strings.ReplaceAll(name, string(ch), "_")
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = collapseRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_. ")

	if len(name) > 255 {
		ext := filepath.Ext(name)
		name = name[:255-len(ext)] + ext
	}
	if name == "" {
		return "file"
	}
	return name
}

// Layout maps requests and artifacts onto the storage root. Per-document
// files live under {root}/{owner}/{protocol}; combined artifacts under a
// shared generated directory.
type Layout struct {
	Root string
}

func (l Layout) RequestDir(ownerName, protocol string) string {
	return filepath.Join(l.Root, SanitizeFilename(ownerName), protocol)
}

func (l Layout) GeneratedDir() string {
	return filepath.Join(l.Root, "generated")
}

// CombinedFilename names a combined artifact from the sanitized owner name
// and the human-readable process label.
func (l Layout) CombinedFilename(req models.RequestRef) string {
	owner := req.OwnerName
	if owner == "" {
		owner = "unknown"
	}
	label := req.ProcessLabel
	if label == "" {
		label = models.CategoryCombined.Label()
	}
	return fmt.Sprintf("%s - %s.pdf", SanitizeFilename(owner), label)
}

// Intake runs the upload pipeline: classify, sanitize or convert, persist the
// file with retry, and stage a pending document record.
type Intake struct {
	classifier Classifier
	converter  *Converter
	repo       repository.DocumentRepository
	layout     Layout
	retry      storage.Policy
	logger     *slog.Logger

	// seqMu serializes sequence numbering and persistence so concurrent
	// uploads into one category cannot claim the same stored filename.
	seqMu sync.Mutex
}

// NewIntake wires the upload pipeline.
func NewIntake(
	classifier Classifier,
	converter *Converter,
	repo repository.DocumentRepository,
	layout Layout,
	retry storage.Policy,
	logger *slog.Logger,
) *Intake {
	return &Intake{
		classifier: classifier,
		converter:  converter,
		repo:       repo,
		layout:     layout,
		retry:      retry,
		logger:     logger,
	}
}

// ProcessUpload validates and normalizes one uploaded file into its canonical
// PDF form, stores it under the request's directory and stages a pending
// document record. The returned document's MIME type is always
// application/pdf. Committing the staged record is the caller's concern.
func (s *Intake) ProcessUpload(
	ctx context.Context,
	content []byte,
	declaredFilename string,
	req models.RequestRef,
	category models.Category,
) (*models.Document, error) {
	if !category.Valid() || category == models.CategoryCombined {
		return nil, validationErrf("unknown document category: %s", category)
	}

	logCtx := s.logger.With("requestId", req.ID, "category", string(category))

	cls := s.classifier.Classify(content, int64(len(content)))
	if !cls.OK {
		return nil, &ValidationError{Reason: cls.Reason}
	}

	switch cls.MIME {
	case MIMEPDF:
		sanitized, err := SanitizePDF(content, logCtx)
		if err != nil {
			return nil, err
		}
		// Re-verify: a sanitizer rewrite must still sniff as PDF.
		if recheck := s.classifier.Classify(sanitized, int64(len(sanitized))); !recheck.OK || recheck.MIME != MIMEPDF {
			return nil, validationErrf("PDF is invalid after sanitization")
		}
		content = sanitized

	case MIMEJPEG, MIMEPNG:
		logCtx.Info("converting image upload to PDF", "mimeType", cls.MIME)
		converted, err := s.convertImage(content, cls.MIME, logCtx)
		if err != nil {
			return nil, err
		}
		content = converted
	}

	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	seq, err := s.repo.CountByCategory(ctx, req.ID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to count existing %s documents: %w", category, err)
	}

	storedFilename := fmt.Sprintf("%s_%d%s", category, seq+1, ExtensionFor(MIMEPDF))
	dir := s.layout.RequestDir(req.OwnerName, req.Protocol)
	storedPath := filepath.Join(dir, storedFilename)

	err = storage.Retry(ctx, logCtx, "save upload", s.retry, func() error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(storedPath, content, 0o644)
	})
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:               uuid.NewString(),
		RequestID:        req.ID,
		Category:         category,
		OriginalFilename: SanitizeFilename(declaredFilename),
		StoredFilename:   storedFilename,
		StoredPath:       storedPath,
		ByteSize:         int64(len(content)),
		MIMEType:         MIMEPDF,
		ValidationState:  models.ValidationPending,
		UploadedAt:       time.Now(),
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to stage document record: %w", err)
	}

	logCtx.Info("upload processed",
		"documentId", doc.ID,
		"storedPath", doc.StoredPath,
		"byteSize", doc.ByteSize,
	)
	return doc, nil
}

// convertImage runs the image pipeline: inspect, strip metadata, flatten to
// RGB, convert to PDF, and sanitize the result like any other PDF.
func (s *Intake) convertImage(content []byte, mime string, logger *slog.Logger) ([]byte, error) {
	desc, err := InspectImage(content, mime)
	if err != nil {
		return nil, err
	}

	stripped := StripMetadata(content, mime, logger)

	normalized, err := Normalize(stripped, desc)
	if err != nil {
		return nil, err
	}

	pdf, err := s.converter.ToPDF(normalized, desc.DPIX, desc.DPIY)
	if err != nil {
		return nil, err
	}

	sanitized, err := SanitizePDF(pdf, logger)

	// Decoded pixel buffers for a 10000px-a-side image are large; hand the
	// pages back to the OS before the next upload.
	debug.FreeOSMemory()

	if err != nil {
		return nil, err
	}
	return sanitized, nil
}

// DeleteFile removes a stored file with retry, reporting best-effort success.
// Missing files count as deleted.
func DeleteFile(ctx context.Context, logger *slog.Logger, policy storage.Policy, path string) bool {
	err := storage.Retry(ctx, logger, "delete file", policy, func() error {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	})
	if err != nil {
		logger.Warn("failed to delete file", "path", path, "error", err)
		return false
	}
	return true
}

// FileExists reports whether path points at an existing file.
func FileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
