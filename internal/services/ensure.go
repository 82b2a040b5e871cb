package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/clinvault/docintake/internal/models"
	"github.com/clinvault/docintake/internal/repository"
	"github.com/clinvault/docintake/internal/storage"
)

// Ensurer produces combined artifacts on demand. Ensure is idempotent: a
// combined document whose file is still on disk is returned as-is, stale
// records are cleaned up and the artifact regenerated.
type Ensurer struct {
	repo   repository.DocumentRepository
	dir    repository.RequestDirectory
	merger *Merger
	layout Layout
	retry  storage.Policy
	logger *slog.Logger
}

func NewEnsurer(
	repo repository.DocumentRepository,
	dir repository.RequestDirectory,
	merger *Merger,
	layout Layout,
	retry storage.Policy,
	logger *slog.Logger,
) *Ensurer {
	return &Ensurer{
		repo:   repo,
		dir:    dir,
		merger: merger,
		layout: layout,
		retry:  retry,
		logger: logger,
	}
}

// EnsureCombined guarantees the request has an up-to-date combined PDF.
// The result status is one of:
//
//	hit       - an existing combined document with its file intact
//	generated - a fresh artifact was merged and recorded
//	skipped   - the request has no valid documents to merge
//	failed    - generation was attempted and failed
func (e *Ensurer) EnsureCombined(ctx context.Context, requestID string) models.EnsureResult {
	logCtx := e.logger.With("requestId", requestID)

	req, err := e.dir.RequestRef(ctx, requestID)
	if err != nil {
		return e.fail(logCtx, fmt.Errorf("failed to resolve request: %w", err))
	}

	existing, err := e.repo.CombinedDocument(ctx, requestID)
	switch {
	case err == nil:
		if FileExists(existing.StoredPath) {
			logCtx.Info("combined PDF already present", "documentId", existing.ID)
			return models.EnsureResult{Status: models.EnsureHit, Artifact: existing}
		}
		// Record without a file: out-of-band deletion or a partial failure.
		// Drop the stale record and regenerate.
		logCtx.Warn("combined document record is stale, regenerating",
			"documentId", existing.ID,
			"storedPath", existing.StoredPath,
		)
		if err := e.repo.DeleteDocument(ctx, existing.ID); err != nil {
			return e.fail(logCtx, fmt.Errorf("failed to remove stale combined record: %w", err))
		}
	case errors.Is(err, repository.ErrNotFound):
		// Nothing yet, generate below.
	default:
		return e.fail(logCtx, fmt.Errorf("failed to look up combined document: %w", err))
	}

	docs, err := e.repo.DocumentsByRequest(ctx, requestID)
	if err != nil {
		return e.fail(logCtx, fmt.Errorf("failed to list documents: %w", err))
	}

	// Clear out any leftover combined records before regenerating; a request
	// has at most one live artifact.
	var inputs []models.Document
	for _, doc := range docs {
		if doc.IsCombined() {
			if err := e.repo.DeleteDocument(ctx, doc.ID); err != nil {
				return e.fail(logCtx, fmt.Errorf("failed to remove previous combined record: %w", err))
			}
			DeleteFile(ctx, logCtx, e.retry, doc.StoredPath)
			continue
		}
		if doc.ValidationState != models.ValidationValid {
			continue
		}
		inputs = append(inputs, doc)
	}
	if len(inputs) == 0 {
		logCtx.Info("no valid documents to merge, skipping")
		return models.EnsureResult{Status: models.EnsureSkipped, SkipReason: "no valid documents"}
	}

	outPath := filepath.Join(e.layout.GeneratedDir(), e.layout.CombinedFilename(*req))

	if err := e.merger.Merge(ctx, inputs, outPath); err != nil {
		return e.fail(logCtx, err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return e.fail(logCtx, fmt.Errorf("failed to stat combined PDF: %w", err))
	}

	now := time.Now()
	artifact := &models.Document{
		ID:               uuid.NewString(),
		RequestID:        requestID,
		Category:         models.CategoryCombined,
		OriginalFilename: filepath.Base(outPath),
		StoredFilename:   filepath.Base(outPath),
		StoredPath:       outPath,
		ByteSize:         info.Size(),
		MIMEType:         MIMEPDF,
		ValidationState:  models.ValidationValid,
		UploadedAt:       now,
		ValidatedAt:      &now,
	}
	if err := e.repo.CreateDocument(ctx, artifact); err != nil {
		// The file is on disk but unrecorded; remove it so the next ensure
		// starts clean instead of inheriting an orphan.
		DeleteFile(ctx, logCtx, e.retry, outPath)
		return e.fail(logCtx, fmt.Errorf("failed to record combined document: %w", err))
	}

	logCtx.Info("combined PDF generated",
		"documentId", artifact.ID,
		"storedPath", artifact.StoredPath,
		"inputs", len(inputs),
	)
	return models.EnsureResult{Status: models.EnsureGenerated, Artifact: artifact}
}

func (e *Ensurer) fail(logger *slog.Logger, err error) models.EnsureResult {
	logger.Error("failed to ensure combined PDF", "error", err)
	return models.EnsureResult{Status: models.EnsureFailed, Err: err}
}

// EnsureCombinedBatch ensures combined artifacts for each request in turn and
// logs aggregate counts. Individual failures do not stop the batch.
func (e *Ensurer) EnsureCombinedBatch(ctx context.Context, requestIDs []string) map[string]models.EnsureResult {
	results := make(map[string]models.EnsureResult, len(requestIDs))
	var hits, generated, skipped, failed int

	for _, id := range requestIDs {
		if err := ctx.Err(); err != nil {
			results[id] = models.EnsureResult{Status: models.EnsureFailed, Err: err}
			failed++
			continue
		}
		res := e.EnsureCombined(ctx, id)
		results[id] = res
		switch res.Status {
		case models.EnsureHit:
			hits++
		case models.EnsureGenerated:
			generated++
		case models.EnsureSkipped:
			skipped++
		case models.EnsureFailed:
			failed++
		}
	}

	e.logger.Info("combined PDF batch finished",
		"requests", len(requestIDs),
		"hits", hits,
		"generated", generated,
		"skipped", skipped,
		"failed", failed,
	)
	return results
}
