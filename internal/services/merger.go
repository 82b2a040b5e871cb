package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/clinvault/docintake/internal/models"
	"github.com/clinvault/docintake/internal/storage"
)

// Merger concatenates stored per-document PDFs into one combined artifact,
// in category precedence order.
type Merger struct {
	retry  storage.Policy
	logger *slog.Logger
}

func NewMerger(retry storage.Policy, logger *slog.Logger) *Merger {
	return &Merger{retry: retry, logger: logger}
}

// Merge writes the combined PDF for docs to outPath. Documents whose stored
// file has gone missing are skipped with a warning; merging fails only when
// no input file remains.
func (m *Merger) Merge(ctx context.Context, docs []models.Document, outPath string) error {
	ordered := make([]models.Document, len(docs))
	copy(ordered, docs)
	models.SortForMerge(ordered)

	inFiles := make([]string, 0, len(ordered))
	for _, doc := range ordered {
		if !FileExists(doc.StoredPath) {
			m.logger.Warn("skipping document with missing file",
				"documentId", doc.ID,
				"storedPath", doc.StoredPath,
			)
			continue
		}
		inFiles = append(inFiles, doc.StoredPath)
	}
	if len(inFiles) == 0 {
		return fmt.Errorf("no document files available to merge")
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	err := storage.Retry(ctx, m.logger, "merge documents", m.retry, func() error {
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return err
		}
		return api.MergeCreateFile(inFiles, outPath, false, conf)
	})
	if err != nil {
		return fmt.Errorf("failed to merge %d documents: %w", len(inFiles), err)
	}

	if !FileExists(outPath) {
		return fmt.Errorf("merge reported success but %s is missing", outPath)
	}

	m.logger.Info("combined PDF written", "outPath", outPath, "inputs", len(inFiles))
	return nil
}
