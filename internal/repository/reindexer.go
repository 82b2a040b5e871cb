package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/restream/reindexer/v4"
	// cproto is Reindexer's binary RPC protocol, faster than the HTTP binding.
	_ "github.com/restream/reindexer/v4/bindings/cproto"

	"github.com/clinvault/docintake/internal/models"
)

// ReindexerStore implements DocumentRepository and RequestDirectory on a
// Reindexer instance, for deployments where several intake nodes share one
// metadata store.
type ReindexerStore struct {
	db                 *reindexer.Reindexer
	documentsNamespace string
	requestsNamespace  string
	logger             *slog.Logger
}

var (
	_ DocumentRepository = (*ReindexerStore)(nil)
	_ RequestDirectory   = (*ReindexerStore)(nil)
)

// NewReindexerStore connects to dsn and opens the document and request
// namespaces, creating them on first use.
func NewReindexerStore(dsn, namespacePrefix string, logger *slog.Logger) (*ReindexerStore, error) {
	db := reindexer.NewReindex(dsn, reindexer.WithCreateDBIfMissing())
	if db == nil {
		return nil, fmt.Errorf("failed to connect to reindexer at %s", dsn)
	}
	if err := db.Status().Err; err != nil {
		return nil, fmt.Errorf("failed to connect to reindexer: %w", err)
	}

	store := &ReindexerStore{
		db:                 db,
		documentsNamespace: namespacePrefix + "_documents",
		requestsNamespace:  namespacePrefix + "_requests",
		logger:             logger,
	}

	opts := reindexer.DefaultNamespaceOptions()
	if err := db.OpenNamespace(store.documentsNamespace, opts, models.Document{}); err != nil {
		return nil, fmt.Errorf("failed to open namespace %s: %w", store.documentsNamespace, err)
	}
	if err := db.OpenNamespace(store.requestsNamespace, opts, models.RequestRef{}); err != nil {
		return nil, fmt.Errorf("failed to open namespace %s: %w", store.requestsNamespace, err)
	}

	logger.Info("connected to reindexer",
		"documentsNamespace", store.documentsNamespace,
		"requestsNamespace", store.requestsNamespace,
	)
	return store, nil
}

// Close releases the Reindexer connection.
func (s *ReindexerStore) Close() {
	s.db.Close()
}

func (s *ReindexerStore) DocumentsByRequest(_ context.Context, requestID string) ([]models.Document, error) {
	iter := s.db.Query(s.documentsNamespace).
		Where("request_id", reindexer.EQ, requestID).
		Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	var docs []models.Document
	for iter.Next() {
		doc, ok := iter.Object().(*models.Document)
		if !ok {
			return nil, fmt.Errorf("unexpected object type %T in %s", iter.Object(), s.documentsNamespace)
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (s *ReindexerStore) CombinedDocument(_ context.Context, requestID string) (*models.Document, error) {
	iter := s.db.Query(s.documentsNamespace).
		Where("request_id", reindexer.EQ, requestID).
		Where("category", reindexer.EQ, string(models.CategoryCombined)).
		Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to query combined document: %w", err)
	}

	for iter.Next() {
		doc, ok := iter.Object().(*models.Document)
		if !ok {
			return nil, fmt.Errorf("unexpected object type %T in %s", iter.Object(), s.documentsNamespace)
		}
		return doc, nil
	}
	return nil, ErrNotFound
}

func (s *ReindexerStore) CreateDocument(_ context.Context, doc *models.Document) error {
	if err := s.db.Upsert(s.documentsNamespace, doc); err != nil {
		return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *ReindexerStore) DeleteDocument(_ context.Context, id string) error {
	_, err := s.db.Query(s.documentsNamespace).
		Where("id", reindexer.EQ, id).
		Delete()
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

func (s *ReindexerStore) CountByCategory(_ context.Context, requestID string, category models.Category) (int, error) {
	iter := s.db.Query(s.documentsNamespace).
		Where("request_id", reindexer.EQ, requestID).
		Where("category", reindexer.EQ, string(category)).
		Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return iter.Count(), nil
}

func (s *ReindexerStore) RequestRef(_ context.Context, id string) (*models.RequestRef, error) {
	iter := s.db.Query(s.requestsNamespace).
		Where("id", reindexer.EQ, id).
		Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to query request: %w", err)
	}

	for iter.Next() {
		req, ok := iter.Object().(*models.RequestRef)
		if !ok {
			return nil, fmt.Errorf("unexpected object type %T in %s", iter.Object(), s.requestsNamespace)
		}
		return req, nil
	}
	return nil, ErrNotFound
}

func (s *ReindexerStore) UpsertRequest(_ context.Context, req *models.RequestRef) error {
	if err := s.db.Upsert(s.requestsNamespace, req); err != nil {
		return fmt.Errorf("failed to store request %s: %w", req.ID, err)
	}
	return nil
}
