package repository

import (
	"context"
	"sync"

	"github.com/clinvault/docintake/internal/models"
)

// MemoryStore is an in-process DocumentRepository and RequestDirectory. It
// backs single-node deployments without a Reindexer instance and the tests.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]models.Document
	requests  map[string]models.RequestRef
}

var (
	_ DocumentRepository = (*MemoryStore)(nil)
	_ RequestDirectory   = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]models.Document),
		requests:  make(map[string]models.RequestRef),
	}
}

func (s *MemoryStore) DocumentsByRequest(_ context.Context, requestID string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []models.Document
	for _, doc := range s.documents {
		if doc.RequestID == requestID {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *MemoryStore) CombinedDocument(_ context.Context, requestID string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.documents {
		if doc.RequestID == requestID && doc.IsCombined() {
			found := doc
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents[doc.ID] = *doc
	return nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, id)
	return nil
}

func (s *MemoryStore) CountByCategory(_ context.Context, requestID string, category models.Category) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, doc := range s.documents {
		if doc.RequestID == requestID && doc.Category == category {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) RequestRef(_ context.Context, id string) (*models.RequestRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &req, nil
}

func (s *MemoryStore) UpsertRequest(_ context.Context, req *models.RequestRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[req.ID] = *req
	return nil
}

// UpdateValidationState flips a document's state in place. Used by review
// tooling and the tests.
func (s *MemoryStore) UpdateValidationState(_ context.Context, id string, state models.ValidationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return ErrNotFound
	}
	doc.ValidationState = state
	s.documents[id] = doc
	return nil
}
