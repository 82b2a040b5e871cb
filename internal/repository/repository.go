// Package repository persists document and request metadata. Files live on
// disk; these stores hold only records pointing at them.
package repository

import (
	"context"
	"errors"

	"github.com/clinvault/docintake/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DocumentRepository stores document records.
type DocumentRepository interface {
	// DocumentsByRequest returns every document belonging to a request.
	DocumentsByRequest(ctx context.Context, requestID string) ([]models.Document, error)

	// CombinedDocument returns the request's combined artifact record, or
	// ErrNotFound if none exists.
	CombinedDocument(ctx context.Context, requestID string) (*models.Document, error)

	// CreateDocument stores a new document record.
	CreateDocument(ctx context.Context, doc *models.Document) error

	// DeleteDocument removes a document record by id. Deleting a missing
	// record is not an error.
	DeleteDocument(ctx context.Context, id string) error

	// CountByCategory counts a request's documents in the given category.
	CountByCategory(ctx context.Context, requestID string, category models.Category) (int, error)
}

// RequestDirectory resolves request ids to their owner and protocol details.
type RequestDirectory interface {
	// RequestRef returns request details by id, or ErrNotFound.
	RequestRef(ctx context.Context, id string) (*models.RequestRef, error)

	// UpsertRequest creates or replaces a request entry.
	UpsertRequest(ctx context.Context, req *models.RequestRef) error
}
