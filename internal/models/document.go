package models

import (
	"sort"
	"time"
)

// Category classifies a document within its owning request. The set is closed:
// ordering and visibility logic switch exhaustively over it.
type Category string

const (
	CategoryForm          Category = "form"
	CategoryDeclaration   Category = "declaration"
	CategoryPrescription  Category = "prescription"
	CategoryMedicalReport Category = "medical_report"
	CategoryPersonalID    Category = "personal_id"
	CategoryExam          Category = "exam"
	CategoryStaffUpload   Category = "staff_upload"

	// CategoryCombined marks the merged artifact derived from a request's valid
	// documents. At most one live combined document exists per request.
	CategoryCombined Category = "combined"
)

// mergeOrder is the page precedence inside a combined artifact. Categories not
// listed here (staff uploads and anything future) sort after all named ones.
var mergeOrder = []Category{
	CategoryForm,
	CategoryDeclaration,
	CategoryPrescription,
	CategoryMedicalReport,
	CategoryPersonalID,
	CategoryExam,
}

var categoryLabels = map[Category]string{
	CategoryForm:          "Assessment Form",
	CategoryDeclaration:   "Conflict of Interest Declaration",
	CategoryPrescription:  "Medical Prescription",
	CategoryMedicalReport: "Medical Report",
	CategoryPersonalID:    "Personal Identification",
	CategoryExam:          "Complementary Exams",
	CategoryStaffUpload:   "Staff Upload",
	CategoryCombined:      "Combined Record",
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the human-readable name for the category.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// MergeRank returns the sort position of the category within a combined
// artifact. Unlisted categories rank last.
func (c Category) MergeRank() int {
	for i, ordered := range mergeOrder {
		if c == ordered {
			return i
		}
	}
	return len(mergeOrder)
}

// ValidationState tracks the external validation outcome for a document.
type ValidationState string

const (
	ValidationPending ValidationState = "pending"
	ValidationValid   ValidationState = "valid"
	ValidationInvalid ValidationState = "invalid"
)

// Document is the persisted record for one stored file belonging to a request.
// After passing through the intake pipeline a non-combined document is always
// backed by a PDF file, regardless of the format it was uploaded in.
type Document struct {
	ID               string          `json:"id" reindex:"id,,pk"`
	RequestID        string          `json:"request_id" reindex:"request_id"`
	Category         Category        `json:"category" reindex:"category"`
	OriginalFilename string          `json:"original_filename" reindex:"original_filename"`
	StoredFilename   string          `json:"stored_filename" reindex:"stored_filename"`
	StoredPath       string          `json:"stored_path" reindex:"stored_path"`
	ByteSize         int64           `json:"byte_size" reindex:"byte_size"`
	MIMEType         string          `json:"mime_type" reindex:"mime_type"`
	ValidationState  ValidationState `json:"validation_state" reindex:"validation_state"`
	UploadedAt       time.Time       `json:"uploaded_at" reindex:"uploaded_at"`
	ValidatedAt      *time.Time      `json:"validated_at,omitempty" reindex:"-"`
}

// IsCombined reports whether the document is a merged artifact.
func (d *Document) IsCombined() bool {
	return d.Category == CategoryCombined
}

// SortForMerge orders documents by category precedence. The sort is stable so
// documents of the same category keep their upload order.
func SortForMerge(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Category.MergeRank() < docs[j].Category.MergeRank()
	})
}

// RequestRef carries the request attributes the pipeline needs for storage
// layout and artifact naming. The full request aggregate lives outside this
// core.
type RequestRef struct {
	ID           string `json:"id" reindex:"id,,pk"`
	OwnerName    string `json:"owner_name" reindex:"owner_name"`
	Protocol     string `json:"protocol" reindex:"protocol"`
	ProcessLabel string `json:"process_label" reindex:"process_label"`
}
