package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryValid(t *testing.T) {
	for _, c := range []Category{
		CategoryForm, CategoryDeclaration, CategoryPrescription,
		CategoryMedicalReport, CategoryPersonalID, CategoryExam,
		CategoryStaffUpload, CategoryCombined,
	} {
		assert.True(t, c.Valid(), "category %s should be valid", c)
	}

	assert.False(t, Category("invoice").Valid())
	assert.False(t, Category("").Valid())
}

func TestCategoryLabel(t *testing.T) {
	assert.Equal(t, "Medical Prescription", CategoryPrescription.Label())
	assert.Equal(t, "Combined Record", CategoryCombined.Label())
	// Unknown categories fall back to their raw value.
	assert.Equal(t, "whatever", Category("whatever").Label())
}

func TestMergeRankOrdersNamedCategoriesFirst(t *testing.T) {
	assert.Less(t, CategoryForm.MergeRank(), CategoryDeclaration.MergeRank())
	assert.Less(t, CategoryDeclaration.MergeRank(), CategoryPrescription.MergeRank())
	assert.Less(t, CategoryExam.MergeRank(), CategoryStaffUpload.MergeRank())

	// Anything outside the precedence list shares the trailing rank.
	assert.Equal(t, CategoryStaffUpload.MergeRank(), Category("future").MergeRank())
}

func TestSortForMergeIsStable(t *testing.T) {
	docs := []Document{
		{ID: "exam-1", Category: CategoryExam},
		{ID: "staff-1", Category: CategoryStaffUpload},
		{ID: "form-1", Category: CategoryForm},
		{ID: "exam-2", Category: CategoryExam},
		{ID: "prescription-1", Category: CategoryPrescription},
	}

	SortForMerge(docs)

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"form-1", "prescription-1", "exam-1", "exam-2", "staff-1"}, ids)
}

func TestEnsureResultExists(t *testing.T) {
	assert.False(t, EnsureResult{Status: EnsureSkipped}.Exists())
	assert.True(t, EnsureResult{Status: EnsureHit, Artifact: &Document{ID: "d1"}}.Exists())
}
