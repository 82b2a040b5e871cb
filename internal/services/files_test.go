package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinvault/docintake/internal/models"
	"github.com/clinvault/docintake/internal/repository"
	"github.com/clinvault/docintake/internal/storage"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{"file\x00name.pdf", "filename.pdf"},
		{`a<b>c:d.pdf`, "a_b_c_d.pdf"},
		{"  spaced   name.pdf  ", "spaced_name.pdf"},
		{"..", "file"},
		{"", "file"},
		{"___.pdf", "pdf"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeFilename(tc.in), "input %q", tc.in)
	}
}

func TestSanitizeFilenameCapsLengthKeepingExtension(t *testing.T) {
	long := strings.Repeat("a", 300) + ".pdf"

	out := SanitizeFilename(long)

	assert.LessOrEqual(t, len(out), 255)
	assert.True(t, strings.HasSuffix(out, ".pdf"))
}

func TestLayoutPaths(t *testing.T) {
	layout := Layout{Root: "/srv/uploads"}

	assert.Equal(t, filepath.Join("/srv/uploads", "Maria_Silva", "2026-0042"),
		layout.RequestDir("Maria Silva", "2026-0042"))
	assert.Equal(t, filepath.Join("/srv/uploads", "generated"), layout.GeneratedDir())

	req := models.RequestRef{OwnerName: "Maria Silva", ProcessLabel: "Disability Assessment"}
	assert.Equal(t, "Maria_Silva - Disability Assessment.pdf", layout.CombinedFilename(req))

	assert.Equal(t, "unknown - Combined Record.pdf", layout.CombinedFilename(models.RequestRef{}))
}

func newTestIntake(t *testing.T, root string, repo repository.DocumentRepository) *Intake {
	t.Helper()
	return NewIntake(
		Classifier{MaxSize: 10 << 20},
		NewConverter(testLogger()),
		repo,
		Layout{Root: root},
		storage.Policy{MaxRetries: 1, BaseDelay: time.Millisecond},
		testLogger(),
	)
}

func TestProcessUploadStoresImageAsPDF(t *testing.T) {
	root := t.TempDir()
	repo := repository.NewMemoryStore()
	intake := newTestIntake(t, root, repo)
	req := models.RequestRef{ID: "req-1", OwnerName: "Maria Silva", Protocol: "2026-0042"}

	doc, err := intake.ProcessUpload(context.Background(), makePNG(t, 40, 40, true), "scan.png", req, models.CategoryExam)
	require.NoError(t, err)

	assert.Equal(t, "exam_1.pdf", doc.StoredFilename)
	assert.Equal(t, MIMEPDF, doc.MIMEType)
	assert.Equal(t, models.ValidationPending, doc.ValidationState)
	assert.Equal(t, "scan.png", doc.OriginalFilename)
	assert.Equal(t, filepath.Join(root, "Maria_Silva", "2026-0042", "exam_1.pdf"), doc.StoredPath)

	stored, err := os.ReadFile(doc.StoredPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(stored, []byte("%PDF")))
	assert.Equal(t, int64(len(stored)), doc.ByteSize)

	// The record was staged.
	docs, err := repo.DocumentsByRequest(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
}

func TestProcessUploadSequentialNaming(t *testing.T) {
	root := t.TempDir()
	repo := repository.NewMemoryStore()
	intake := newTestIntake(t, root, repo)
	req := models.RequestRef{ID: "req-1", OwnerName: "Maria", Protocol: "p1"}

	first, err := intake.ProcessUpload(context.Background(), makePDF(t, "one"), "one.pdf", req, models.CategoryForm)
	require.NoError(t, err)
	second, err := intake.ProcessUpload(context.Background(), makePDF(t, "two"), "two.pdf", req, models.CategoryForm)
	require.NoError(t, err)
	other, err := intake.ProcessUpload(context.Background(), makePDF(t, "rx"), "rx.pdf", req, models.CategoryPrescription)
	require.NoError(t, err)

	assert.Equal(t, "form_1.pdf", first.StoredFilename)
	assert.Equal(t, "form_2.pdf", second.StoredFilename)
	assert.Equal(t, "prescription_1.pdf", other.StoredFilename)
}

func TestProcessUploadRejectsBadCategory(t *testing.T) {
	intake := newTestIntake(t, t.TempDir(), repository.NewMemoryStore())
	req := models.RequestRef{ID: "req-1"}

	_, err := intake.ProcessUpload(context.Background(), makePDF(t, "x"), "x.pdf", req, models.CategoryCombined)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = intake.ProcessUpload(context.Background(), makePDF(t, "x"), "x.pdf", req, models.Category("invoice"))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestProcessUploadRejectsUnknownContent(t *testing.T) {
	intake := newTestIntake(t, t.TempDir(), repository.NewMemoryStore())
	req := models.RequestRef{ID: "req-1"}

	_, err := intake.ProcessUpload(context.Background(), []byte("plain text"), "notes.txt", req, models.CategoryExam)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestDeleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doomed.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	policy := storage.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}
	assert.True(t, DeleteFile(context.Background(), testLogger(), policy, path))
	assert.NoFileExists(t, path)

	// Deleting a missing file is still success.
	assert.True(t, DeleteFile(context.Background(), testLogger(), policy, path))
}

func TestFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	assert.False(t, FileExists(path))
	assert.False(t, FileExists(""))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.True(t, FileExists(path))
}
