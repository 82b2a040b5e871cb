package services

import (
	"bytes"
	"fmt"
	"image"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPDFProducesPDF(t *testing.T) {
	c := NewConverter(testLogger())

	out, err := c.ToPDF(makePNG(t, 60, 40, false), 150, 150)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")), "output must be a PDF")
}

// extractedImageDims pulls the embedded images off page 1 of a PDF and
// returns the decoded dimensions of the first one.
func extractedImageDims(t *testing.T, pdf []byte) (int, int) {
	t.Helper()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pageImages, err := api.ExtractImagesRaw(bytes.NewReader(pdf), []string{"1"}, conf)
	require.NoError(t, err)

	for _, imgs := range pageImages {
		for _, img := range imgs {
			cfg, _, err := image.DecodeConfig(img)
			require.NoError(t, err)
			return cfg.Width, cfg.Height
		}
	}
	t.Fatal("no embedded image found on page 1")
	return 0, 0
}

func TestToPDFRoundTripPreservesDimensions(t *testing.T) {
	const width, height = 60, 40
	src := makePNG(t, width, height, false)

	t.Run("default strategy order", func(t *testing.T) {
		out, err := NewConverter(testLogger()).ToPDF(src, 150, 150)
		require.NoError(t, err)

		w, h := extractedImageDims(t, out)
		assert.Equal(t, width, w)
		assert.Equal(t, height, h)
	})

	t.Run("fpdf fallback", func(t *testing.T) {
		out, err := convertWithFPDF(src, 150, 150)
		require.NoError(t, err)

		w, h := extractedImageDims(t, out)
		assert.Equal(t, width, w)
		assert.Equal(t, height, h)
	})
}

func TestToPDFDefaultsDensity(t *testing.T) {
	c := NewConverter(testLogger())

	out, err := c.ToPDF(makePNG(t, 60, 40, false), 0, -1)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestToPDFFallsBackToNextStrategy(t *testing.T) {
	c := &Converter{
		logger: testLogger(),
		strategies: []ConvertStrategy{
			{Name: "broken", Convert: func([]byte, int, int) ([]byte, error) {
				return nil, fmt.Errorf("boom")
			}},
			{Name: "working", Convert: func([]byte, int, int) ([]byte, error) {
				return []byte("%PDF-fake"), nil
			}},
		},
	}

	out, err := c.ToPDF([]byte("img"), 150, 150)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-fake"), out)
}

func TestToPDFReportsAllFailedStrategies(t *testing.T) {
	c := &Converter{
		logger: testLogger(),
		strategies: []ConvertStrategy{
			{Name: "first", Convert: func([]byte, int, int) ([]byte, error) {
				return nil, fmt.Errorf("first broke")
			}},
			{Name: "second", Convert: func([]byte, int, int) ([]byte, error) {
				return nil, fmt.Errorf("second broke")
			}},
		},
	}

	_, err := c.ToPDF([]byte("img"), 150, 150)
	require.Error(t, err)

	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, []string{"first", "second"}, convErr.Attempted)
	assert.Contains(t, err.Error(), "try converting the image to PDF manually")
}

func TestFPDFFallbackConvertsDirectly(t *testing.T) {
	out, err := convertWithFPDF(makePNG(t, 60, 40, false), 150, 150)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
