package services

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ConvertStrategy is one way of rendering an RGB image into a single-page
// PDF. Strategies are tried in order; each failure is collected so the final
// error names what was attempted.
type ConvertStrategy struct {
	Name    string
	Convert func(img []byte, dpiX, dpiY int) ([]byte, error)
}

// Converter renders normalized RGB image bytes into single-page PDF bytes.
// The primary strategy is pdfcpu's lossless image import; the fallback renders
// through the fpdf page writer. Neither re-compresses the pixel data beyond
// what lossless embedding implies.
type Converter struct {
	strategies []ConvertStrategy
	logger     *slog.Logger
}

// NewConverter returns a Converter with the default strategy order.
func NewConverter(logger *slog.Logger) *Converter {
	return &Converter{
		strategies: []ConvertStrategy{
			{Name: "pdfcpu-import", Convert: convertWithPDFCPU},
			{Name: "fpdf-writer", Convert: convertWithFPDF},
		},
		logger: logger,
	}
}

// ToPDF converts normalized PNG image bytes to a single-page PDF at the given
// density. All strategies failing yields a ConversionError.
func (c *Converter) ToPDF(img []byte, dpiX, dpiY int) ([]byte, error) {
	if dpiX <= 0 {
		dpiX = DefaultDPI
	}
	if dpiY <= 0 {
		dpiY = DefaultDPI
	}

	var attempted []string
	var lastErr error
	for _, strategy := range c.strategies {
		out, err := strategy.Convert(img, dpiX, dpiY)
		if err == nil {
			c.logger.Info("converted image to PDF", "strategy", strategy.Name, "dpiX", dpiX, "dpiY", dpiY)
			return out, nil
		}
		attempted = append(attempted, strategy.Name)
		lastErr = err
		c.logger.Warn("image to PDF strategy failed, trying next", "strategy", strategy.Name, "error", err)
	}

	return nil, &ConversionError{Attempted: attempted, Last: lastErr}
}

// convertWithPDFCPU uses pdfcpu's dedicated image import, which embeds the
// image stream losslessly and sizes the page from the density.
func convertWithPDFCPU(img []byte, dpiX, _ int) ([]byte, error) {
	imp, err := pdfcpu.ParseImportDetails(fmt.Sprintf("dpi:%d, pos:full", dpiX), types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to build import configuration: %w", err)
	}

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(img)}, imp, nil); err != nil {
		return nil, fmt.Errorf("pdfcpu image import failed: %w", err)
	}
	return buf.Bytes(), nil
}

// convertWithFPDF renders the image onto a page sized from the pixel
// dimensions at the horizontal density. PNG input stays lossless.
func convertWithFPDF(img []byte, dpiX, dpiY int) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for fallback conversion: %w", err)
	}

	widthPt := float64(cfg.Width) * 72 / float64(dpiX)
	heightPt := float64(cfg.Height) * 72 / float64(dpiY)

	doc := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: widthPt, Ht: heightPt},
	})
	doc.AddPage()

	opts := fpdf.ImageOptions{ImageType: format}
	doc.RegisterImageOptionsReader("upload", opts, bytes.NewReader(img))
	doc.ImageOptions("upload", 0, 0, widthPt, heightPt, false, opts, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("fpdf rendering failed: %w", err)
	}
	return buf.Bytes(), nil
}
