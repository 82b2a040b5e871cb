package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"

	xdraw "golang.org/x/image/draw"
)

// Pixel dimension bounds for accepted images.
const (
	minImageDimension = 10
	maxImageDimension = 10000
)

// jpegStripQuality matches the re-encode quality used when reconstructing a
// JPEG without its metadata.
const jpegStripQuality = 95

// ImageDescriptor is the derived metadata for an accepted image. It is
// produced by InspectImage and consumed by the normalizer and converter;
// never persisted.
type ImageDescriptor struct {
	Width    int
	Height   int
	Format   string
	HasAlpha bool
	DPIX     int
	DPIY     int
}

// InspectImage validates image bytes already classified as JPEG or PNG and
// returns their descriptor. It fails with a validation error on corrupt data,
// out-of-range dimensions, or a decoded format that disagrees with the
// classification.
func InspectImage(content []byte, mime string) (ImageDescriptor, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return ImageDescriptor{}, validationErrf("image is corrupted or invalid: %v", err)
	}

	expected := map[string]string{MIMEJPEG: "jpeg", MIMEPNG: "png"}[mime]
	if format != expected {
		return ImageDescriptor{}, validationErrf("image content is %s but was classified as %s", format, mime)
	}

	if cfg.Width < minImageDimension || cfg.Height < minImageDimension {
		return ImageDescriptor{}, validationErrf(
			"image too small: %dx%dpx, minimum is %dpx", cfg.Width, cfg.Height, minImageDimension)
	}
	if cfg.Width > maxImageDimension || cfg.Height > maxImageDimension {
		return ImageDescriptor{}, validationErrf(
			"image too large: %dx%dpx, maximum is %dpx", cfg.Width, cfg.Height, maxImageDimension)
	}

	dpiX, dpiY := imageDPI(content, mime)

	return ImageDescriptor{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Format:   format,
		HasAlpha: modelHasAlpha(cfg.ColorModel),
		DPIX:     dpiX,
		DPIY:     dpiY,
	}, nil
}

func modelHasAlpha(m color.Model) bool {
	switch m {
	case color.NRGBAModel, color.RGBAModel, color.NRGBA64Model, color.RGBA64Model, color.AlphaModel, color.Alpha16Model:
		return true
	}
	if palette, ok := m.(color.Palette); ok {
		for _, entry := range palette {
			if _, _, _, a := entry.RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}

// StripMetadata removes EXIF/GPS/camera/software tags by decoding the pixels
// and re-encoding them into a fresh buffer. Patching the metadata block in
// place can leave residual tags, so the image is reconstructed instead.
//
// Stripping failures are non-fatal: the original bytes are returned unchanged
// and the event is logged as privacy-relevant.
func StripMetadata(content []byte, mime string, logger *slog.Logger) []byte {
	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		logger.Warn("metadata stripping failed, using original image",
			"privacy", "metadata-strip-failed", "error", err)
		return content
	}

	clean := image.NewNRGBA(img.Bounds())
	xdraw.Draw(clean, clean.Bounds(), img, img.Bounds().Min, xdraw.Src)

	var buf bytes.Buffer
	switch mime {
	case MIMEJPEG:
		err = jpeg.Encode(&buf, clean, &jpeg.Options{Quality: jpegStripQuality})
	case MIMEPNG:
		err = png.Encode(&buf, clean)
	default:
		logger.Warn("unsupported image MIME type for metadata stripping", "mimeType", mime)
		return content
	}
	if err != nil {
		logger.Warn("metadata stripping failed, using original image",
			"privacy", "metadata-strip-failed", "error", err)
		return content
	}

	logger.Info("stripped metadata from image", "mimeType", mime)
	return buf.Bytes()
}

// Normalize converts an image to plain opaque RGB. Pixels with transparency
// are composited onto a white background using the alpha channel as mask.
// Output is re-encoded as PNG, which is lossless.
func Normalize(content []byte, desc ImageDescriptor) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, validationErrf("image is corrupted or invalid: %v", err)
	}

	bounds := img.Bounds()
	flat := image.NewNRGBA(bounds)
	xdraw.Draw(flat, bounds, image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Draw(flat, bounds, img, bounds.Min, xdraw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, flat); err != nil {
		return nil, fmt.Errorf("failed to normalize image: %w", err)
	}
	return buf.Bytes(), nil
}
