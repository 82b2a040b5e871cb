package services

import (
	"bytes"
	"encoding/binary"
	"math"
)

// DefaultDPI is assumed when the source image declares no density.
const DefaultDPI = 150

// imageDPI extracts the declared pixel density from JPEG (JFIF density
// fields) or PNG (pHYs chunk) bytes. Images without a usable declaration get
// the 150x150 default; PDF page geometry depends on having some density.
func imageDPI(content []byte, mime string) (x, y int) {
	switch mime {
	case MIMEJPEG:
		x, y = jfifDensity(content)
	case MIMEPNG:
		x, y = physDensity(content)
	}
	if x <= 0 || y <= 0 {
		return DefaultDPI, DefaultDPI
	}
	return x, y
}

// jfifDensity walks the JPEG segment list looking for an APP0/JFIF header and
// returns its density converted to dots per inch. Zero means not declared.
func jfifDensity(content []byte) (int, int) {
	if len(content) < 4 || content[0] != 0xFF || content[1] != 0xD8 {
		return 0, 0
	}
	pos := 2
	for pos+4 <= len(content) {
		if content[pos] != 0xFF {
			return 0, 0
		}
		marker := content[pos+1]
		if marker == 0xDA || marker == 0xD9 { // start of scan / end of image
			return 0, 0
		}
		segLen := int(binary.BigEndian.Uint16(content[pos+2 : pos+4]))
		if segLen < 2 || pos+2+segLen > len(content) {
			return 0, 0
		}
		if marker == 0xE0 {
			data := content[pos+4 : pos+2+segLen]
			// identifier(5) version(2) units(1) xdensity(2) ydensity(2)
			if len(data) >= 12 && bytes.Equal(data[:5], []byte("JFIF\x00")) {
				units := data[7]
				xd := int(binary.BigEndian.Uint16(data[8:10]))
				yd := int(binary.BigEndian.Uint16(data[10:12]))
				switch units {
				case 1: // dots per inch
					return xd, yd
				case 2: // dots per cm
					return int(math.Round(float64(xd) * 2.54)), int(math.Round(float64(yd) * 2.54))
				}
			}
			return 0, 0
		}
		pos += 2 + segLen
	}
	return 0, 0
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// physDensity scans PNG chunks for pHYs and converts pixels-per-meter to dots
// per inch. Zero means not declared or not in a physical unit.
func physDensity(content []byte) (int, int) {
	if len(content) < len(pngSignature) || !bytes.Equal(content[:len(pngSignature)], pngSignature) {
		return 0, 0
	}
	pos := len(pngSignature)
	for pos+8 <= len(content) {
		chunkLen := int(binary.BigEndian.Uint32(content[pos : pos+4]))
		chunkType := string(content[pos+4 : pos+8])
		dataStart := pos + 8
		if chunkLen < 0 || dataStart+chunkLen+4 > len(content) {
			return 0, 0
		}
		switch chunkType {
		case "pHYs":
			if chunkLen != 9 {
				return 0, 0
			}
			data := content[dataStart : dataStart+9]
			if data[8] != 1 { // unit must be meters
				return 0, 0
			}
			ppmX := binary.BigEndian.Uint32(data[0:4])
			ppmY := binary.BigEndian.Uint32(data[4:8])
			return int(math.Round(float64(ppmX) * 0.0254)), int(math.Round(float64(ppmY) * 0.0254))
		case "IDAT", "IEND":
			// pHYs must precede image data; stop scanning.
			return 0, 0
		}
		pos = dataStart + chunkLen + 4
	}
	return 0, 0
}
