package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// imageFormat is the source format of an uploaded receipt
type imageFormat int

const (
	formatPNG imageFormat = iota
	formatPDF
	formatHEIC
	formatOther
)

var heicBrands = map[string]bool{"heic": true, "heif": true, "mif1": true, "msf1": true}

// detectFormat works from the MIME type first and falls back to magic bytes,
// phones often upload HEIC photos labelled as image/jpeg
func detectFormat(data []byte, mimeType string) imageFormat {
	if len(data) >= 12 && string(data[4:8]) == "ftyp" && heicBrands[string(data[8:12])] {
		return formatHEIC
	}
	switch {
	case mimeType == "application/pdf", bytes.HasPrefix(data, []byte("%PDF-")):
		return formatPDF
	case strings.Contains(mimeType, "heic"), strings.Contains(mimeType, "heif"):
		return formatHEIC
	case mimeType == "image/png":
		return formatPNG
	}
	return formatOther
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// renderPDF renders the first page, receipts are almost always single page
func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// prepareImageData turns any supported upload into PNG bytes.
// Returns the image data, its MIME type and whether a conversion happened.
func prepareImageData(imageData []byte, contentType string) ([]byte, string, bool, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = DefaultContentType
	}

	var (
		img image.Image
		err error
	)
	switch detectFormat(imageData, mimeType) {
	case formatPNG:
		return imageData, "image/png", false, nil
	case formatPDF:
		img, err = renderPDF(imageData)
		if err != nil {
			return nil, "", false, fmt.Errorf("converting PDF to image: %w", err)
		}
	case formatHEIC:
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, "", false, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, "", false, fmt.Errorf("unsupported image format (JPEG, PNG, GIF, HEIC, PDF accepted): %w", err)
		}
	}

	pngData, err := encodePNG(img)
	if err != nil {
		return nil, "", false, err
	}
	return pngData, "image/png", true, nil
}
