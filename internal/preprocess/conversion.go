package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ErrInput reports a missing, corrupt or unsupported receipt image.
var ErrInput = errors.New("unreadable receipt image")

// Image is a receipt normalized to PNG for the OCR backends.
type Image struct {
	Source string // path the caller handed in
	Path   string // normalized PNG inside the run's scratch directory
	Format string // detected input format
	Width  int
	Height int
}

// Normalize decodes the receipt at src (JPEG, PNG, GIF, HEIC/HEIF or the
// first page of a PDF) and re-encodes it as PNG inside dir.
func Normalize(src, dir string) (*Image, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInput, src, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInput, src)
	}

	img, format, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}

	out := filepath.Join(dir, "input.png")
	if err := imaging.Save(img, out); err != nil {
		return nil, fmt.Errorf("%w: encoding PNG: %v", ErrInput, err)
	}

	b := img.Bounds()
	return &Image{
		Source: src,
		Path:   out,
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

func decode(data []byte) (image.Image, string, error) {
	switch {
	case isPDF(data):
		img, err := pdfFirstPage(data)
		return img, "pdf", err
	case isHEICFormat(data):
		// Go's standard image package doesn't support HEIC
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, "heic", nil
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, "", fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, "", fmt.Errorf("decoding image header: %w", err)
	}
	// phone photos carry their rotation in EXIF
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}
	return img, format, nil
}

// pdfFirstPage renders the first page; receipts are single page.
func pdfFirstPage(data []byte) (image.Image, error) {
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

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
