package scanning

import (
	"context"
	"errors"
)

// ErrUnavailable marks a backend that could not serve an attempt: missing
// credential, transport failure or timeout. Unreadable text is not an error.
var ErrUnavailable = errors.New("ocr backend unavailable")

// Recognition is the raw output of one backend call.
type Recognition struct {
	Text string
	// Confidence is the backend's own 0..100 estimate, zero when it has none.
	Confidence float64
}

// Backend defines the interface for OCR recognition providers
type Backend interface {
	// Name identifies the backend in logs
	Name() string
	// Recognize reads the text of the image at path. lang is a
	// Tesseract-style language identifier ("fra", "fra+eng"); cloud
	// backends detect the language themselves and ignore it.
	Recognize(ctx context.Context, path, lang string) (Recognition, error)
	// Close releases resources held by the backend
	Close() error
}
