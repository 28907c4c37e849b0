// Package tesseract provides the always-available local OCR backend.
// It lives apart from package scanning so that only binaries which need
// libtesseract link it.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/receipt-scanner/internal/scanning"
)

// DefaultLanguage is used when a call passes no language.
const DefaultLanguage = "fra"

// Engine implements scanning.Backend with gosseract. A fresh client is
// created per call. At most the configured number of Tesseract calls run at
// once, including calls whose caller has already given up.
type Engine struct {
	tessdata      string
	pageSegMode   gosseract.PageSegMode
	clientFactory func() *gosseract.Client
	slots         chan struct{}
	run           func(path, lang string) (scanning.Recognition, error)
}

// NewEngine constructs the engine. An empty tessdata directory uses the
// library's default lookup; concurrency below 1 means one call at a time.
func NewEngine(tessdata string, concurrency int) *Engine {
	e := &Engine{
		tessdata:      tessdata,
		pageSegMode:   gosseract.PSM_AUTO,
		clientFactory: gosseract.NewClient,
		slots:         make(chan struct{}, max(1, concurrency)),
	}
	e.run = e.recognize
	return e
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize runs Tesseract on path. The OCR call cannot be interrupted:
// when ctx ends first the result is discarded, and the call keeps its slot
// until it finishes, so the next attempt waits for it instead of stacking
// more work on the CPU.
func (e *Engine) Recognize(ctx context.Context, path, lang string) (scanning.Recognition, error) {
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return scanning.Recognition{}, fmt.Errorf("%w: tesseract busy: %v", scanning.ErrUnavailable, ctx.Err())
	}

	type result struct {
		rec scanning.Recognition
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-e.slots }()
		rec, err := e.run(path, lang)
		done <- result{rec, err}
	}()

	select {
	case <-ctx.Done():
		return scanning.Recognition{}, fmt.Errorf("%w: tesseract: %v", scanning.ErrUnavailable, ctx.Err())
	case r := <-done:
		return r.rec, r.err
	}
}

func (e *Engine) recognize(path, lang string) (scanning.Recognition, error) {
	c := e.clientFactory()
	defer c.Close()

	if e.tessdata != "" {
		if err := c.SetTessdataPrefix(e.tessdata); err != nil {
			return scanning.Recognition{}, fmt.Errorf("%w: set tessdata: %v", scanning.ErrUnavailable, err)
		}
	}
	if err := c.SetLanguage(Languages(lang)...); err != nil {
		return scanning.Recognition{}, fmt.Errorf("%w: set languages: %v", scanning.ErrUnavailable, err)
	}
	if err := c.SetPageSegMode(e.pageSegMode); err != nil {
		return scanning.Recognition{}, fmt.Errorf("set page segmentation: %w", err)
	}
	if err := c.SetImage(path); err != nil {
		return scanning.Recognition{}, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		// missing traineddata surfaces here, at init time
		return scanning.Recognition{}, fmt.Errorf("%w: recognize text: %v", scanning.ErrUnavailable, err)
	}

	return scanning.Recognition{Text: text, Confidence: meanWordConfidence(c)}, nil
}

func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}

// Close is a no-op; clients are released after every call.
func (e *Engine) Close() error {
	return nil
}

// Languages splits a "fra+eng" identifier into the list gosseract expects.
func Languages(lang string) []string {
	var out []string
	for _, l := range strings.Split(lang, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return []string{DefaultLanguage}
	}
	return out
}
