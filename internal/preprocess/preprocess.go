// Package preprocess turns a receipt photo into the enhanced variants the
// OCR pipeline retries with when the fast pass is not good enough.
package preprocess

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// VariantSpec describes one enhancement recipe. A zero Threshold keeps
// the greyscale image instead of binarizing it.
type VariantSpec struct {
	Label     string
	MaxWidth  int
	MaxHeight int
	Threshold uint8
	Sharpen   float64
}

// Variant is a preprocessed image written to the run's scratch directory.
type Variant struct {
	Label string
	Path  string
}

// DefaultVariants are tried in this order.
var DefaultVariants = []VariantSpec{
	{Label: "light", MaxWidth: 2500, MaxHeight: 3500, Sharpen: 1},
	{Label: "binarized", MaxWidth: 2500, MaxHeight: 3500, Threshold: 130, Sharpen: 1},
	{Label: "high-contrast", MaxWidth: 3000, MaxHeight: 4000, Threshold: 100, Sharpen: 1.5},
}

// stretchClip is the share of darkest and brightest pixels ignored when
// stretching contrast.
const stretchClip = 0.01

type Preprocessor struct {
	variants []VariantSpec
	logger   *slog.Logger
}

func NewPreprocessor(variants []VariantSpec, logger *slog.Logger) *Preprocessor {
	if len(variants) == 0 {
		variants = DefaultVariants
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{variants: variants, logger: logger}
}

// CreateVariants writes every configured variant of src into dir. A
// variant whose processing fails is logged and skipped, so the result may
// be shorter than the configured list or empty. The only error returned is
// the context's.
func (p *Preprocessor) CreateVariants(ctx context.Context, src, dir string) ([]Variant, error) {
	img, err := imaging.Open(src)
	if err != nil {
		p.logger.Warn("could not open image for preprocessing", "path", src, "error", err)
		return nil, ctx.Err()
	}

	var out []Variant
	for _, spec := range p.variants {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := filepath.Join(dir, fmt.Sprintf("variant-%s.png", spec.Label))
		if err := imaging.Save(Enhance(img, spec), path); err != nil {
			p.logger.Warn("variant failed", "variant", spec.Label, "error", err)
			continue
		}
		p.logger.Debug("variant written", "variant", spec.Label, "path", path)
		out = append(out, Variant{Label: spec.Label, Path: path})
	}
	return out, nil
}

// Enhance applies the recipe: fit inside the bounds (enlarging small
// images), greyscale, contrast stretch, sharpen, and optional threshold.
func Enhance(img image.Image, spec VariantSpec) *image.NRGBA {
	w, h := fitWithin(img.Bounds().Dx(), img.Bounds().Dy(), spec.MaxWidth, spec.MaxHeight)
	out := imaging.Resize(img, w, h, imaging.Lanczos)
	out = imaging.Grayscale(out)
	out = stretchContrast(out)
	if spec.Sharpen > 0 {
		out = imaging.Sharpen(out, spec.Sharpen)
	}
	if spec.Threshold > 0 {
		out = threshold(out, spec.Threshold)
	}
	return out
}

// fitWithin returns the largest size with the same aspect ratio that fits
// inside maxW x maxH. Non-positive bounds leave that axis unconstrained.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := math.Inf(1)
	if maxW > 0 {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 {
		scale = math.Min(scale, float64(maxH)/float64(h))
	}
	if math.IsInf(scale, 1) {
		return w, h
	}
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	return nw, nh
}

// stretchContrast maps the 1st..99th percentile of a greyscale image onto
// the full 0..255 range.
func stretchContrast(img *image.NRGBA) *image.NRGBA {
	var hist [256]int
	total := 0
	for i := 0; i < len(img.Pix); i += 4 {
		hist[img.Pix[i]]++
		total++
	}
	if total == 0 {
		return img
	}

	clip := int(float64(total) * stretchClip)
	lo, hi := 0, 255
	for n := 0; lo < 255; lo++ {
		n += hist[lo]
		if n > clip {
			break
		}
	}
	for n := 0; hi > 0; hi-- {
		n += hist[hi]
		if n > clip {
			break
		}
	}
	if hi <= lo {
		return img
	}

	span := float64(hi - lo)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := clamp((float64(c.R) - float64(lo)) * 255 / span)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

func threshold(img *image.NRGBA, level uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if c.R >= level {
			return color.NRGBA{R: 255, G: 255, B: 255, A: c.A}
		}
		return color.NRGBA{A: c.A}
	})
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
