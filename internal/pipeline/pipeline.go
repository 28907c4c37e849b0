// Package pipeline sequences OCR backends, languages and image variants
// for one receipt, stopping as soon as a result is good enough.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/zombor/receipt-scanner/internal/extraction"
	"github.com/zombor/receipt-scanner/internal/preprocess"
	"github.com/zombor/receipt-scanner/internal/scanning"
)

// ErrNoCandidate is returned when every recognition attempt failed.
var ErrNoCandidate = errors.New("no recognition attempt succeeded")

// Pass names, in the order they run.
const (
	PassCloud        = "cloud"
	PassFast         = "fast"
	PassPreprocessed = "preprocessed"
)

const originalVariant = "original"

// Preprocessor produces the enhanced variants tried after the fast pass.
type Preprocessor interface {
	CreateVariants(ctx context.Context, src, dir string) ([]preprocess.Variant, error)
}

// Attempt is one recognition with its extraction result.
type Attempt struct {
	Pass              string
	Backend           string
	Variant           string
	Language          string
	RawText           string
	BackendConfidence float64
	Fields            *extraction.Fields
}

// Score is the extraction confidence of the attempt.
func (a *Attempt) Score() int {
	return a.Fields.Confidence
}

// Outcome is the classified result of a run.
type Outcome struct {
	Status   Status
	Message  string
	Best     *Attempt
	Attempts int
	Image    *preprocess.Image
	Duration time.Duration
}

// Accepted reports whether the outcome should be persisted.
func (o *Outcome) Accepted() bool {
	return o.Status.Accepted()
}

type Config struct {
	// Cloud is tried first when set.
	Cloud scanning.Backend
	// Local is always available.
	Local        scanning.Backend
	Preprocessor Preprocessor
	Extractor    *extraction.Extractor
	// ScratchDir holds one private directory per run; empty uses os.TempDir.
	ScratchDir string
	// FastLanguages are tried on the original image, in order.
	FastLanguages []string
	// VariantLanguage is used for every preprocessed variant.
	VariantLanguage string
	// AttemptTimeout bounds each backend call; zero disables it.
	AttemptTimeout time.Duration
	GoodScore      int
	Logger         *slog.Logger
}

type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if len(cfg.FastLanguages) == 0 {
		cfg.FastLanguages = []string{"fra", "fra+eng"}
	}
	if cfg.VariantLanguage == "" {
		cfg.VariantLanguage = cfg.FastLanguages[0]
	}
	if cfg.GoodScore <= 0 {
		cfg.GoodScore = GoodScore
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extraction.NewExtractor(nil, cfg.Logger)
	}
	if cfg.Preprocessor == nil {
		cfg.Preprocessor = preprocess.NewPreprocessor(nil, cfg.Logger)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// run holds the state of one Run call.
type run struct {
	*Orchestrator
	logger   *slog.Logger
	image    *preprocess.Image
	best     *Attempt
	attempts int
}

// Run processes the receipt at imagePath. Input errors wrap
// preprocess.ErrInput; cancellation returns the context's error and no
// outcome. Every scratch file is removed before Run returns.
func (o *Orchestrator) Run(ctx context.Context, imagePath string) (*Outcome, error) {
	start := time.Now()

	dir, err := os.MkdirTemp(o.cfg.ScratchDir, "receipt-run-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			o.logger.Warn("failed to remove scratch directory", "dir", dir, "error", err)
		}
	}()

	img, err := preprocess.Normalize(imagePath, dir)
	if err != nil {
		return nil, err
	}

	r := &run{Orchestrator: o, image: img, logger: o.logger.With("image", imagePath)}
	r.logger.Debug("image normalized", "format", img.Format, "width", img.Width, "height", img.Height)

	outcome, err := r.execute(ctx, dir)
	if err != nil {
		return nil, err
	}
	outcome.Image = img
	outcome.Attempts = r.attempts
	outcome.Duration = time.Since(start)

	r.logger.Info("receipt processed",
		"status", outcome.Status,
		"attempts", outcome.Attempts,
		"duration", outcome.Duration,
	)
	return outcome, nil
}

func (r *run) execute(ctx context.Context, dir string) (*Outcome, error) {
	if r.cfg.Cloud != nil {
		if a := r.attempt(ctx, PassCloud, r.cfg.Cloud, originalVariant, r.image.Path, ""); a != nil {
			if a.Fields.HasTotal() || a.Score() >= CloudAcceptScore {
				r.logger.Info("cloud result accepted", "score", a.Score())
				return outcomeFor(a, true), nil
			}
			r.logger.Info("cloud result below bar, falling back to local OCR", "score", a.Score())
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	for _, lang := range r.cfg.FastLanguages {
		r.consider(r.attempt(ctx, PassFast, r.cfg.Local, originalVariant, r.image.Path, lang))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.good() {
			r.logger.Info("early exit after fast pass", "language", lang, "score", r.best.Score())
			return r.finish()
		}
	}

	variants, err := r.cfg.Preprocessor.CreateVariants(ctx, r.image.Path, dir)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		r.logger.Warn("no image variants produced")
		if r.best == nil {
			variants = []preprocess.Variant{{Label: originalVariant, Path: r.image.Path}}
		}
	}

	for _, v := range variants {
		r.consider(r.attempt(ctx, PassPreprocessed, r.cfg.Local, v.Label, v.Path, r.cfg.VariantLanguage))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.good() {
			r.logger.Info("early exit after preprocessed variant", "variant", v.Label, "score", r.best.Score())
			break
		}
	}

	return r.finish()
}

// attempt runs one recognition; a failed call is logged and yields nil.
func (r *run) attempt(ctx context.Context, pass string, backend scanning.Backend, variant, path, lang string) *Attempt {
	r.attempts++
	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
	}

	logger := r.logger.With("pass", pass, "backend", backend.Name(), "variant", variant, "language", lang)
	rec, err := backend.Recognize(ctx, path, lang)
	if err != nil {
		logger.Warn("recognition failed", "error", err)
		return nil
	}

	a := &Attempt{
		Pass:              pass,
		Backend:           backend.Name(),
		Variant:           variant,
		Language:          lang,
		RawText:           rec.Text,
		BackendConfidence: rec.Confidence,
		Fields:            r.cfg.Extractor.Extract(rec.Text),
	}
	logger.Info("recognition attempt", "score", a.Score(), "backend_confidence", rec.Confidence)
	return a
}

// consider keeps the highest-scoring attempt; ties keep the earlier one.
func (r *run) consider(a *Attempt) {
	if a != nil && (r.best == nil || a.Score() > r.best.Score()) {
		r.best = a
	}
}

func (r *run) good() bool {
	return r.best != nil && r.best.Score() >= r.cfg.GoodScore
}

func (r *run) finish() (*Outcome, error) {
	if r.best == nil {
		return nil, fmt.Errorf("%w: %d attempts", ErrNoCandidate, r.attempts)
	}
	return outcomeFor(r.best, false), nil
}

func outcomeFor(a *Attempt, cloud bool) *Outcome {
	status := Classify(a.Score(), a.Fields.HasTotal())
	msg := Message(status, false)
	if cloud {
		msg = cloudMessage(status, a.Fields.HasTotal())
	}
	return &Outcome{
		Status:  status,
		Message: msg,
		Best:    a,
	}
}
