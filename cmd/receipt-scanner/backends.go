package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zombor/receipt-scanner/internal/extraction"
	"github.com/zombor/receipt-scanner/internal/pipeline"
	"github.com/zombor/receipt-scanner/internal/preprocess"
	"github.com/zombor/receipt-scanner/internal/scanning"
	"github.com/zombor/receipt-scanner/internal/scanning/tesseract"
)

// newCloudBackend returns nil when the selected cloud backend has no
// credential; a missing key is not an error.
func newCloudBackend(ctx context.Context, cfg config) (scanning.Backend, error) {
	switch cfg.cloud {
	case "none", "":
		return nil, nil
	case "vision":
		if cfg.visionKey == "" {
			slog.Info("No Vision API key, cloud OCR disabled")
			return nil, nil
		}
		slog.Info("Initializing Cloud Vision backend...")
		return scanning.NewVision(ctx, cfg.visionKey)
	case "gemini":
		if cfg.geminiKey == "" {
			slog.Info("No Gemini API key, cloud OCR disabled")
			return nil, nil
		}
		slog.Info("Initializing Gemini backend...", "model", cfg.geminiModel)
		return scanning.NewGemini(ctx, cfg.geminiKey, cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama backend...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel), nil
	default:
		return nil, fmt.Errorf("invalid cloud backend %q: want vision, gemini, ollama or none", cfg.cloud)
	}
}

func loadRules(path string) (*extraction.Rules, error) {
	if path == "" {
		return extraction.DefaultRules(), nil
	}
	rules, err := extraction.LoadRules(path)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	slog.Info("Loaded extraction rules", "path", path)
	return rules, nil
}

// newOrchestrator wires the pipeline. The returned func closes the backends.
func newOrchestrator(ctx context.Context, cfg config) (*pipeline.Orchestrator, func(), error) {
	rules, err := loadRules(cfg.rulesPath)
	if err != nil {
		return nil, nil, err
	}

	cloud, err := newCloudBackend(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing cloud backend: %w", err)
	}
	local := tesseract.NewEngine(cfg.tessdata, cfg.ocrConcurrency)

	fast := []string{cfg.primaryLang}
	if cfg.secondaryLang != "" {
		fast = append(fast, cfg.primaryLang+"+"+cfg.secondaryLang)
	}

	orch := pipeline.New(pipeline.Config{
		Cloud:           cloud,
		Local:           local,
		Preprocessor:    preprocess.NewPreprocessor(nil, slog.Default()),
		Extractor:       extraction.NewExtractor(rules, slog.Default()),
		ScratchDir:      cfg.scratchDir,
		FastLanguages:   fast,
		VariantLanguage: cfg.primaryLang,
		AttemptTimeout:  cfg.attemptTimeout,
		GoodScore:       cfg.goodScore,
		Logger:          slog.Default(),
	})

	closeAll := func() {
		backends := []scanning.Backend{local}
		if cloud != nil {
			backends = append(backends, cloud)
		}
		var errs []error
		for _, b := range backends {
			errs = append(errs, b.Close())
		}
		if err := errors.Join(errs...); err != nil {
			slog.Warn("Failed to close OCR backends", "error", err)
		}
	}
	return orch, closeAll, nil
}
