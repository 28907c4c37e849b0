package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/receipt-scanner/internal/extraction"
	"github.com/zombor/receipt-scanner/internal/pipeline"
	"github.com/zombor/receipt-scanner/internal/receipt"
)

// scanResult is one line of scan output
type scanResult struct {
	File       string             `json:"file"`
	Status     pipeline.Status    `json:"status"`
	Message    string             `json:"message"`
	Confidence int                `json:"confidence"`
	Backend    string             `json:"backend,omitempty"`
	Variant    string             `json:"variant,omitempty"`
	Fields     *extraction.Fields `json:"fields,omitempty"`
	Error      string             `json:"error,omitempty"`
}

var errScanFailures = errors.New("some receipts could not be processed")

func scanFiles(ctx context.Context, cfg config, workers int, files []string, out io.Writer) error {
	if len(files) == 0 {
		return errors.New("scan: at least one file is required")
	}

	orchestrator, closeBackends, err := newOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackends()

	return scanAll(ctx, orchestrator, workers, files, out)
}

// scanAll runs one independent pipeline per file on a bounded pool and
// writes results as JSON lines in completion order.
func scanAll(ctx context.Context, runner receipt.Runner, workers int, files []string, out io.Writer) error {
	var (
		mu     sync.Mutex
		enc    = json.NewEncoder(out)
		failed int
	)
	emit := func(r scanResult) {
		mu.Lock()
		defer mu.Unlock()
		if r.Error != "" {
			failed++
		}
		if err := enc.Encode(r); err != nil {
			slog.Error("Error writing result", "file", r.File, "error", err)
		}
	}

	var g errgroup.Group
	g.SetLimit(max(1, workers))
	for _, file := range files {
		g.Go(func() error {
			emit(scanOne(ctx, runner, file))
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errScanFailures, failed, len(files))
	}
	return nil
}

func scanOne(ctx context.Context, runner receipt.Runner, file string) scanResult {
	outcome, err := runner.Run(ctx, file)
	if errors.Is(err, pipeline.ErrNoCandidate) {
		return scanResult{
			File:    file,
			Status:  pipeline.StatusFailure,
			Message: pipeline.Message(pipeline.StatusFailure, false),
		}
	}
	if err != nil {
		return scanResult{File: file, Status: pipeline.StatusFailure, Error: err.Error()}
	}

	return scanResult{
		File:       file,
		Status:     outcome.Status,
		Message:    outcome.Message,
		Confidence: outcome.Best.Score(),
		Backend:    outcome.Best.Backend,
		Variant:    outcome.Best.Variant,
		Fields:     outcome.Best.Fields,
	}
}
