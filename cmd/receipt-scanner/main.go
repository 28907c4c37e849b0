package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-scanner/internal/pipeline"
	"github.com/zombor/receipt-scanner/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// config is shared by every subcommand
type config struct {
	scratchDir     string
	cloud          string
	visionKey      string
	geminiKey      string
	geminiModel    string
	ollamaURL      string
	ollamaModel    string
	tessdata       string
	primaryLang    string
	secondaryLang  string
	attemptTimeout time.Duration
	goodScore      int
	ocrConcurrency int
	rulesPath      string
	logFormat      string
	logLevel       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cfg config

	rootFlags := ff.NewFlagSet("receipt-scanner")
	rootFlags.StringVar(&cfg.scratchDir, 0, "scratch-dir", os.TempDir(), "Directory for per-run temporary images")
	rootFlags.StringVar(&cfg.cloud, 0, "cloud", "vision", "Cloud OCR backend tried first: vision, gemini, ollama or none")
	rootFlags.StringVar(&cfg.visionKey, 0, "vision-key", "", "Google Cloud Vision API key (or set GOOGLE_VISION_API_KEY env var)")
	rootFlags.StringVar(&cfg.geminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	rootFlags.StringVar(&cfg.geminiModel, 0, "gemini-model", "gemini-2.5-pro", "Google Gemini model name")
	rootFlags.StringVar(&cfg.ollamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	rootFlags.StringVar(&cfg.ollamaModel, 0, "ollama-model", "llava", "Ollama vision model name")
	rootFlags.StringVar(&cfg.tessdata, 0, "tessdata", "", "Tesseract tessdata directory (default: library lookup)")
	rootFlags.StringVar(&cfg.primaryLang, 0, "lang", "fra", "Primary Tesseract language")
	rootFlags.StringVar(&cfg.secondaryLang, 0, "secondary-lang", "eng", "Secondary Tesseract language, combined with the primary one")
	rootFlags.DurationVar(&cfg.attemptTimeout, 0, "attempt-timeout", 60*time.Second, "Timeout of a single recognition call")
	rootFlags.IntVar(&cfg.goodScore, 0, "good-score", pipeline.GoodScore, "Score that stops further attempts")
	rootFlags.IntVar(&cfg.ocrConcurrency, 0, "ocr-concurrency", 2, "Tesseract calls allowed to run at once")
	rootFlags.StringVar(&cfg.rulesPath, 0, "rules", "", "Extraction rules JSON file (default: built-in French rules)")
	rootFlags.StringVar(&cfg.logFormat, 0, "log-format", "text", "Log format: text or json")
	rootFlags.StringVar(&cfg.logLevel, 0, "log-level", "info", "Log level: debug, info, warn or error")
	rootFlags.StringLong("config", "", "Config file (plain 'flag value' lines)")
	showVersion := rootFlags.BoolLong("version", "Show version information")

	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	var (
		port        = serveFlags.IntLong("port", 8080, "HTTP server port")
		dbPath      = serveFlags.StringLong("db", "receipts.db", "Database file path")
		storagePath = serveFlags.StringLong("storage", "./receipts", "Storage directory path")
		authUser    = serveFlags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = serveFlags.StringLong("auth-pass", "", "Basic auth password (optional)")
	)

	scanFlags := ff.NewFlagSet("scan").SetParent(rootFlags)
	workers := scanFlags.IntLong("workers", 2, "Receipts processed concurrently")

	serveCmd := &ff.Command{
		Name:      "serve",
		Usage:     "receipt-scanner serve [FLAGS]",
		ShortHelp: "run the HTTP API",
		Flags:     serveFlags,
		Exec: func(ctx context.Context, _ []string) error {
			return serve(ctx, cfg, *port, *dbPath, *storagePath, receipt.BasicAuth{Username: *authUser, Password: *authPass})
		},
	}
	scanCmd := &ff.Command{
		Name:      "scan",
		Usage:     "receipt-scanner scan [FLAGS] FILE...",
		ShortHelp: "read receipts from disk and print one JSON outcome per file",
		Flags:     scanFlags,
		Exec: func(ctx context.Context, files []string) error {
			// every worker gets its own OCR slot
			if cfg.ocrConcurrency < *workers {
				cfg.ocrConcurrency = *workers
			}
			return scanFiles(ctx, cfg, *workers, files, stdout)
		},
	}
	rootCmd := &ff.Command{
		Name:        "receipt-scanner",
		Usage:       "receipt-scanner [FLAGS] <SUBCOMMAND>",
		Flags:       rootFlags,
		Subcommands: []*ff.Command{serveCmd, scanCmd},
		// serve is the default, as before subcommands existed
		Exec: func(ctx context.Context, _ []string) error {
			return serveCmd.Exec(ctx, nil)
		},
	}

	err := rootCmd.Parse(args,
		ff.WithEnvVarPrefix("RECEIPT_SCANNER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Command(rootCmd.GetSelected()))
		return err
	}

	if *showVersion {
		fmt.Fprintln(stdout, version)
		return nil
	}

	logger, err := newLogger(stderr, cfg.logFormat, cfg.logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if cfg.visionKey == "" {
		cfg.visionKey = os.Getenv("GOOGLE_VISION_API_KEY")
	}
	if cfg.geminiKey == "" {
		cfg.geminiKey = os.Getenv("GEMINI_API_KEY")
	}

	return rootCmd.Run(ctx)
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: want text or json", format)
	}
}

func serve(ctx context.Context, cfg config, port int, dbPath, storagePath string, basicAuth receipt.BasicAuth) error {
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	orchestrator, closeBackends, err := newOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackends()

	server := receipt.NewServer(receipt.NewService(db, orchestrator, store), basicAuth)
	if basicAuth.Username != "" || basicAuth.Password != "" {
		slog.Info("Basic auth enabled", "user", basicAuth.Username)
	}

	return server.Start(ctx, fmt.Sprintf(":%d", port))
}
