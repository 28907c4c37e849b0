package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-scanner/internal/pipeline"
)

// recentCount is how many records Stats reports
const recentCount = 5

// ErrInvalidAmount is returned for a negative corrected total
var ErrInvalidAmount = errors.New("amount must not be negative")

var (
	reFilenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reFilenameSpaces = regexp.MustCompile(`\s+`)
)

// Runner runs the OCR pipeline over one image
type Runner interface {
	Run(ctx context.Context, imagePath string) (*pipeline.Outcome, error)
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt operations
type Service struct {
	db          DB
	runner      Runner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, runner Runner, storage Storage) *Service {
	return NewServiceWithDeps(db, runner, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, runner Runner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		runner:      runner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = reFilenameUnsafe.ReplaceAllString(base, "")
	base = strings.TrimSpace(reFilenameSpaces.ReplaceAllString(base, " "))

	// phones generate very long names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ProcessReceipt stores the upload, runs the pipeline over it and persists
// a record when the outcome is accepted. A rejected or failed run removes
// the stored image and returns a Result without a record. Input errors and
// cancellation are returned as errors and persist nothing.
func (s *Service) ProcessReceipt(ctx context.Context, owner, filename string, data []byte, contentType string) (*Result, error) {
	if owner == "" {
		owner = AnonymousOwner
	}
	id := s.idGenerator.Generate()

	savedPath, err := s.storage.Save(owner, fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("%w: saving file: %v", ErrPersistence, err)
	}

	outcome, err := s.runner.Run(ctx, s.storage.Path(savedPath))
	if err == nil {
		// a cancelled caller never gets a record
		err = ctx.Err()
	}
	if err != nil {
		s.discard(savedPath)
		if errors.Is(err, pipeline.ErrNoCandidate) {
			slog.Warn("No OCR candidate for receipt", "filename", filename, "error", err)
			return &Result{Status: pipeline.StatusFailure, Message: pipeline.Message(pipeline.StatusFailure, false)}, nil
		}
		slog.Error("Failed to process receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("processing receipt: %w", err)
	}

	result := &Result{
		Status:     outcome.Status,
		Message:    outcome.Message,
		Confidence: outcome.Best.Score(),
		Attempts:   outcome.Attempts,
		DurationMS: outcome.Duration.Milliseconds(),
	}
	if !outcome.Accepted() {
		s.discard(savedPath)
		return result, nil
	}

	now := s.timeSource.Now()
	best := outcome.Best
	record := &Record{
		ID:          id,
		Owner:       owner,
		RawText:     best.RawText,
		CleanedText: best.Fields.CleanedText,
		Total:       best.Fields.Total,
		Date:        best.Fields.Date,
		Merchant:    best.Fields.Merchant,
		VAT:         best.Fields.VAT,
		LineItems:   best.Fields.LineItems,
		Confidence:  best.Score(),
		Status:      outcome.Status,
		Message:     outcome.Message,
		Backend:     best.Backend,
		Variant:     best.Variant,
		Filename:    savedPath,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveRecord(record); err != nil {
		s.discard(savedPath)
		return nil, fmt.Errorf("saving record to database: %w", err)
	}

	result.Record = record
	return result, nil
}

func (s *Service) discard(path string) {
	if err := s.storage.Delete(path); err != nil {
		slog.Warn("Failed to delete file", "filename", path, "error", err)
	}
}

// GetRecord retrieves a record by ID
func (s *Service) GetRecord(owner, id string) (*Record, error) {
	record, err := s.db.GetRecord(owner, id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// ListRecords returns all of an owner's records, newest first
func (s *Service) ListRecords(owner string) ([]*Record, error) {
	records, err := s.db.ListRecords(owner)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// DeleteRecord removes a record and its file
func (s *Service) DeleteRecord(owner, id string) error {
	record, err := s.db.GetRecord(owner, id)
	if err != nil {
		return fmt.Errorf("getting record for deletion: %w", err)
	}

	// Log error but continue with database deletion
	s.discard(record.Filename)

	if err := s.db.DeleteRecord(owner, id); err != nil {
		return fmt.Errorf("deleting record from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the original image of a record
func (s *Service) GetReceiptFile(owner, id string) ([]byte, string, error) {
	record, err := s.db.GetRecord(owner, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting record: %w", err)
	}

	data, err := s.storage.Get(record.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, record.ContentType, nil
}

// CorrectTotal replaces the extracted total with a user-supplied amount.
// This is the only mutation a record allows.
func (s *Service) CorrectTotal(owner, id string, amount decimal.Decimal) (*Record, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	record, err := s.db.GetRecord(owner, id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}

	record.Total = decimal.NewNullDecimal(amount.Round(2))
	record.TotalCorrected = true
	record.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveRecord(record); err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	return record, nil
}

// Stats counts an owner's records, sums their totals and lists the most
// recent ones
func (s *Service) Stats(owner string) (*Stats, error) {
	records, err := s.db.ListRecords(owner)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	stats := &Stats{Count: len(records), Total: decimal.Zero}
	for _, r := range records {
		if r.Total.Valid {
			stats.Total = stats.Total.Add(r.Total.Decimal)
		}
	}
	stats.Recent = records[:min(recentCount, len(records))]
	return stats, nil
}
