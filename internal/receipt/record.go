package receipt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-scanner/internal/extraction"
	"github.com/zombor/receipt-scanner/internal/pipeline"
)

// AnonymousOwner owns every record when authentication is disabled.
const AnonymousOwner = "anonymous"

// Record is a persisted, accepted receipt scan. Filename is the storage
// reference of the original image; TotalCorrected is set once the user
// overrides the extracted total.
type Record struct {
	ID             string                `json:"id"`
	Owner          string                `json:"owner"`
	RawText        string                `json:"raw_text"`
	CleanedText    string                `json:"cleaned_text"`
	Total          decimal.NullDecimal   `json:"total"`
	Date           *extraction.Date      `json:"date,omitempty"`
	Merchant       string                `json:"merchant,omitempty"`
	VAT            decimal.NullDecimal   `json:"vat"`
	LineItems      []extraction.LineItem `json:"line_items"`
	Confidence     int                   `json:"confidence"`
	Status         pipeline.Status       `json:"status"`
	Message        string                `json:"message"`
	Backend        string                `json:"backend"`
	Variant        string                `json:"variant"`
	Filename       string                `json:"filename"`
	ContentType    string                `json:"content_type"`
	TotalCorrected bool                  `json:"total_corrected,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Result is what an upload reports back, accepted or not
type Result struct {
	Record     *Record         `json:"record,omitempty"`
	Status     pipeline.Status `json:"status"`
	Message    string          `json:"message"`
	Confidence int             `json:"confidence"`
	Attempts   int             `json:"attempts"`
	DurationMS int64           `json:"duration_ms"`
}

// Stats summarizes an owner's records
type Stats struct {
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
	Recent []*Record       `json:"recent"`
}
