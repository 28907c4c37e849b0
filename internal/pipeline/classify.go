package pipeline

// Status is the classification of a finished run.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusPartial    Status = "partial"
	StatusAmountOnly Status = "amount_only"
	StatusFailure    Status = "failure"
)

// Score thresholds. Scores are compared unclamped.
const (
	GoodScore        = 60
	CloudAcceptScore = 30
	SuccessScore     = 50
	PartialScore     = 25
)

// Classify maps a final score to a status. A low score still succeeds
// when a total was recovered.
func Classify(score int, hasTotal bool) Status {
	switch {
	case score >= SuccessScore:
		return StatusSuccess
	case score >= PartialScore:
		return StatusPartial
	case hasTotal:
		return StatusAmountOnly
	default:
		return StatusFailure
	}
}

// Accepted reports whether a run with this status produces a record.
func (s Status) Accepted() bool {
	return s != StatusFailure
}

var localMessages = map[Status]string{
	StatusSuccess:    "Receipt read successfully",
	StatusPartial:    "Receipt partially read, please check the extracted fields",
	StatusAmountOnly: "Only the total could be read, with low confidence; please check it",
	StatusFailure:    "Receipt could not be read, please enter it manually",
}

var cloudMessages = map[Status]string{
	StatusSuccess:    "Receipt read successfully by cloud OCR",
	StatusPartial:    "Receipt partially read by cloud OCR, please check the extracted fields",
	StatusAmountOnly: "Total detected by cloud OCR, please check the other fields",
	StatusFailure:    localMessages[StatusFailure],
}

// Message returns the user-facing text for a status.
func Message(s Status, cloud bool) string {
	if cloud {
		return cloudMessages[s]
	}
	return localMessages[s]
}

// cloudMessage picks the message for an accepted cloud result. Below the
// success score a recovered total is reported as detected even when the
// other fields lift the score into the partial band.
func cloudMessage(status Status, hasTotal bool) string {
	if status != StatusSuccess && hasTotal {
		return cloudMessages[StatusAmountOnly]
	}
	return cloudMessages[status]
}
