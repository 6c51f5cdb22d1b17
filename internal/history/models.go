package history

import "time"

// Outcome is the final state of an upload attempt.
type Outcome string

const (
	OutcomePlaced   Outcome = "placed"
	OutcomeRejected Outcome = "rejected"
)

// ParseOutcome normalizes user input to an Outcome.
func ParseOutcome(value string) (Outcome, bool) {
	switch Outcome(value) {
	case OutcomePlaced, OutcomeRejected:
		return Outcome(value), true
	default:
		return "", false
	}
}

// Entry is one ledger row.
type Entry struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"request_id"`
	Filename    string    `json:"filename"`
	StagedPath  string    `json:"staged_path,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Year        string    `json:"year,omitempty"`
	Category    string    `json:"category,omitempty"`
	Outcome     Outcome   `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	Message     string    `json:"message,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter narrows List results. Zero values match everything; Limit <= 0
// applies DefaultListLimit.
type Filter struct {
	Outcome Outcome
	Limit   int
}

// DefaultListLimit caps List when the caller does not.
const DefaultListLimit = 50

// Stats summarizes the ledger.
type Stats struct {
	Total      int            `json:"total"`
	Placed     int            `json:"placed"`
	Rejected   int            `json:"rejected"`
	ByReason   map[string]int `json:"by_reason,omitempty"`
	ByCategory map[string]int `json:"by_category,omitempty"`
	LastUpload *time.Time     `json:"last_upload,omitempty"`
}
