package storage

import "time"

// Analysis statuses.
const (
	StatusRelayed = "relayed"
	StatusFailed  = "failed"
)

// AnalysisRecord is one handled message and the outcome of its pipeline run.
type AnalysisRecord struct {
	ID          int64
	MessageID   int64
	ChatID      int64
	MessageText string
	Address     *string
	Platform    *string
	CoinID      *string
	TokenName   *string
	Resolved    bool
	Reply       *string
	Status      string
	Error       *string
	CreatedAt   time.Time
}
