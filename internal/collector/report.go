package collector

import (
	"time"

	"github.com/candle-tools/go-candle-ingest/internal/models"
)

// Status classifies the outcome of one timeframe in a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// TimeframeResult records what happened to a single timeframe.
type TimeframeResult struct {
	Timeframe models.Timeframe
	Status    Status
	Fetched   int // rows obtained from the API or derived from source bars
	Stored    int // rows newly added to the local store
	Uploaded  int // rows appended to the spreadsheet
	Duration  time.Duration
	Reason    string // populated for skips
	Err       error  // populated for failures
}

// Report summarizes one collection run.
type Report struct {
	RunID     string
	Pair      string
	StartedAt time.Time
	Duration  time.Duration
	Results   []TimeframeResult
}

// Succeeded counts timeframes that completed.
func (r *Report) Succeeded() int { return r.countStatus(StatusSuccess) }

// Skipped counts timeframes that were passed over.
func (r *Report) Skipped() int { return r.countStatus(StatusSkipped) }

// Failed counts timeframes that errored.
func (r *Report) Failed() int { return r.countStatus(StatusFailed) }

// TotalAdded sums the rows newly added to the store across timeframes.
func (r *Report) TotalAdded() int {
	total := 0
	for _, res := range r.Results {
		total += res.Stored
	}
	return total
}

func (r *Report) countStatus(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}
