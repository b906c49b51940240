package domain

import "time"

// FailureEntry is one line of the failure manifest.
type FailureEntry struct {
	ItemID     ItemID    `json:"item_id"`
	ErrorKind  ErrorKind `json:"error_kind"`
	StatusCode int       `json:"status_code,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Attempts   int       `json:"attempts"`
	Stage      Stage     `json:"stage"`
}

// FailureManifest lists every failed item of a run, ordered by id, so a
// later run can resume from it. NotStarted holds the ids an interrupted or
// aborted run never reached.
type FailureManifest struct {
	RunID      string         `json:"run_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Entries    []FailureEntry `json:"entries"`
	NotStarted []ItemID       `json:"not_started,omitempty"`
}

// IDs returns the failed ids in manifest order followed by the unstarted ones.
func (m FailureManifest) IDs() []ItemID {
	ids := make([]ItemID, 0, len(m.Entries)+len(m.NotStarted))
	for _, e := range m.Entries {
		ids = append(ids, e.ItemID)
	}
	return append(ids, m.NotStarted...)
}

// WriterStats reports how the batch writer fared.
type WriterStats struct {
	Batches        int
	RecordsWritten int
	RecordsLost    int
	FlushRetries   int
}

// RunSummary is the final report of an ingestion run.
type RunSummary struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Elapsed     time.Duration
	Enumerated  int
	Processed   int
	Persisted   int
	Filtered    int
	Failed      int
	FilteredBy  map[string]int
	FailedBy    map[ErrorKind]int
	SuccessRate float64
	Writer      WriterStats
	Interrupted bool
	NotStarted  int
	ManifestKey string
	FatalError  string
}

// ProgressSnapshot is the periodic progress view emitted while a run is in flight.
type ProgressSnapshot struct {
	RunID       string
	Total       int
	Processed   int
	Persisted   int
	Filtered    int
	Failed      int
	SuccessRate float64
	Elapsed     time.Duration
	PerSecond   float64
	At          time.Time
}
