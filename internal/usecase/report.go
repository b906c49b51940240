package usecase

import (
	"sort"
	"sync"
	"time"

	"GameHarvester/internal/domain"
)

// RunReport accumulates outcomes for the lifetime of a run. Safe for
// concurrent use.
type RunReport struct {
	runID     string
	startedAt time.Time

	mu         sync.Mutex
	enumerated int
	persisted  int
	filtered   map[string]int
	failed     map[domain.ErrorKind]int
	failures   []domain.Failure
	pending    map[domain.ItemID]struct{}
}

// NewRunReport starts an empty report.
func NewRunReport(runID string, startedAt time.Time) *RunReport {
	return &RunReport{
		runID:     runID,
		startedAt: startedAt,
		filtered:  map[string]int{},
		failed:    map[domain.ErrorKind]int{},
	}
}

// SetEnumerated records how many ids the source produced.
func (r *RunReport) SetEnumerated(n int) {
	r.mu.Lock()
	r.enumerated = n
	r.mu.Unlock()
}

// SetPending records the enumerated ids. Ids without an outcome when the
// manifest is built are listed as not started.
func (r *RunReport) SetPending(ids []domain.ItemID) {
	pending := make(map[domain.ItemID]struct{}, len(ids))
	for _, id := range ids {
		pending[id] = struct{}{}
	}

	r.mu.Lock()
	r.enumerated = len(ids)
	r.pending = pending
	r.mu.Unlock()
}

// Record folds one terminal outcome into the report.
func (r *RunReport) Record(outcome domain.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, outcome.ID())
	switch o := outcome.(type) {
	case domain.Persisted:
		r.persisted++
	case domain.Filtered:
		r.filtered[o.Reason]++
	case domain.Failed:
		r.failed[o.Failure.Kind]++
		r.failures = append(r.failures, o.Failure)
	}
}

// MarkLost turns persisted outcomes into storage failures for records that
// never reached storage.
func (r *RunReport) MarkLost(ids []domain.ItemID, cause error) {
	if len(ids) == 0 {
		return
	}
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if r.persisted > 0 {
			r.persisted--
		}
		r.failed[domain.KindStorageUnavailable]++
		r.failures = append(r.failures, domain.Failure{
			ItemID: id,
			Kind:   domain.KindStorageUnavailable,
			Detail: detail,
			Stage:  domain.StageStorage,
		})
	}
}

// Summary snapshots the counters as of finishedAt.
func (r *RunReport) Summary(finishedAt time.Time) domain.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := domain.RunSummary{
		RunID:      r.runID,
		StartedAt:  r.startedAt,
		FinishedAt: finishedAt,
		Elapsed:    finishedAt.Sub(r.startedAt),
		Enumerated: r.enumerated,
		Persisted:  r.persisted,
		FilteredBy: make(map[string]int, len(r.filtered)),
		FailedBy:   make(map[domain.ErrorKind]int, len(r.failed)),
	}
	for reason, n := range r.filtered {
		summary.FilteredBy[reason] = n
		summary.Filtered += n
	}
	for kind, n := range r.failed {
		summary.FailedBy[kind] = n
		summary.Failed += n
	}
	summary.Processed = summary.Persisted + summary.Filtered + summary.Failed
	summary.SuccessRate = successRate(summary.Persisted, summary.Processed)
	if r.enumerated > summary.Processed {
		summary.NotStarted = r.enumerated - summary.Processed
	}
	return summary
}

// Manifest lists every failure and every unstarted id, each ordered by item id.
func (r *RunReport) Manifest(createdAt time.Time) domain.FailureManifest {
	r.mu.Lock()
	var notStarted []domain.ItemID
	for id := range r.pending {
		notStarted = append(notStarted, id)
	}
	entries := make([]domain.FailureEntry, 0, len(r.failures))
	for _, f := range r.failures {
		entries = append(entries, domain.FailureEntry{
			ItemID:     f.ItemID,
			ErrorKind:  f.Kind,
			StatusCode: f.StatusCode,
			Detail:     f.Detail,
			Attempts:   f.Attempts,
			Stage:      f.Stage,
		})
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ItemID < entries[j].ItemID
	})
	sort.Slice(notStarted, func(i, j int) bool {
		return notStarted[i] < notStarted[j]
	})
	return domain.FailureManifest{RunID: r.runID, CreatedAt: createdAt, Entries: entries, NotStarted: notStarted}
}

// Aggregate builds a summary over outcomes already in hand.
func Aggregate(runID string, startedAt, finishedAt time.Time, outcomes ...domain.Outcome) domain.RunSummary {
	report := NewRunReport(runID, startedAt)
	report.SetEnumerated(len(outcomes))
	for _, o := range outcomes {
		report.Record(o)
	}
	return report.Summary(finishedAt)
}

func successRate(persisted, processed int) float64 {
	if processed == 0 {
		return 0
	}
	return float64(persisted) / float64(processed)
}
