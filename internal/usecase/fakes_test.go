package usecase

import (
	"context"
	"sync"
	"time"

	"GameHarvester/internal/domain"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func noSleep(context.Context, time.Duration) error { return nil }

type fakeEnrichment struct {
	mu    sync.Mutex
	calls map[domain.ItemID]int
	pages map[domain.ItemID]domain.RawEnrichment
	errs  map[domain.ItemID]error
}

func newFakeEnrichment() *fakeEnrichment {
	return &fakeEnrichment{
		calls: map[domain.ItemID]int{},
		pages: map[domain.ItemID]domain.RawEnrichment{},
		errs:  map[domain.ItemID]error{},
	}
}

func (f *fakeEnrichment) withReviews(id domain.ItemID, total int, tags ...string) *fakeEnrichment {
	f.pages[id] = domain.RawEnrichment{
		ItemID:  id,
		Title:   "Page " + id.String(),
		Tags:    tags,
		Reviews: &domain.ReviewStats{TotalReviewCount: intPtr(total), AllSummary: strPtr("Very Positive")},
	}
	return f
}

func (f *fakeEnrichment) FetchEnrichment(_ context.Context, id domain.ItemID) (domain.RawEnrichment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err, ok := f.errs[id]; ok {
		return domain.RawEnrichment{}, err
	}
	if page, ok := f.pages[id]; ok {
		return page, nil
	}
	return domain.RawEnrichment{ItemID: id, Title: "Untracked"}, nil
}

func (f *fakeEnrichment) callsFor(id domain.ItemID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeStructured struct {
	mu      sync.Mutex
	calls   map[domain.ItemID]int
	records map[domain.ItemID]domain.StructuredRecord
	errs    map[domain.ItemID]error
}

func newFakeStructured() *fakeStructured {
	return &fakeStructured{
		calls:   map[domain.ItemID]int{},
		records: map[domain.ItemID]domain.StructuredRecord{},
		errs:    map[domain.ItemID]error{},
	}
}

func (f *fakeStructured) withType(id domain.ItemID, itemType, name string) *fakeStructured {
	f.records[id] = domain.StructuredRecord{
		ItemID:      id,
		Type:        itemType,
		Name:        name,
		ReleaseDate: "9 Dec, 2020",
		Developers:  []string{"Studio"},
		Publishers:  []string{"Studio", "Label"},
		Genres:      []string{"RPG", "RPG", "Action"},
	}
	return f
}

func (f *fakeStructured) FetchStructured(_ context.Context, id domain.ItemID) (domain.StructuredRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err, ok := f.errs[id]; ok {
		return domain.StructuredRecord{}, err
	}
	if rec, ok := f.records[id]; ok {
		return rec, nil
	}
	return domain.StructuredRecord{ItemID: id, Type: "game", Name: "Generic"}, nil
}

func (f *fakeStructured) callsFor(id domain.ItemID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// memoryRepository records every batch it is given. failFirst makes the
// first n calls fail; failAfter makes every call after n successes fail.
type memoryRepository struct {
	mu        sync.Mutex
	batches   [][]domain.MergedGameRecord
	calls     int
	failFirst int
	failAfter int
	failIDs   map[domain.ItemID]bool
	err       error
}

func (m *memoryRepository) UpsertBatch(_ context.Context, records []domain.MergedGameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failFirst {
		return m.err
	}
	if m.failAfter > 0 && len(m.batches) >= m.failAfter {
		return m.err
	}
	for _, r := range records {
		if m.failIDs[r.ItemID] {
			return m.err
		}
	}
	batch := append([]domain.MergedGameRecord(nil), records...)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *memoryRepository) snapshot() [][]domain.MergedGameRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]domain.MergedGameRecord(nil), m.batches...)
}

func (m *memoryRepository) persistedIDs() []domain.ItemID {
	var ids []domain.ItemID
	for _, batch := range m.snapshot() {
		for _, r := range batch {
			ids = append(ids, r.ItemID)
		}
	}
	return ids
}

type staticIDs struct {
	ids []domain.ItemID
	err error
}

func (s staticIDs) Name() string { return "static" }

func (s staticIDs) Enumerate(_ context.Context, limit int) ([]domain.ItemID, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.ids) {
		return s.ids[:limit], nil
	}
	return s.ids, nil
}

type capturingSink struct {
	mu    sync.Mutex
	snaps []domain.ProgressSnapshot
}

func (c *capturingSink) Emit(s domain.ProgressSnapshot) {
	c.mu.Lock()
	c.snaps = append(c.snaps, s)
	c.mu.Unlock()
}

func (c *capturingSink) all() []domain.ProgressSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ProgressSnapshot(nil), c.snaps...)
}

type memoryManifests struct {
	mu        sync.Mutex
	manifests []domain.FailureManifest
}

func (m *memoryManifests) Write(_ context.Context, manifest domain.FailureManifest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests = append(m.manifests, manifest)
	return "failed_items_" + manifest.RunID + ".json", nil
}

func (m *memoryManifests) Read(context.Context, string) (domain.FailureManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manifests[len(m.manifests)-1], nil
}
