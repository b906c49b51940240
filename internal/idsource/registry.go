// Package idsource resolves the catalog id sources a run can draw from.
package idsource

import (
	"context"
	"fmt"
	"sort"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
)

// Registry keeps a mapping from source names to their implementations.
type Registry struct {
	sources map[string]ports.IDSource
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]ports.IDSource{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(source ports.IDSource) {
	if r.sources == nil {
		r.sources = map[string]ports.IDSource{}
	}
	r.sources[source.Name()] = source
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.IDSource, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("id source %s is not registered", name)
}

// Names lists registered sources in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize de-duplicates ids, drops non-positive values, sorts them
// ascending and truncates to limit when limit > 0.
func Normalize(ids []domain.ItemID, limit int) []domain.ItemID {
	seen := make(map[domain.ItemID]struct{}, len(ids))
	out := make([]domain.ItemID, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// StaticSource serves a fixed list of ids, e.g. from flags or config.
type StaticSource struct {
	ids []domain.ItemID
}

var _ ports.IDSource = (*StaticSource)(nil)

// NewStaticSource wraps ids.
func NewStaticSource(ids []domain.ItemID) *StaticSource {
	return &StaticSource{ids: ids}
}

// Name identifies the source inside the registry.
func (s *StaticSource) Name() string {
	return "static"
}

// Enumerate returns the configured ids.
func (s *StaticSource) Enumerate(_ context.Context, limit int) ([]domain.ItemID, error) {
	return Normalize(s.ids, limit), nil
}

// ManifestSource replays the failed ids of an earlier run.
type ManifestSource struct {
	store ports.ManifestStore
	key   string
}

var _ ports.IDSource = (*ManifestSource)(nil)

// NewManifestSource reads manifest key from store on Enumerate.
func NewManifestSource(store ports.ManifestStore, key string) *ManifestSource {
	return &ManifestSource{store: store, key: key}
}

// Name identifies the source inside the registry.
func (s *ManifestSource) Name() string {
	return "manifest"
}

// Enumerate loads the manifest and returns its ids.
func (s *ManifestSource) Enumerate(ctx context.Context, limit int) ([]domain.ItemID, error) {
	if s.store == nil || s.key == "" {
		return nil, fmt.Errorf("manifest source: no manifest to resume from")
	}
	manifest, err := s.store.Read(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", s.key, err)
	}
	return Normalize(manifest.IDs(), limit), nil
}

// MissingTagsSource re-enumerates stored games whose tags never made it
// into storage, so a run can crawl them again.
type MissingTagsSource struct {
	lister ports.UntaggedLister
}

var _ ports.IDSource = (*MissingTagsSource)(nil)

// NewMissingTagsSource queries lister on Enumerate.
func NewMissingTagsSource(lister ports.UntaggedLister) *MissingTagsSource {
	return &MissingTagsSource{lister: lister}
}

// Name identifies the source inside the registry.
func (s *MissingTagsSource) Name() string {
	return "missing_tags"
}

// Enumerate returns the untagged game ids.
func (s *MissingTagsSource) Enumerate(ctx context.Context, limit int) ([]domain.ItemID, error) {
	if s.lister == nil {
		return nil, fmt.Errorf("missing_tags source: no catalog to query")
	}
	ids, err := s.lister.GamesWithoutTags(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list untagged games: %w", err)
	}
	return Normalize(ids, limit), nil
}
