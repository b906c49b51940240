package idsource

import (
	"context"
	"fmt"
	"log/slog"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
)

// CompositeSource merges the ids of several registered sources.
type CompositeSource struct {
	registry *Registry
	names    []string
	logger   *slog.Logger
}

var _ ports.IDSource = (*CompositeSource)(nil)

// NewCompositeSource wires the registry with the configured source names.
func NewCompositeSource(reg *Registry, names []string, log *slog.Logger) *CompositeSource {
	return &CompositeSource{
		registry: reg,
		names:    names,
		logger:   log,
	}
}

// Name identifies the source in logs.
func (s *CompositeSource) Name() string {
	return "composite"
}

// Enumerate runs every configured source in order. The limit is applied
// after merging so that it keeps the lowest ids overall.
func (s *CompositeSource) Enumerate(ctx context.Context, limit int) ([]domain.ItemID, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("id source registry is not configured")
	}
	if len(s.names) == 0 {
		return nil, fmt.Errorf("no id sources configured")
	}

	s.debug("enumerate", "sources", len(s.names), "limit", limit)

	var aggregated []domain.ItemID
	for _, name := range s.names {
		source, err := s.registry.Resolve(name)
		if err != nil {
			return nil, err
		}

		ids, err := source.Enumerate(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s: %w", name, err)
		}
		s.debug("source produced ids", "source", name, "count", len(ids))
		aggregated = append(aggregated, ids...)
	}

	merged := Normalize(aggregated, limit)
	s.debug("composite source done", "total_ids", len(merged))
	return merged, nil
}

func (s *CompositeSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
