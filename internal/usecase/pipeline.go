package usecase

import (
	"context"
	"log/slog"
	"time"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
	"GameHarvester/internal/retry"
)

const (
	defaultMinimumReviews = 100
	eligibleItemType      = "game"
)

// PipelineDeps wires the acquisition adapters into the item pipeline.
type PipelineDeps struct {
	Enrichment     ports.EnrichmentFetcher
	Structured     ports.StructuredFetcher
	Retry          retry.Policy
	MinimumReviews int
	Logger         *slog.Logger
	Now            func() time.Time
}

// Pipeline turns one item id into a terminal outcome: crawl the store page,
// gate on review volume, fetch structured details, then gate on item type.
type Pipeline struct {
	enrichment     ports.EnrichmentFetcher
	structured     ports.StructuredFetcher
	policy         retry.Policy
	minimumReviews int
	logger         *slog.Logger
	now            func() time.Time
}

// NewPipeline constructs the per-item pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	minimum := deps.MinimumReviews
	if minimum < 0 {
		minimum = defaultMinimumReviews
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		enrichment:     deps.Enrichment,
		structured:     deps.Structured,
		policy:         deps.Retry,
		minimumReviews: minimum,
		logger:         deps.Logger,
		now:            now,
	}
}

// Process runs the pipeline for id. It never returns an error: every failure
// is folded into a Failed outcome.
func (p *Pipeline) Process(ctx context.Context, id domain.ItemID) domain.Outcome {
	enrichment, err := retry.Do(ctx, p.policy, func(ctx context.Context) (domain.RawEnrichment, error) {
		return p.enrichment.FetchEnrichment(ctx, id)
	})
	if err != nil {
		return p.failed(id, domain.StageEnrichment, err)
	}

	if total, known := enrichment.TotalReviews(); known && total < p.minimumReviews {
		p.debug("item below review threshold", "item_id", id, "reviews", total, "minimum", p.minimumReviews)
		return domain.Filtered{ItemID: id, Reason: domain.ReasonLowReviewCount}
	}

	structured, err := retry.Do(ctx, p.policy, func(ctx context.Context) (domain.StructuredRecord, error) {
		return p.structured.FetchStructured(ctx, id)
	})
	if err != nil {
		return p.failed(id, domain.StageStructured, err)
	}
	if structured.ItemID == 0 {
		structured.ItemID = id
	}

	record := Merge(enrichment, structured, p.now().UTC())
	if record.ItemType != eligibleItemType {
		p.debug("item has ineligible type", "item_id", id, "type", record.ItemType)
		return domain.Filtered{ItemID: id, Reason: domain.ReasonWrongItemType}
	}

	return domain.Persisted{Record: record}
}

func (p *Pipeline) failed(id domain.ItemID, stage domain.Stage, err error) domain.Outcome {
	failure := domain.Failure{
		ItemID:     id,
		Kind:       retry.Classify(err),
		StatusCode: retry.StatusCode(err),
		Detail:     err.Error(),
		Attempts:   retry.Attempts(err),
		Stage:      stage,
	}
	p.debug("item failed", "item_id", id, "stage", stage, "kind", failure.Kind, "attempts", failure.Attempts, "error", err)
	return domain.Failed{Failure: failure}
}

func (p *Pipeline) debug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
