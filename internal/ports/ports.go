package ports

import (
	"context"
	"time"

	"GameHarvester/internal/domain"
)

// IDSource enumerates the catalog identifiers to ingest.
type IDSource interface {
	Name() string
	Enumerate(ctx context.Context, limit int) ([]domain.ItemID, error)
}

// EnrichmentFetcher crawls the human-facing store page of an item.
type EnrichmentFetcher interface {
	FetchEnrichment(ctx context.Context, id domain.ItemID) (domain.RawEnrichment, error)
}

// StructuredFetcher pulls the structured app details of an item.
type StructuredFetcher interface {
	FetchStructured(ctx context.Context, id domain.ItemID) (domain.StructuredRecord, error)
}

// GameRepository persists merged records.
type GameRepository interface {
	UpsertBatch(ctx context.Context, records []domain.MergedGameRecord) error
}

// CatalogReader answers lookups over persisted records.
type CatalogReader interface {
	Game(ctx context.Context, id domain.ItemID) (*domain.MergedGameRecord, error)
	Stats(ctx context.Context) (domain.CatalogStats, error)
	Search(ctx context.Context, query domain.GameQuery) ([]domain.GameListing, error)
}

// UntaggedLister finds stored games that have no tag rows.
type UntaggedLister interface {
	GamesWithoutTags(ctx context.Context, limit int) ([]domain.ItemID, error)
}

// ProgressSink receives periodic progress snapshots.
type ProgressSink interface {
	Emit(snapshot domain.ProgressSnapshot)
}

// ManifestStore keeps failure manifests between runs.
type ManifestStore interface {
	Write(ctx context.Context, manifest domain.FailureManifest) (string, error)
	Read(ctx context.Context, key string) (domain.FailureManifest, error)
}

// Notifier announces finished runs to Telegram or other channels.
type Notifier interface {
	PublishSummary(ctx context.Context, summary domain.RunSummary) error
}

// Scheduler controls when runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(context.Context, time.Time)) error
	Stop(ctx context.Context) error
}
