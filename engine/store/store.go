// Package store persists sources, raw listings, canonical deals and daily
// cap counters. Postgres is the production backend; Memory backs dry runs
// and tests.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/dealflow/engine/domain"
)

// Store is everything the pipeline reads and writes.
type Store interface {
	Sources
	RawListings
	Canonical
	Caps
}

// Sources is the read-mostly source configuration.
type Sources interface {
	ListSources(ctx context.Context) ([]domain.Source, error)
	UpsertSources(ctx context.Context, sources []domain.Source) error
	TouchSourceCrawled(ctx context.Context, id string, at time.Time) error
}

// RawListings tracks every listing URL seen under a source.
type RawListings interface {
	// GetRawListing returns domain.ErrNotFound when the URL has not been seen.
	GetRawListing(ctx context.Context, sourceID, url string) (domain.RawListing, error)
	// UpsertRawListing inserts or refreshes the row keyed by (source, URL).
	// On return raw.ID and raw.FirstSeenAt reflect the stored row.
	UpsertRawListing(ctx context.Context, raw *domain.RawListing) error
	// UpdateRawPayload stores extracted fields and clears last_fetch_error.
	UpdateRawPayload(ctx context.Context, id uuid.UUID, payload domain.RawPayload) error
	SetRawFetchError(ctx context.Context, id uuid.UUID, msg string) error
}

// Canonical is the promoted catalog.
type Canonical interface {
	// GetCanonicalByRawID returns domain.ErrNotFound when no row exists.
	GetCanonicalByRawID(ctx context.Context, rawID uuid.UUID) (domain.CanonicalDeal, error)
	// InsertPromoted consumes one unit of day's cap and inserts deal in a
	// single transaction. The cap row is created with defaultCap when
	// missing. Returns domain.ErrCapExhausted, leaving used untouched, when
	// no unit is left.
	InsertPromoted(ctx context.Context, deal *domain.CanonicalDeal, day domain.Day, defaultCap int) error
	// UpdateCanonical rewrites descriptive and promotion fields. A stored
	// is_promoted of true is never cleared.
	UpdateCanonical(ctx context.Context, deal *domain.CanonicalDeal) error
	// TouchCanonicalSeen bumps last_seen_at; a missing row is not an error.
	TouchCanonicalSeen(ctx context.Context, rawID uuid.UUID, at time.Time) error
}

// Caps reads and configures daily admission budgets.
type Caps interface {
	// GetDailyCap returns the counter for day, or {cap: defaultCap, used: 0}
	// when none is stored.
	GetDailyCap(ctx context.Context, day domain.Day, defaultCap int) (domain.DailyCap, error)
	SetDailyCap(ctx context.Context, day domain.Day, cap int) error
}
