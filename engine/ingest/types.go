package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/engine/fetch"
	"github.com/WessleyAI/dealflow/engine/parser"
	"github.com/WessleyAI/dealflow/engine/promote"
	"github.com/WessleyAI/dealflow/engine/store"
	"github.com/WessleyAI/dealflow/pkg/fn"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxSourcesPerRun  = 10
	DefaultMaxStubsPerSource = 25
	DefaultSourceConcurrency = 1
	DefaultBreakerCooldown   = 5 * time.Minute
)

// Fetcher retrieves pages. A zero timeout selects the per-host default.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) fn.Result[fetch.Page]
}

// Pacer spaces requests per source.
type Pacer interface {
	Wait(ctx context.Context, key string, rpm int) error
}

// Projector mirrors catalog rows into the deal graph.
type Projector interface {
	Project(ctx context.Context, d domain.CanonicalDeal) error
}

// Publisher announces catalog changes and finished runs.
type Publisher interface {
	DealPromoted(ctx context.Context, d domain.CanonicalDeal) error
	DealUpdated(ctx context.Context, d domain.CanonicalDeal) error
	RunCompleted(ctx context.Context, s domain.RunSummary) error
}

// Deps holds the collaborators of a run. Graph, Events, Metrics and Logger
// are optional.
type Deps struct {
	Store    store.Store
	Parsers  *parser.Registry
	Fetcher  Fetcher
	Pacer    Pacer
	Promoter *promote.Promoter
	Graph    Projector
	Events   Publisher
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Config bounds a run.
type Config struct {
	MaxSourcesPerRun  int
	MaxStubsPerSource int
	// SourceConcurrency is how many sources are crawled at once.
	SourceConcurrency int
	// BreakerThreshold consecutive detail fetch failures stop further detail
	// fetches for that source until BreakerCooldown passes. Zero disables.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSourcesPerRun <= 0 {
		c.MaxSourcesPerRun = DefaultMaxSourcesPerRun
	}
	if c.MaxStubsPerSource <= 0 {
		c.MaxStubsPerSource = DefaultMaxStubsPerSource
	}
	if c.SourceConcurrency <= 0 {
		c.SourceConcurrency = DefaultSourceConcurrency
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = DefaultBreakerCooldown
	}
	return c
}
