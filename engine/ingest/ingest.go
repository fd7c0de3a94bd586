// Package ingest runs the batch pipeline: it crawls due sources, tracks raw
// listings by checksum, fetches and parses detail pages, normalizes them and
// applies the promotion gate.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/engine/fetch"
	"github.com/WessleyAI/dealflow/engine/normalize"
	"github.com/WessleyAI/dealflow/engine/parser"
	"github.com/WessleyAI/dealflow/engine/promote"
	"github.com/WessleyAI/dealflow/pkg/fn"
	"github.com/WessleyAI/dealflow/pkg/resilience"
)

// errAbortSource stops the remaining stubs of a source.
var errAbortSource = errors.New("abort source")

// stageError tags a pipeline failure with the stage it is recorded under.
type stageError struct {
	where string
	err   error
}

func (e *stageError) Error() string { return e.where + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func tagged[T any](where string, r fn.Result[T]) fn.Result[T] {
	if err := r.Error(); err != nil {
		var se *stageError
		if errors.As(err, &se) {
			return r
		}
		return fn.Err[T](&stageError{where: where, err: err})
	}
	return r
}

// Runner executes ingestion runs. A Runner may be reused across runs; pacing
// and breaker state carry over.
type Runner struct {
	deps     Deps
	cfg      Config
	breakers *resilience.Breakers
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Runner.
func New(deps Deps, cfg Config) *Runner {
	cfg = cfg.withDefaults()
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Pacer == nil {
		deps.Pacer = resilience.NewPacer()
	}
	return &Runner{
		deps:     deps,
		cfg:      cfg,
		breakers: resilience.NewBreakers(cfg.BreakerThreshold, cfg.BreakerCooldown),
		log:      log,
		now:      time.Now,
	}
}

// DueSources returns the enabled sources due at now, never-crawled first and
// then by oldest crawl, truncated to limit.
func DueSources(sources []domain.Source, now time.Time, limit int) []domain.Source {
	due := fn.Filter(sources, func(s domain.Source) bool { return s.Due(now) })
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].LastCrawledAt, due[j].LastCrawledAt
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due
}

// Run performs one batch run. Per-unit failures are recorded in the summary;
// the returned error is non-nil only when the run could not start.
func (r *Runner) Run(ctx context.Context) (domain.RunSummary, error) {
	start := r.now()
	rec := &recorder{
		summary: domain.RunSummary{
			RunID:     uuid.NewString(),
			StartedAt: start,
			Errors:    []domain.RunError{},
		},
		metrics: r.deps.Metrics,
		log:     r.log,
	}
	log := r.log.With("run_id", rec.summary.RunID)

	sources, err := r.deps.Store.ListSources(ctx)
	if err != nil {
		rec.fail(domain.Source{}, domain.StageSchedule, err)
		s := r.finish(ctx, rec)
		return s, fmt.Errorf("ingest: list sources: %w", err)
	}

	due := DueSources(sources, start, r.cfg.MaxSourcesPerRun)
	rec.update(func(s *domain.RunSummary) {
		s.SourcesProcessed = len(due)
		s.SourcesSkipped = len(sources) - len(due)
	})
	log.Info("ingest: run started", "sources", len(sources), "due", len(due))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.SourceConcurrency)
	for _, src := range due {
		g.Go(func() error {
			r.processSource(gctx, rec, src)
			return nil
		})
	}
	_ = g.Wait()

	s := r.finish(ctx, rec)
	log.Info("ingest: run finished",
		"processed", s.SourcesProcessed,
		"raw_seen", s.RawSeen,
		"promoted", s.PromotedDeals,
		"held", s.HeldDeals,
		"errors", len(s.Errors),
		"duration", s.FinishedAt.Sub(s.StartedAt))
	return s, nil
}

func (r *Runner) finish(ctx context.Context, rec *recorder) domain.RunSummary {
	rec.update(func(s *domain.RunSummary) { s.FinishedAt = r.now() })
	s := rec.snapshot()

	if r.deps.Events != nil {
		if err := r.deps.Events.RunCompleted(ctx, s); err != nil {
			rec.fail(domain.Source{}, domain.StagePublish, err)
			s = rec.snapshot()
		}
	}
	r.deps.Metrics.run(s.FinishedAt.Sub(s.StartedAt))
	if r.deps.Promoter != nil && r.deps.Metrics != nil {
		if c, err := r.deps.Store.GetDailyCap(ctx, r.deps.Promoter.Today(), r.deps.Promoter.DefaultCap()); err == nil {
			r.deps.Metrics.capacity(c.Used, c.Cap)
		}
	}
	return s
}

func (r *Runner) processSource(ctx context.Context, rec *recorder, src domain.Source) {
	log := r.log.With("source", src.ID)
	defer func() {
		// The schedule advances even when the run is cancelled mid-source.
		if err := r.deps.Store.TouchSourceCrawled(context.WithoutCancel(ctx), src.ID, r.now()); err != nil {
			log.Error("ingest: touch last crawled", "error", err)
		}
	}()

	p, err := r.deps.Parsers.Lookup(src.ParserKey)
	if err != nil {
		rec.fail(src, domain.StageParser, err)
		return
	}

	if err := r.deps.Pacer.Wait(ctx, src.ID, src.RateLimitPerMinute); err != nil {
		rec.fail(src, domain.StageIndexFetch, err)
		return
	}
	page, err := r.deps.Fetcher.Fetch(ctx, src.EntryURL, 0).Unwrap()
	if err != nil {
		rec.fail(src, domain.StageIndexFetch, err)
		return
	}
	r.deps.Metrics.fetched("index", page.Elapsed)

	stubs, err := p.ParseIndex(src, page.Body)
	if err != nil {
		rec.fail(src, domain.StageIndexParse, err)
		return
	}
	if len(stubs) > r.cfg.MaxStubsPerSource {
		stubs = stubs[:r.cfg.MaxStubsPerSource]
	}
	log.Info("ingest: index parsed", "stubs", len(stubs))

	detail := r.detailPipeline(src, p)
	for _, stub := range stubs {
		if ctx.Err() != nil {
			return
		}
		if err := r.processStub(ctx, rec, src, detail, stub); errors.Is(err, errAbortSource) {
			log.Warn("ingest: source aborted", "url", stub.URL)
			return
		}
	}
}

// detailPage pairs a stub with its fetched page.
type detailPage struct {
	stub domain.Stub
	page fetch.Page
}

// detailPipeline composes pace, fetch and parse for one source's detail pages.
func (r *Runner) detailPipeline(src domain.Source, p parser.Parser) fn.Stage[domain.Stub, domain.ExtractedFields] {
	attrs := []attribute.KeyValue{attribute.String("source.id", src.ID)}
	breaker := r.breakers.For(src.ID)

	pace := func(ctx context.Context, stub domain.Stub) fn.Result[domain.Stub] {
		if err := r.deps.Pacer.Wait(ctx, src.ID, src.RateLimitPerMinute); err != nil {
			return fn.Err[domain.Stub](&stageError{where: domain.StageDetailFetch, err: err})
		}
		return fn.Ok(stub)
	}
	get := func(ctx context.Context, stub domain.Stub) fn.Result[detailPage] {
		res := resilience.Guard(ctx, breaker, func(ctx context.Context) fn.Result[fetch.Page] {
			return r.deps.Fetcher.Fetch(ctx, stub.URL, 0)
		})
		out := fn.MapResult(res, func(pg fetch.Page) detailPage { return detailPage{stub: stub, page: pg} })
		return tagged(domain.StageDetailFetch, out)
	}
	parse := func(_ context.Context, d detailPage) fn.Result[domain.ExtractedFields] {
		return tagged(domain.StageDetailParse, fn.FromPair(p.ParseDetail(src, d.stub, d.page.Body)))
	}

	fetched := fn.Then(
		fn.TracedStage("ingest.detail.pace", fn.Stage[domain.Stub, domain.Stub](pace), attrs...),
		fn.TracedStage("ingest.detail.fetch", fn.Stage[domain.Stub, detailPage](get), attrs...),
	)
	var observe fn.Stage[detailPage, detailPage] = func(_ context.Context, d detailPage) fn.Result[detailPage] {
		r.deps.Metrics.fetched("detail", d.page.Elapsed)
		return fn.Ok(d)
	}
	counted := fn.Then(fetched, observe)
	return fn.Then(counted, fn.TracedStage("ingest.detail.parse", fn.Stage[detailPage, domain.ExtractedFields](parse), attrs...))
}

// processStub handles one index stub. It returns errAbortSource when the
// remaining stubs of the source must be skipped.
func (r *Runner) processStub(ctx context.Context, rec *recorder, src domain.Source, detail fn.Stage[domain.Stub, domain.ExtractedFields], stub domain.Stub) error {
	now := r.now()
	sum := Checksum(stub)

	var prev *domain.RawListing
	existing, err := r.deps.Store.GetRawListing(ctx, src.ID, stub.URL)
	switch {
	case err == nil:
		prev = &existing
	case errors.Is(err, domain.ErrNotFound):
	default:
		rec.fail(src, domain.StageRawRead, err)
		return nil
	}

	change := Diff(prev, sum)
	r.deps.Metrics.stub(src.ID, change)
	rec.update(func(s *domain.RunSummary) {
		s.RawSeen++
		switch change {
		case ChangeNew:
			s.RawNew++
		case ChangeChanged:
			s.RawChanged++
		}
	})

	raw := domain.RawListing{
		SourceID:   src.ID,
		URL:        stub.URL,
		Title:      stub.Title,
		Payload:    domain.RawPayload{Stub: stub},
		Checksum:   sum,
		Status:     change.Status(),
		LastSeenAt: now,
	}
	if prev != nil {
		raw.Payload.Fields = prev.Payload.Fields
	}
	if err := r.deps.Store.UpsertRawListing(ctx, &raw); err != nil {
		rec.fail(src, domain.StageRawWrite, err)
		return nil
	}

	if change == ChangeUnchanged {
		if err := r.deps.Store.TouchCanonicalSeen(ctx, raw.ID, now); err != nil {
			rec.fail(src, domain.StageCanonicalTouch, err)
		}
	}

	fields, err := detail(ctx, stub).Unwrap()
	if err != nil {
		where := domain.StageDetailFetch
		var se *stageError
		if errors.As(err, &se) {
			where, err = se.where, se.err
		}
		if where == domain.StageDetailParse {
			rec.update(func(s *domain.RunSummary) { s.DetailFetched++ })
		}
		rec.fail(src, where, err)
		if werr := r.deps.Store.SetRawFetchError(ctx, raw.ID, err.Error()); werr != nil {
			rec.fail(src, domain.StageRawWrite, werr)
		}
		return nil
	}
	rec.update(func(s *domain.RunSummary) { s.DetailFetched++ })

	raw.Payload.Fields = &fields
	if err := r.deps.Store.UpdateRawPayload(ctx, raw.ID, raw.Payload); err != nil {
		rec.fail(src, domain.StageRawWrite, err)
		return nil
	}

	cand := normalize.Normalize(normalize.Input{Source: src, Stub: stub, Fields: fields})
	dec, err := r.deps.Promoter.Apply(ctx, raw, cand)
	if err != nil {
		rec.fail(src, domain.StageCanonicalWrite, err)
		return errAbortSource
	}

	r.deps.Metrics.outcome(string(dec.Outcome))
	rec.update(func(s *domain.RunSummary) {
		switch dec.Outcome {
		case promote.Promoted:
			s.PromotedDeals++
		case promote.Updated:
			s.UpdatedDeals++
		case promote.Held:
			s.HeldDeals++
		}
	})
	if dec.Deal == nil {
		r.log.Debug("ingest: held", "source", src.ID, "url", stub.URL, "reason", dec.Reason)
		return nil
	}

	if r.deps.Graph != nil {
		if err := r.deps.Graph.Project(ctx, *dec.Deal); err != nil {
			rec.fail(src, domain.StageGraph, err)
		}
	}
	if r.deps.Events != nil {
		publish := r.deps.Events.DealUpdated
		if dec.NewlyPromoted {
			publish = r.deps.Events.DealPromoted
		}
		if err := publish(ctx, *dec.Deal); err != nil {
			rec.fail(src, domain.StagePublish, err)
		}
	}
	return nil
}
