package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/engine/fetch"
	"github.com/WessleyAI/dealflow/engine/parser"
	"github.com/WessleyAI/dealflow/engine/promote"
	"github.com/WessleyAI/dealflow/engine/store"
	"github.com/WessleyAI/dealflow/pkg/metrics"
	"github.com/WessleyAI/dealflow/pkg/resilience"
)

const indexPage = `<html><body>
<div class="card"><h3><a href="/listing/hvac-dallas">Profitable HVAC Company</a></h3><p>Dallas, TX</p><p>$1.2M</p></div>
<div class="card"><h3><a href="/listing/hvac-austin">Residential HVAC Contractor</a></h3><p>Austin, TX</p></div>
<div class="card"><h3><a href="/listing/saas-austin">Cloud Software Business</a></h3><p>Austin, TX</p></div>
<a href="/about">About</a>
</body></html>`

func hvacDetail(company, city string) string {
	return fmt.Sprintf(`<html><body>
<h1>Established HVAC Contractor</h1>
<p>Business Name: %s</p>
<p>Location: %s, TX</p>
<p>HVAC contractor specializing in furnace and heat pump installs.</p>
<p>Annual Revenue: $1,200,000 - $1,500,000</p>
</body></html>`, company, city)
}

const softwareDetail = `<html><body>
<h1>Cloud Software Business</h1>
<p>Location: Austin, TX</p>
<p>A software company selling subscriptions to small teams.</p>
<p>Annual Revenue: $900,000</p>
</body></html>`

// brokerSite serves the index and detail pages. Paths in fail answer 500.
type brokerSite struct {
	*httptest.Server
	mu   sync.Mutex
	fail map[string]bool
	hits map[string]int
}

func newBrokerSite(t *testing.T) *brokerSite {
	t.Helper()
	b := &brokerSite{fail: map[string]bool{}, hits: map[string]int{}}
	pages := map[string]string{
		"/listings":            indexPage,
		"/listing/hvac-dallas": hvacDetail("North Texas Comfort Co", "Dallas"),
		"/listing/hvac-austin": hvacDetail("Capitol Air Services", "Austin"),
		"/listing/saas-austin": softwareDetail,
	}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		failing := b.fail[r.URL.Path]
		b.mu.Unlock()
		body, ok := pages[r.URL.Path]
		switch {
		case failing:
			http.Error(w, "boom", http.StatusInternalServerError)
		case !ok:
			http.NotFound(w, r)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		}
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *brokerSite) failPath(p string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[p] = true
}

func (b *brokerSite) hitsFor(p string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[p]
}

func (b *brokerSite) source() domain.Source {
	return domain.Source{
		ID:        "broker-board",
		Name:      "Broker Board",
		ParserKey: string(parser.KeyBrokerHTML),
		EntryURL:  b.URL + "/listings",
		Enabled:   true,
	}
}

type fakeEvents struct {
	mu       sync.Mutex
	promoted []domain.CanonicalDeal
	updated  []domain.CanonicalDeal
	runs     []domain.RunSummary
	err      error
}

func (f *fakeEvents) DealPromoted(_ context.Context, d domain.CanonicalDeal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promoted = append(f.promoted, d)
	return f.err
}

func (f *fakeEvents) DealUpdated(_ context.Context, d domain.CanonicalDeal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, d)
	return f.err
}

func (f *fakeEvents) RunCompleted(_ context.Context, s domain.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, s)
	return f.err
}

type fakeGraph struct {
	projected atomic.Int32
}

func (g *fakeGraph) Project(context.Context, domain.CanonicalDeal) error {
	g.projected.Add(1)
	return nil
}

type harness struct {
	runner   *Runner
	store    *store.Memory
	promoter *promote.Promoter
	events   *fakeEvents
	graph    *fakeGraph
	metrics  *Metrics
}

func newHarness(t *testing.T, canon store.Canonical, mem *store.Memory, cfg Config, sources ...domain.Source) *harness {
	t.Helper()
	if mem == nil {
		mem = store.NewMemory()
	}
	if canon == nil {
		canon = mem
	}
	if err := mem.UpsertSources(context.Background(), sources); err != nil {
		t.Fatal(err)
	}
	h := &harness{
		store:    mem,
		promoter: promote.New(canon, promote.DefaultDailyCap, time.UTC),
		events:   &fakeEvents{},
		graph:    &fakeGraph{},
		metrics:  NewMetrics(metrics.New("dealflow_test")),
	}
	h.runner = New(Deps{
		Store:    mem,
		Parsers:  parser.Default(),
		Fetcher:  fetch.New(fetch.Config{}),
		Pacer:    resilience.NewPacer(),
		Promoter: h.promoter,
		Graph:    h.graph,
		Events:   h.events,
		Metrics:  h.metrics,
	}, cfg)
	return h
}

func hasError(s domain.RunSummary, where string) bool {
	for _, e := range s.Errors {
		if e.Where == where {
			return true
		}
	}
	return false
}

func TestRunPromotesWithinCap(t *testing.T) {
	site := newBrokerSite(t)
	h := newHarness(t, nil, nil, Config{}, site.source())
	ctx := context.Background()
	today := h.promoter.Today()
	if err := h.store.SetDailyCap(ctx, today, 1); err != nil {
		t.Fatal(err)
	}

	s, err := h.runner.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.RunID == "" || s.FinishedAt.Before(s.StartedAt) {
		t.Fatalf("unexpected run metadata %+v", s)
	}
	if len(s.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", s.Errors)
	}
	if s.SourcesProcessed != 1 || s.RawSeen != 3 || s.RawNew != 3 || s.DetailFetched != 3 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.PromotedDeals != 1 || s.HeldDeals != 2 {
		t.Fatalf("expected 1 promoted and 2 held, got %+v", s)
	}

	c, _ := h.store.GetDailyCap(ctx, today, promote.DefaultDailyCap)
	if c.Used != 1 {
		t.Fatalf("expected used 1, got %d", c.Used)
	}
	deals := h.store.CanonicalDeals()
	if len(deals) != 1 {
		t.Fatalf("expected 1 canonical deal, got %d", len(deals))
	}
	d := deals[0]
	if d.IndustryTag == nil || *d.IndustryTag != domain.IndustryHVAC || !d.IsPromoted || !d.IsNewToday {
		t.Fatalf("unexpected deal %+v", d)
	}
	if d.CompanyName != "North Texas Comfort Co" || d.RevenueMin == nil || *d.RevenueMin != 1_200_000 {
		t.Fatalf("unexpected deal fields %+v", d)
	}
	if len(h.events.promoted) != 1 || len(h.events.runs) != 1 || h.graph.projected.Load() != 1 {
		t.Fatalf("expected one promotion event, one run event and one projection")
	}
	if got := testutil.ToFloat64(h.metrics.outcomes.WithLabelValues("held")); got != 2 {
		t.Fatalf("expected held counter 2, got %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.capUsed.WithLabelValues()); got != 1 {
		t.Fatalf("expected cap used gauge 1, got %v", got)
	}

	srcs, _ := h.store.ListSources(ctx)
	if srcs[0].LastCrawledAt == nil {
		t.Fatal("expected last crawled to advance")
	}
}

func TestRunIdenticalReingest(t *testing.T) {
	site := newBrokerSite(t)
	h := newHarness(t, nil, nil, Config{}, site.source())
	ctx := context.Background()

	if _, err := h.runner.Run(ctx); err != nil {
		t.Fatal(err)
	}
	s, err := h.runner.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.RawSeen != 3 || s.RawNew != 0 || s.RawChanged != 0 {
		t.Fatalf("unexpected second pass counts %+v", s)
	}
	if s.PromotedDeals != 0 || s.UpdatedDeals != 2 || s.HeldDeals != 1 {
		t.Fatalf("unexpected second pass outcomes %+v", s)
	}
	raws := h.store.RawListings()
	if len(raws) != 3 {
		t.Fatalf("expected 3 raw rows, got %d", len(raws))
	}
	for _, r := range raws {
		if r.Status != domain.RawActive {
			t.Fatalf("expected active status, got %s for %s", r.Status, r.URL)
		}
		if r.Payload.Fields == nil {
			t.Fatalf("expected stored fields for %s", r.URL)
		}
	}
	if n := len(h.store.CanonicalDeals()); n != 2 {
		t.Fatalf("expected 2 canonical deals, got %d", n)
	}
	c, _ := h.store.GetDailyCap(ctx, h.promoter.Today(), promote.DefaultDailyCap)
	if c.Used != 2 {
		t.Fatalf("expected cap consumed only on insert, got used %d", c.Used)
	}
}

func TestRunIndexFailureAdvancesSchedule(t *testing.T) {
	site := newBrokerSite(t)
	site.failPath("/listings")
	h := newHarness(t, nil, nil, Config{}, site.source())
	ctx := context.Background()

	s, err := h.runner.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !hasError(s, domain.StageIndexFetch) {
		t.Fatalf("expected index_fetch error, got %+v", s.Errors)
	}
	if s.Errors[0].SourceID != "broker-board" || s.Errors[0].SourceName != "Broker Board" {
		t.Fatalf("unexpected error attribution %+v", s.Errors[0])
	}
	srcs, _ := h.store.ListSources(ctx)
	if srcs[0].LastCrawledAt == nil {
		t.Fatal("expected last crawled to advance after index failure")
	}
}

func TestRunUnknownParser(t *testing.T) {
	site := newBrokerSite(t)
	src := site.source()
	src.ParserKey = "json_api"
	h := newHarness(t, nil, nil, Config{}, src)

	s, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !hasError(s, domain.StageParser) || s.RawSeen != 0 {
		t.Fatalf("expected parser error and no stubs, got %+v", s)
	}
	if site.hitsFor("/listings") != 0 {
		t.Fatal("index must not be fetched without a parser")
	}
}

func TestRunDetailFailureRecordsFetchError(t *testing.T) {
	site := newBrokerSite(t)
	site.failPath("/listing/hvac-dallas")
	h := newHarness(t, nil, nil, Config{}, site.source())
	ctx := context.Background()

	s, err := h.runner.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Errors) != 1 || s.Errors[0].Where != domain.StageDetailFetch {
		t.Fatalf("expected one detail_fetch error, got %+v", s.Errors)
	}
	if s.RawSeen != 3 || s.DetailFetched != 2 || s.PromotedDeals != 1 {
		t.Fatalf("expected processing to continue, got %+v", s)
	}
	raw, err := h.store.GetRawListing(ctx, "broker-board", site.URL+"/listing/hvac-dallas")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(raw.LastFetchError, "500") {
		t.Fatalf("expected fetch error on raw row, got %q", raw.LastFetchError)
	}
}

func TestRunBreakerStopsDetailFetches(t *testing.T) {
	site := newBrokerSite(t)
	for _, p := range []string{"/listing/hvac-dallas", "/listing/hvac-austin", "/listing/saas-austin"} {
		site.failPath(p)
	}
	h := newHarness(t, nil, nil, Config{BreakerThreshold: 1, BreakerCooldown: time.Hour}, site.source())

	s, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %+v", s.Errors)
	}
	if !strings.Contains(s.Errors[2].Message, resilience.ErrCircuitOpen.Error()) {
		t.Fatalf("expected open circuit, got %q", s.Errors[2].Message)
	}
	if site.hitsFor("/listing/hvac-austin") != 0 || site.hitsFor("/listing/saas-austin") != 0 {
		t.Fatal("expected breaker to skip remaining detail fetches")
	}
}

// failingCanonical rejects every insert.
type failingCanonical struct {
	*store.Memory
}

func (f failingCanonical) InsertPromoted(context.Context, *domain.CanonicalDeal, domain.Day, int) error {
	return errors.New("connection reset")
}

func TestRunCanonicalWriteAbortsSource(t *testing.T) {
	site := newBrokerSite(t)
	mem := store.NewMemory()
	h := newHarness(t, failingCanonical{mem}, mem, Config{}, site.source())

	s, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Errors) != 1 || s.Errors[0].Where != domain.StageCanonicalWrite {
		t.Fatalf("expected one canonical_write error, got %+v", s.Errors)
	}
	if s.RawSeen != 1 {
		t.Fatalf("expected remaining stubs skipped, got raw seen %d", s.RawSeen)
	}
	srcs, _ := mem.ListSources(context.Background())
	if srcs[0].LastCrawledAt == nil {
		t.Fatal("expected last crawled to advance after abort")
	}
}

type brokenSources struct {
	*store.Memory
}

func (brokenSources) ListSources(context.Context) ([]domain.Source, error) {
	return nil, errors.New("db down")
}

func TestRunListSourcesFailure(t *testing.T) {
	r := New(Deps{Store: brokenSources{store.NewMemory()}, Parsers: parser.Default()}, Config{})
	s, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !hasError(s, domain.StageSchedule) {
		t.Fatalf("expected schedule error, got %+v", s.Errors)
	}
}

func TestRunPublishFailureRecorded(t *testing.T) {
	site := newBrokerSite(t)
	h := newHarness(t, nil, nil, Config{}, site.source())
	h.events.err = errors.New("no responders")

	s, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !hasError(s, domain.StagePublish) {
		t.Fatalf("expected publish errors, got %+v", s.Errors)
	}
	if s.PromotedDeals != 2 {
		t.Fatalf("publish failures must not affect promotion, got %+v", s)
	}
}

func TestRunConcurrentSourcesShareCap(t *testing.T) {
	ctx := context.Background()
	var sources []domain.Source
	for i := range 4 {
		site := newBrokerSite(t)
		src := site.source()
		src.ID = fmt.Sprintf("broker-%d", i)
		sources = append(sources, src)
	}
	h := newHarness(t, nil, nil, Config{SourceConcurrency: 4}, sources...)
	if err := h.store.SetDailyCap(ctx, h.promoter.Today(), 3); err != nil {
		t.Fatal(err)
	}

	s, err := h.runner.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.SourcesProcessed != 4 || s.RawSeen != 12 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.PromotedDeals != 3 || s.HeldDeals != 9 {
		t.Fatalf("expected cap of 3 to hold across sources, got %+v", s)
	}
	c, _ := h.store.GetDailyCap(ctx, h.promoter.Today(), promote.DefaultDailyCap)
	if c.Used != 3 {
		t.Fatalf("expected used 3, got %d", c.Used)
	}
}

func TestDueSources(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(-d); return &v }
	sources := []domain.Source{
		{ID: "recent", Enabled: true, CrawlIntervalMins: 60, LastCrawledAt: at(10 * time.Minute)},
		{ID: "old", Enabled: true, CrawlIntervalMins: 60, LastCrawledAt: at(5 * time.Hour)},
		{ID: "older", Enabled: true, CrawlIntervalMins: 60, LastCrawledAt: at(9 * time.Hour)},
		{ID: "never", Enabled: true, CrawlIntervalMins: 60},
		{ID: "off", Enabled: false},
		{ID: "boundary", Enabled: true, CrawlIntervalMins: 60, LastCrawledAt: at(time.Hour)},
	}

	got := DueSources(sources, now, 0)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	if want := "never,older,old,boundary"; strings.Join(ids, ",") != want {
		t.Fatalf("expected %s, got %s", want, strings.Join(ids, ","))
	}
	if got := DueSources(sources, now, 2); len(got) != 2 || got[1].ID != "older" {
		t.Fatalf("unexpected truncated result %+v", got)
	}
}

func TestChecksum(t *testing.T) {
	a := domain.Stub{URL: "https://x.test/listing/1", Title: "HVAC", PriceHint: "$1M", LocationHint: "Dallas, TX"}
	b := a
	b.URL = "https://x.test/listing/2"
	if Checksum(a) != Checksum(b) {
		t.Fatal("checksum must not depend on URL")
	}
	c := a
	c.PriceHint = "$900K"
	if Checksum(a) == Checksum(c) {
		t.Fatal("checksum must change with the price hint")
	}
	if len(Checksum(a)) != 64 {
		t.Fatalf("expected hex sha256, got %q", Checksum(a))
	}
}

func TestChecksumFieldBoundaries(t *testing.T) {
	pairs := [][2]domain.Stub{
		{{Title: "a|b"}, {Title: "a", DateHint: "b"}},
		{{Title: "ab"}, {Title: "a", DateHint: "b"}},
		{{LocationHint: "1:x"}, {DateHint: "1:x"}},
		{{Title: "Dallas", PriceHint: ""}, {Title: "", LocationHint: "Dallas"}},
	}
	for _, p := range pairs {
		if Checksum(p[0]) == Checksum(p[1]) {
			t.Fatalf("expected distinct checksums for %+v and %+v", p[0], p[1])
		}
	}
}

func TestDiff(t *testing.T) {
	prev := &domain.RawListing{Checksum: "abc"}
	tests := []struct {
		prev *domain.RawListing
		sum  string
		want Change
		st   domain.RawStatus
	}{
		{nil, "abc", ChangeNew, domain.RawActive},
		{prev, "abc", ChangeUnchanged, domain.RawActive},
		{prev, "def", ChangeChanged, domain.RawChanged},
	}
	for _, tt := range tests {
		got := Diff(tt.prev, tt.sum)
		if got != tt.want || got.Status() != tt.st {
			t.Errorf("Diff(%v, %q) = %s/%s, want %s/%s", tt.prev, tt.sum, got, got.Status(), tt.want, tt.st)
		}
	}
}
