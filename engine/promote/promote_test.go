package promote

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/engine/store"
)

var fixedNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newPromoter(s store.Canonical, limit int) *Promoter {
	p := New(s, limit, time.UTC)
	p.now = func() time.Time { return fixedNow }
	return p
}

func qualifying() domain.Candidate {
	return domain.Candidate{
		SourceID:           "bb",
		SourceName:         "Broker Board",
		SourceURL:          "https://example.com/listing/1",
		CompanyName:        "Acme Heating",
		Headline:           "Established HVAC contractor",
		IndustryTag:        ptr(domain.IndustryHVAC),
		IndustryConfidence: 82,
		State:              "TX",
		RevenueMin:         ptr(int64(1_200_000)),
		RevenueMax:         ptr(int64(1_500_000)),
		ConfidenceScore:    80,
		DataConfidence:     domain.ConfidenceHigh,
		DealType:           domain.DealUnknown,
	}
}

func rawListing() domain.RawListing {
	return domain.RawListing{ID: uuid.New(), SourceID: "bb", FirstSeenAt: fixedNow.Add(-time.Hour)}
}

func TestGate(t *testing.T) {
	c := qualifying()
	if !Gate(c.IndustryTag, c.IndustryConfidence, c) {
		t.Fatal("expected qualifying candidate to pass")
	}
	if Gate(nil, 90, c) {
		t.Fatal("null tag must fail")
	}
	if Gate(ptr(domain.IndustryTag("Roofing")), 90, c) {
		t.Fatal("disallowed tag must fail")
	}
	if Gate(c.IndustryTag, 69, c) {
		t.Fatal("industry confidence below 70 must fail")
	}
	low := c
	low.ConfidenceScore = 44
	if Gate(c.IndustryTag, 90, low) {
		t.Fatal("confidence score below 45 must fail")
	}
	bare := c
	bare.State, bare.RevenueMin, bare.RevenueMax = "", nil, nil
	bare.TextSample = strings.Repeat("x", 159)
	if Gate(c.IndustryTag, 90, bare) {
		t.Fatal("missing anchor must fail")
	}
	bare.TextSample = strings.Repeat("x", 160)
	if !Gate(c.IndustryTag, 90, bare) {
		t.Fatal("long text sample is an anchor")
	}
}

func TestApplyInsertsPromoted(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	p := newPromoter(m, 5)
	raw := rawListing()

	d, err := p.Apply(ctx, raw, qualifying())
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != Promoted || !d.NewlyPromoted || d.Deal == nil {
		t.Fatalf("expected promoted, got %+v", d)
	}
	got, err := m.GetCanonicalByRawID(ctx, raw.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsPromoted || !got.IsNewToday || got.PromotedDate == nil || *got.PromotedDate != "2026-03-02" {
		t.Fatalf("unexpected stored deal %+v", got)
	}
	if !got.FirstSeenAt.Equal(raw.FirstSeenAt) {
		t.Fatalf("expected first seen from raw row, got %v", got.FirstSeenAt)
	}
	if c, _ := m.GetDailyCap(ctx, "2026-03-02", 5); c.Used != 1 {
		t.Fatalf("expected used 1, got %d", c.Used)
	}
}

func TestApplyNullTagNeverInserts(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	p := newPromoter(m, 5)
	c := qualifying()
	c.IndustryTag = nil
	c.IndustryConfidence = 0
	c.ConfidenceScore = 100
	c.TeaserPDFURL, c.HasTeaserPDF = "https://example.com/t.pdf", true

	d, err := p.Apply(ctx, rawListing(), c)
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != Held || d.Reason != ReasonNoIndustry {
		t.Fatalf("expected held for no industry, got %+v", d)
	}
	if n := len(m.CanonicalDeals()); n != 0 {
		t.Fatalf("expected no canonical rows, got %d", n)
	}
}

func TestApplyGateFailureHolds(t *testing.T) {
	p := newPromoter(store.NewMemory(), 5)
	c := qualifying()
	c.IndustryConfidence = 60
	d, err := p.Apply(context.Background(), rawListing(), c)
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != Held || d.Reason != ReasonGate {
		t.Fatalf("expected held by gate, got %+v", d)
	}
}

func TestApplyCapExhaustedHolds(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_ = m.SetDailyCap(ctx, "2026-03-02", 1)
	p := newPromoter(m, 5)

	if d, _ := p.Apply(ctx, rawListing(), qualifying()); d.Outcome != Promoted {
		t.Fatalf("expected first promoted, got %+v", d)
	}
	d, err := p.Apply(ctx, rawListing(), qualifying())
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != Held || d.Reason != ReasonCapExhausted {
		t.Fatalf("expected held by cap, got %+v", d)
	}
	if c, _ := m.GetDailyCap(ctx, "2026-03-02", 5); c.Used != 1 {
		t.Fatalf("expected used unchanged at 1, got %d", c.Used)
	}
}

func TestApplyStickyTag(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	p := newPromoter(m, 5)
	raw := rawListing()
	if _, err := p.Apply(ctx, raw, qualifying()); err != nil {
		t.Fatal(err)
	}

	again := qualifying()
	again.IndustryTag = nil
	again.IndustryConfidence = 0
	again.Headline = "Refreshed headline"
	d, err := p.Apply(ctx, raw, again)
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != Updated {
		t.Fatalf("expected updated, got %+v", d)
	}
	got, _ := m.GetCanonicalByRawID(ctx, raw.ID)
	if got.IndustryTag == nil || *got.IndustryTag != domain.IndustryHVAC || got.IndustryConfidence != 82 {
		t.Fatalf("expected sticky HVAC/82, got %v/%d", got.IndustryTag, got.IndustryConfidence)
	}
	if got.Headline != "Refreshed headline" {
		t.Fatalf("expected refreshed headline, got %q", got.Headline)
	}
}

func TestApplyNeverUnpromotes(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	p := newPromoter(m, 5)
	raw := rawListing()
	_, _ = p.Apply(ctx, raw, qualifying())

	weak := qualifying()
	weak.IndustryConfidence = 10
	weak.ConfidenceScore = 0
	weak.State, weak.RevenueMin, weak.RevenueMax = "", nil, nil

	p.now = func() time.Time { return fixedNow.Add(48 * time.Hour) }
	d, err := p.Apply(ctx, raw, weak)
	if err != nil {
		t.Fatal(err)
	}
	if d.NewlyPromoted {
		t.Fatal("already-promoted row must not be promoted again")
	}
	got, _ := m.GetCanonicalByRawID(ctx, raw.ID)
	if !got.IsPromoted {
		t.Fatal("is_promoted must stay true")
	}
	if got.IsNewToday {
		t.Fatal("expected is_new_today false on a later day")
	}
	if got.PromotedDate == nil || *got.PromotedDate != "2026-03-02" {
		t.Fatalf("expected original promoted date, got %v", got.PromotedDate)
	}
}

func TestApplyUpdatePathPromotesWithoutCap(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_ = m.SetDailyCap(ctx, "2026-03-02", 0)
	raw := rawListing()

	// A row stored unpromoted, e.g. by an earlier catalog import.
	seed := &domain.CanonicalDeal{ID: uuid.New(), RawListingID: raw.ID, IndustryTag: ptr(domain.IndustryPlumbing), IndustryConfidence: 90}
	if err := m.InsertPromoted(ctx, seed, "2026-03-01", 1); err != nil {
		t.Fatal(err)
	}

	p := newPromoter(m, 0)
	c := qualifying()
	c.IndustryTag = ptr(domain.IndustryPlumbing)
	d, err := p.Apply(ctx, raw, c)
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != Updated || !d.NewlyPromoted {
		t.Fatalf("expected update-path promotion, got %+v", d)
	}
	got, _ := m.GetCanonicalByRawID(ctx, raw.ID)
	if !got.IsPromoted || !got.IsNewToday {
		t.Fatalf("expected promoted today, got %+v", got)
	}
	if dc, _ := m.GetDailyCap(ctx, "2026-03-02", 0); dc.Used != 0 {
		t.Fatalf("update path must not consume cap, used=%d", dc.Used)
	}
}

func TestApplyClampsDisallowedTag(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	p := newPromoter(m, 5)
	raw := rawListing()
	_, _ = p.Apply(ctx, raw, qualifying())

	c := qualifying()
	c.IndustryTag = ptr(domain.IndustryTag("Roofing"))
	if _, err := p.Apply(ctx, raw, c); err != nil {
		t.Fatal(err)
	}
	got, _ := m.GetCanonicalByRawID(ctx, raw.ID)
	if got.IndustryTag == nil || *got.IndustryTag != domain.IndustryHVAC {
		t.Fatalf("expected disallowed tag rejected in favour of HVAC, got %v", got.IndustryTag)
	}

	fresh := rawListing()
	if d, _ := p.Apply(ctx, fresh, c); d.Outcome != Held {
		t.Fatalf("expected disallowed tag to be held on insert, got %+v", d)
	}
}

type failingStore struct{ store.Canonical }

func (failingStore) GetCanonicalByRawID(context.Context, uuid.UUID) (domain.CanonicalDeal, error) {
	return domain.CanonicalDeal{}, errors.New("connection reset")
}

func TestApplyPropagatesStoreErrors(t *testing.T) {
	p := newPromoter(failingStore{}, 5)
	if _, err := p.Apply(context.Background(), rawListing(), qualifying()); err == nil {
		t.Fatal("expected error")
	}
}

func TestToday(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	p := New(store.NewMemory(), 1, loc)
	p.now = func() time.Time { return time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC) }
	if got := p.Today(); got != "2026-03-02" {
		t.Fatalf("expected 2026-03-02, got %s", got)
	}
}
