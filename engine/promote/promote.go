// Package promote decides whether a normalized candidate enters the
// canonical catalog and applies the insert, update or hold against the
// daily admission cap.
package promote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/engine/normalize"
	"github.com/WessleyAI/dealflow/engine/store"
)

// Gate thresholds.
const (
	MinIndustryConfidence = 70
	MinConfidenceScore    = 45
)

// DefaultDailyCap applies to days with no configured cap.
const DefaultDailyCap = 10

// Outcome is the result of applying a candidate.
type Outcome string

const (
	Promoted Outcome = "promoted"
	Updated  Outcome = "updated"
	Held     Outcome = "held"
)

// Hold reasons.
const (
	ReasonNoIndustry   = "no_industry"
	ReasonGate         = "gate"
	ReasonCapExhausted = "cap_exhausted"
)

// Decision reports what happened to one candidate. Deal is nil when held.
type Decision struct {
	Outcome Outcome
	Reason  string
	Deal    *domain.CanonicalDeal
	// NewlyPromoted is true when this call flipped is_promoted, on either path.
	NewlyPromoted bool
}

// Gate reports whether a candidate with the given tag and industry
// confidence qualifies for the catalog.
func Gate(tag *domain.IndustryTag, industryConfidence int, c domain.Candidate) bool {
	return tag != nil && tag.Allowed() &&
		industryConfidence >= MinIndustryConfidence &&
		c.ConfidenceScore >= MinConfidenceScore &&
		normalize.HasAnchor(c)
}

// Promoter runs the canonical upsert state machine.
type Promoter struct {
	store store.Canonical
	cap   int
	loc   *time.Location
	now   func() time.Time
}

// New returns a Promoter. "Today" is computed in loc; defaultCap applies to
// days without a stored cap.
func New(s store.Canonical, defaultCap int, loc *time.Location) *Promoter {
	if loc == nil {
		loc = time.UTC
	}
	return &Promoter{store: s, cap: defaultCap, loc: loc, now: time.Now}
}

// DefaultCap is the cap applied to days with no stored counter.
func (p *Promoter) DefaultCap() int { return p.cap }

// Today returns the current civil day in the promoter's zone.
func (p *Promoter) Today() domain.Day {
	return domain.DayOf(p.now(), p.loc)
}

// Apply runs c, derived from raw listing raw, through the state machine.
func (p *Promoter) Apply(ctx context.Context, raw domain.RawListing, c domain.Candidate) (Decision, error) {
	now := p.now()
	today := domain.DayOf(now, p.loc)

	existing, err := p.store.GetCanonicalByRawID(ctx, raw.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return p.insert(ctx, raw, c, now, today)
	case err != nil:
		return Decision{}, fmt.Errorf("promote: load canonical deal: %w", err)
	}
	return p.update(ctx, existing, c, now, today)
}

func (p *Promoter) insert(ctx context.Context, raw domain.RawListing, c domain.Candidate, now time.Time, today domain.Day) (Decision, error) {
	if c.IndustryTag == nil || !c.IndustryTag.Allowed() {
		return Decision{Outcome: Held, Reason: ReasonNoIndustry}, nil
	}
	if !Gate(c.IndustryTag, c.IndustryConfidence, c) {
		return Decision{Outcome: Held, Reason: ReasonGate}, nil
	}

	tag := *c.IndustryTag
	deal := &domain.CanonicalDeal{
		ID:                 uuid.New(),
		RawListingID:       raw.ID,
		IndustryTag:        &tag,
		IndustryConfidence: c.IndustryConfidence,
		FirstSeenAt:        firstSeen(raw, now),
		LastSeenAt:         now,
		IsPromoted:         true,
		PromotedDate:       &today,
		IsNewToday:         true,
	}
	deal.ApplyCandidate(c)

	err := p.store.InsertPromoted(ctx, deal, today, p.cap)
	if errors.Is(err, domain.ErrCapExhausted) {
		return Decision{Outcome: Held, Reason: ReasonCapExhausted}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("promote: insert canonical deal: %w", err)
	}
	return Decision{Outcome: Promoted, Deal: deal, NewlyPromoted: true}, nil
}

func (p *Promoter) update(ctx context.Context, deal domain.CanonicalDeal, c domain.Candidate, now time.Time, today domain.Day) (Decision, error) {
	tag, conf := resolveTag(deal.IndustryTag, deal.IndustryConfidence, c.IndustryTag, c.IndustryConfidence)

	// Rescore with the resolved tag.
	c.IndustryTag, c.IndustryConfidence = tag, conf
	c.ConfidenceScore = normalize.Score(c)
	c.DataConfidence = domain.ConfidenceLabel(c.ConfidenceScore)

	deal.ApplyCandidate(c)
	deal.IndustryTag, deal.IndustryConfidence = tag, conf
	deal.LastSeenAt = now

	newly := false
	if !deal.IsPromoted && Gate(tag, conf, c) {
		deal.IsPromoted = true
		deal.PromotedDate = &today
		newly = true
	}
	deal.IsNewToday = deal.PromotedDate != nil && *deal.PromotedDate == today

	if err := p.store.UpdateCanonical(ctx, &deal); err != nil {
		return Decision{}, fmt.Errorf("promote: update canonical deal: %w", err)
	}
	return Decision{Outcome: Updated, Deal: &deal, NewlyPromoted: newly}, nil
}

// resolveTag keeps the prior tag when the new pass has none. Tags outside
// the allowed set never survive.
func resolveTag(prior *domain.IndustryTag, priorConf int, next *domain.IndustryTag, nextConf int) (*domain.IndustryTag, int) {
	if next != nil && next.Allowed() {
		t := *next
		return &t, nextConf
	}
	if prior != nil && prior.Allowed() {
		t := *prior
		return &t, priorConf
	}
	return nil, 0
}

func firstSeen(raw domain.RawListing, now time.Time) time.Time {
	if raw.FirstSeenAt.IsZero() {
		return now
	}
	return raw.FirstSeenAt
}
