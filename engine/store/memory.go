package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/dealflow/engine/domain"
)

var _ Store = (*Memory)(nil)

type rawKey struct {
	sourceID string
	url      string
}

// Memory is an in-process Store. It mirrors the Postgres semantics,
// including the atomic cap check, and is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	sources   map[string]domain.Source
	raw       map[rawKey]domain.RawListing
	rawByID   map[uuid.UUID]rawKey
	canonical map[uuid.UUID]domain.CanonicalDeal // keyed by raw listing id
	caps      map[domain.Day]domain.DailyCap
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		sources:   make(map[string]domain.Source),
		raw:       make(map[rawKey]domain.RawListing),
		rawByID:   make(map[uuid.UUID]rawKey),
		canonical: make(map[uuid.UUID]domain.CanonicalDeal),
		caps:      make(map[domain.Day]domain.DailyCap),
	}
}

func (m *Memory) ListSources(_ context.Context) ([]domain.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpsertSources(_ context.Context, sources []domain.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sources {
		if prev, ok := m.sources[s.ID]; ok {
			s.LastCrawledAt = prev.LastCrawledAt
		} else {
			s.LastCrawledAt = nil
		}
		m.sources[s.ID] = s
	}
	return nil
}

func (m *Memory) TouchSourceCrawled(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.LastCrawledAt = &at
	m.sources[id] = s
	return nil
}

func (m *Memory) GetRawListing(_ context.Context, sourceID, url string) (domain.RawListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.raw[rawKey{sourceID, url}]
	if !ok {
		return domain.RawListing{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *Memory) UpsertRawListing(_ context.Context, raw *domain.RawListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rawKey{raw.SourceID, raw.URL}
	if prev, ok := m.raw[key]; ok {
		raw.ID = prev.ID
		raw.FirstSeenAt = prev.FirstSeenAt
		raw.LastFetchError = prev.LastFetchError
	} else {
		if raw.ID == uuid.Nil {
			raw.ID = uuid.New()
		}
		if raw.FirstSeenAt.IsZero() {
			raw.FirstSeenAt = raw.LastSeenAt
		}
		raw.LastFetchError = ""
	}
	m.raw[key] = *raw
	m.rawByID[raw.ID] = key
	return nil
}

func (m *Memory) UpdateRawPayload(_ context.Context, id uuid.UUID, payload domain.RawPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.rawByID[id]
	if !ok {
		return domain.ErrNotFound
	}
	r := m.raw[key]
	r.Payload = payload
	r.LastFetchError = ""
	m.raw[key] = r
	return nil
}

func (m *Memory) SetRawFetchError(_ context.Context, id uuid.UUID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.rawByID[id]
	if !ok {
		return domain.ErrNotFound
	}
	r := m.raw[key]
	r.LastFetchError = msg
	m.raw[key] = r
	return nil
}

func (m *Memory) GetCanonicalByRawID(_ context.Context, rawID uuid.UUID) (domain.CanonicalDeal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.canonical[rawID]
	if !ok {
		return domain.CanonicalDeal{}, domain.ErrNotFound
	}
	return d, nil
}

func (m *Memory) InsertPromoted(_ context.Context, deal *domain.CanonicalDeal, day domain.Day, defaultCap int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.canonical[deal.RawListingID]; exists {
		return fmt.Errorf("store: canonical deal for raw listing %s already exists", deal.RawListingID)
	}
	c, ok := m.caps[day]
	if !ok {
		c = domain.DailyCap{Day: day, Cap: defaultCap}
	}
	if c.Used >= c.Cap {
		m.caps[day] = c
		return domain.ErrCapExhausted
	}
	c.Used++
	m.caps[day] = c
	if deal.ID == uuid.Nil {
		deal.ID = uuid.New()
	}
	m.canonical[deal.RawListingID] = *deal
	return nil
}

func (m *Memory) UpdateCanonical(_ context.Context, deal *domain.CanonicalDeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.canonical[deal.RawListingID]
	if !ok || prev.ID != deal.ID {
		return domain.ErrNotFound
	}
	next := *deal
	next.IsPromoted = prev.IsPromoted || deal.IsPromoted
	if prev.PromotedDate != nil {
		next.PromotedDate = prev.PromotedDate
	}
	m.canonical[deal.RawListingID] = next
	return nil
}

func (m *Memory) TouchCanonicalSeen(_ context.Context, rawID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.canonical[rawID]; ok {
		d.LastSeenAt = at
		m.canonical[rawID] = d
	}
	return nil
}

func (m *Memory) GetDailyCap(_ context.Context, day domain.Day, defaultCap int) (domain.DailyCap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.caps[day]; ok {
		return c, nil
	}
	return domain.DailyCap{Day: day, Cap: defaultCap}, nil
}

func (m *Memory) SetDailyCap(_ context.Context, day domain.Day, cap int) error {
	if cap < 0 {
		return domain.NewValidationError("cap", fmt.Sprint(cap), domain.ErrNegativeCap)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.caps[day]
	c.Day = day
	c.Cap = cap
	m.caps[day] = c
	return nil
}

// RawListings returns a snapshot of every raw listing, ordered by source and URL.
func (m *Memory) RawListings() []domain.RawListing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RawListing, 0, len(m.raw))
	for _, r := range m.raw {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// CanonicalDeals returns a snapshot of the catalog ordered by first sighting.
func (m *Memory) CanonicalDeals() []domain.CanonicalDeal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.CanonicalDeal, 0, len(m.canonical))
	for _, d := range m.canonical {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
		}
		return out[i].SourceURL < out[j].SourceURL
	})
	return out
}
