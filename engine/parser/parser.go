// Package parser turns fetched index and detail pages into listing stubs and
// extracted fields. Each source names one parser by key.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/WessleyAI/dealflow/engine/domain"
)

// Key identifies a parser implementation.
type Key string

const (
	KeyBrokerHTML Key = "broker_html"
	KeyRSS        Key = "rss"
	KeySitemap    Key = "sitemap"
)

// ErrMalformed is returned when a page cannot be parsed at all.
var ErrMalformed = errors.New("malformed document")

// Parser extracts listings from one kind of source.
type Parser interface {
	Key() Key
	// ParseIndex returns the listing stubs on an index page, deduplicated by URL.
	ParseIndex(src domain.Source, raw []byte) ([]domain.Stub, error)
	// ParseDetail reads text-evidenced fields off a listing page.
	ParseDetail(src domain.Source, stub domain.Stub, raw []byte) (domain.ExtractedFields, error)
}

var (
	_ Parser = (*BrokerHTML)(nil)
	_ Parser = (*RSS)(nil)
	_ Parser = (*Sitemap)(nil)
)

// Registry resolves parser keys.
type Registry struct {
	parsers map[Key]Parser
}

// NewRegistry builds a registry from the given parsers. Later parsers with a
// duplicate key replace earlier ones.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[Key]Parser, len(parsers))}
	for _, p := range parsers {
		r.parsers[p.Key()] = p
	}
	return r
}

// Default returns the registry with every built-in parser.
func Default() *Registry {
	return NewRegistry(NewBrokerHTML(), NewRSS(), NewSitemap())
}

// Lookup returns the parser for key or an ErrUnknownParser validation error.
func (r *Registry) Lookup(key string) (Parser, error) {
	p, ok := r.parsers[Key(key)]
	if !ok {
		return nil, domain.NewValidationError("parser", key, domain.ErrUnknownParser)
	}
	return p, nil
}

// Known reports whether key is registered.
func (r *Registry) Known(key string) bool {
	_, ok := r.parsers[Key(key)]
	return ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.parsers))
	for k := range r.parsers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// resolve makes href absolute against base, drops the fragment and rejects
// anything that is not http(s).
func resolve(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, true
}

func parseBase(src domain.Source) (*url.URL, error) {
	base, err := url.Parse(src.EntryURL)
	if err != nil {
		return nil, fmt.Errorf("source %s entry url: %w", src.ID, err)
	}
	return base, nil
}

// stubSet keeps stubs unique by URL in first-seen order, filling blank hints
// from later duplicates.
type stubSet struct {
	stubs []domain.Stub
	index map[string]int
}

func newStubSet() *stubSet { return &stubSet{index: make(map[string]int)} }

func (s *stubSet) add(st domain.Stub) {
	if i, ok := s.index[st.URL]; ok {
		cur := &s.stubs[i]
		cur.Title = firstSet(cur.Title, st.Title)
		cur.DateHint = firstSet(cur.DateHint, st.DateHint)
		cur.LocationHint = firstSet(cur.LocationHint, st.LocationHint)
		cur.PriceHint = firstSet(cur.PriceHint, st.PriceHint)
		return
	}
	s.index[st.URL] = len(s.stubs)
	s.stubs = append(s.stubs, st)
}

func firstSet(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
