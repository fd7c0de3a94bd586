package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/WessleyAI/dealflow/engine/domain"
)

// RSS reads listing feeds. Each item link becomes a stub; detail pages are
// parsed as generic HTML.
type RSS struct{}

// NewRSS returns the RSS/Atom parser.
func NewRSS() *RSS { return &RSS{} }

func (p *RSS) Key() Key { return KeyRSS }

func (p *RSS) ParseIndex(src domain.Source, raw []byte) ([]domain.Stub, error) {
	base, err := parseBase(src)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	set := newStubSet()
	for _, item := range feed.Items {
		u, ok := resolve(base, item.Link)
		if !ok {
			continue
		}
		title := collapse(stripTags(item.Title))
		loc, price, _ := hintsFrom(collapse(stripTags(item.Description)), title)
		set.add(domain.Stub{
			URL:          u.String(),
			Title:        title,
			DateHint:     itemDate(item),
			LocationHint: loc,
			PriceHint:    price,
		})
	}
	return set.stubs, nil
}

func itemDate(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	return strings.TrimSpace(item.Published)
}

func (p *RSS) ParseDetail(src domain.Source, _ domain.Stub, raw []byte) (domain.ExtractedFields, error) {
	base, err := parseBase(src)
	if err != nil {
		return domain.ExtractedFields{}, err
	}
	return extractDetail(raw, base, detailOptions{})
}

// stripTags drops markup from feed descriptions.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
