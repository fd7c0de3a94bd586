package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/WessleyAI/dealflow/engine/domain"
)

const maxTailBytes = 400

var listingPathRe = regexp.MustCompile(`(?i)/(?:listings?|business-for-sale|businesses-for-sale|business-opportunit(?:y|ies)|opportunit(?:y|ies)|for-sale)/[^/?#]+`)

// BrokerHTML scrapes broker index pages. It harvests links whose path looks
// like a listing on the source's own host and reads hints from the text that
// follows each link.
type BrokerHTML struct {
	pathRe *regexp.Regexp
}

// NewBrokerHTML returns the broker HTML parser.
func NewBrokerHTML() *BrokerHTML {
	return &BrokerHTML{pathRe: listingPathRe}
}

func (p *BrokerHTML) Key() Key { return KeyBrokerHTML }

// pendingStub is a listing link whose trailing text is still being read.
type pendingStub struct {
	url   string
	title strings.Builder
	tail  strings.Builder
}

func (p *BrokerHTML) ParseIndex(src domain.Source, raw []byte) ([]domain.Stub, error) {
	base, err := parseBase(src)
	if err != nil {
		return nil, err
	}
	set := newStubSet()
	z := html.NewTokenizer(bytes.NewReader(raw))

	var (
		cur      *pendingStub
		inAnchor bool
		skip     int
	)
	flush := func() {
		if cur == nil {
			return
		}
		title := collapse(cur.title.String())
		loc, price, date := hintsFrom(collapse(cur.tail.String()), title)
		set.add(domain.Stub{URL: cur.url, Title: title, LocationHint: loc, PriceHint: price, DateHint: date})
		cur = nil
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				flush()
				return set.stubs, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if skipTags[tok.DataAtom] && tt == html.StartTagToken {
				skip++
				continue
			}
			if tok.DataAtom != atom.A {
				if blockTags[tok.DataAtom] && cur != nil {
					cur.tail.WriteByte(' ')
				}
				continue
			}
			flush()
			if u, ok := p.listingURL(base, attr(tok, "href")); ok {
				cur = &pendingStub{url: u}
				inAnchor = tt == html.StartTagToken
			}
		case html.EndTagToken:
			tok := z.Token()
			switch {
			case skipTags[tok.DataAtom]:
				if skip > 0 {
					skip--
				}
			case tok.DataAtom == atom.A:
				inAnchor = false
			}
		case html.TextToken:
			if skip > 0 || cur == nil {
				continue
			}
			if inAnchor {
				cur.title.Write(z.Text())
				cur.title.WriteByte(' ')
			} else if cur.tail.Len() < maxTailBytes {
				cur.tail.Write(z.Text())
				cur.tail.WriteByte(' ')
			}
		}
	}
}

// listingURL accepts same-site links whose path looks like a listing.
func (p *BrokerHTML) listingURL(base *url.URL, href string) (string, bool) {
	u, ok := resolve(base, href)
	if !ok || !sameSite(base, u) || !p.pathRe.MatchString(u.Path) {
		return "", false
	}
	return u.String(), true
}

func sameSite(base, u *url.URL) bool {
	b := strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")
	h := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return h == b || strings.HasSuffix(h, "."+b)
}

func (p *BrokerHTML) ParseDetail(src domain.Source, _ domain.Stub, raw []byte) (domain.ExtractedFields, error) {
	base, err := parseBase(src)
	if err != nil {
		return domain.ExtractedFields{}, err
	}
	return extractDetail(raw, base, detailOptions{})
}
