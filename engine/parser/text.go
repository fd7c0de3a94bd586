package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/engine/finance"
	"github.com/WessleyAI/dealflow/engine/normalize"
)

const (
	textSampleRunes   = 1200
	maxFragmentRunes  = 300
	maxFragments      = 20
	maxCompanyNameLen = 120
)

var (
	priceHintRe = regexp.MustCompile(`(?i)\$\s?\d[\d,]*(?:\.\d+)?(?:\s*(?:million|k|m|b)\b)?`)
	dateHintRe  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{4}\b|\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{1,2}, \d{4}\b`)
	dealTermRe  = regexp.MustCompile(`(?i)\b(?:asset|stock|share|equity) (?:sale|purchase|deal)\b`)
	teaserRe    = regexp.MustCompile(`(?i)teaser|cim\b|memorandum|executive summary|overview|profile|brochure`)
)

var (
	companyLabels  = []string{"business name", "company name", "company"}
	locationLabels = []string{"location", "city"}
	stateLabels    = []string{"state"}
	industryLabels = []string{"industry", "category", "business type", "sector"}
	priceLabels    = []string{"asking price", "listing price", "list price", "price"}
)

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.Tr: true, atom.Td: true, atom.Th: true, atom.Table: true, atom.Dt: true, atom.Dd: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true, atom.Main: true,
	atom.Title: true,
}

var skipTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Svg: true, atom.Template: true,
}

// page is the visible structure of an HTML document.
type page struct {
	title string
	h1    string
	lines []string
	links []link
}

type link struct {
	href string
	text string
}

func readPage(raw []byte) (*page, error) {
	z := html.NewTokenizer(bytes.NewReader(raw))
	var (
		p       page
		text    strings.Builder
		skip    int
		inTitle bool
		inH1    bool
		h1      strings.Builder
		title   strings.Builder
		anchor  *link
		anchorT strings.Builder
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				p.title = collapse(title.String())
				p.h1 = collapse(h1.String())
				p.lines = splitLines(text.String())
				return &p, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if skipTags[tok.DataAtom] && tt == html.StartTagToken {
				skip++
				continue
			}
			if blockTags[tok.DataAtom] {
				text.WriteByte('\n')
			}
			switch tok.DataAtom {
			case atom.Title:
				inTitle = true
			case atom.H1:
				inH1 = h1.Len() == 0
			case atom.A:
				anchor = &link{href: attr(tok, "href")}
				anchorT.Reset()
			}
		case html.EndTagToken:
			tok := z.Token()
			if skipTags[tok.DataAtom] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if blockTags[tok.DataAtom] {
				text.WriteByte('\n')
			}
			switch tok.DataAtom {
			case atom.Title:
				inTitle = false
			case atom.H1:
				inH1 = false
			case atom.A:
				if anchor != nil {
					anchor.text = collapse(anchorT.String())
					p.links = append(p.links, *anchor)
					anchor = nil
				}
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			t := string(z.Text())
			switch {
			case inTitle:
				title.WriteString(t)
				continue
			case inH1:
				h1.WriteString(t)
			}
			if anchor != nil {
				anchorT.WriteString(t)
			}
			text.WriteString(t)
		}
	}
}

func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func splitLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = collapse(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

// labeledValue finds "Label: value" on one line, or a line holding only the
// label followed by its value on the next line.
func labeledValue(lines []string, labels []string) string {
	for i, line := range lines {
		for _, label := range labels {
			if len(line) < len(label) || !strings.EqualFold(line[:len(label)], label) {
				continue
			}
			rest := strings.TrimSpace(line[len(label):])
			switch {
			case rest == "" || rest == ":":
				if i+1 < len(lines) {
					return lines[i+1]
				}
			case strings.HasPrefix(rest, ":"):
				if v := strings.TrimSpace(rest[1:]); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// detailOptions selects how much a detail parse extracts.
type detailOptions struct {
	minimal bool
}

// extractDetail reads a listing page. Minimal mode keeps only the headline,
// financial fragments and text sample.
func extractDetail(raw []byte, base *url.URL, opts detailOptions) (domain.ExtractedFields, error) {
	p, err := readPage(raw)
	if err != nil {
		return domain.ExtractedFields{}, err
	}
	var f domain.ExtractedFields
	f.Headline = firstSet(p.h1, p.title)
	f.FinancialText = financialFragments(p.lines)
	f.TextSample = truncateRunes(collapse(strings.Join(p.lines, " ")), textSampleRunes)
	if opts.minimal {
		return f, nil
	}

	if name := labeledValue(p.lines, companyLabels); name != "" && len(name) <= maxCompanyNameLen {
		f.CompanyName = name
	}
	if loc := labeledValue(p.lines, locationLabels); loc != "" {
		if city, state, ok := normalize.ParseLocation(loc); ok {
			f.City, f.State = city, state
		}
	}
	if f.State == "" {
		if st := labeledValue(p.lines, stateLabels); st != "" {
			if code, ok := normalize.StateCode(st); ok {
				f.State = code
			}
		}
	}
	if v := labeledValue(p.lines, priceLabels); v != "" {
		if price, ok := finance.ParseMoney(v); ok {
			f.AskingPrice = &price
		}
	}
	if ind := labeledValue(p.lines, industryLabels); ind != "" {
		f.IndustryTerms = append(f.IndustryTerms, ind)
	}
	f.DealTypeTerms = dealTerms(p.lines)
	f.TeaserPDFURL = teaserLink(base, p.links)
	return f, nil
}

func financialFragments(lines []string) []string {
	var out []string
	for _, l := range lines {
		if len(out) == maxFragments {
			break
		}
		if finance.HasLabel(l) && finance.LooksMoneyLike(l) {
			out = append(out, truncateRunes(l, maxFragmentRunes))
		}
	}
	return out
}

func dealTerms(lines []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lines {
		for _, m := range dealTermRe.FindAllString(l, -1) {
			m = strings.ToLower(m)
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

func teaserLink(base *url.URL, links []link) string {
	for _, l := range links {
		u, ok := resolve(base, l.href)
		if !ok || !strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
			continue
		}
		if teaserRe.MatchString(l.text) || teaserRe.MatchString(u.Path) {
			return u.String()
		}
	}
	return ""
}

// hintsFrom reads location, price and date hints from the text near a link.
// Each hint comes from the first text that carries one.
func hintsFrom(texts ...string) (location, price, date string) {
	for _, text := range texts {
		if location == "" {
			if city, state, ok := normalize.ParseLocation(text); ok {
				location = state
				if city != "" {
					location = city + ", " + state
				}
			}
		}
		if price == "" {
			price = strings.TrimSpace(priceHintRe.FindString(text))
		}
		if date == "" {
			date = dateHintRe.FindString(text)
		}
	}
	return location, price, date
}
