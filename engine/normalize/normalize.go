// Package normalize turns parsed listing fields into a scored catalog
// candidate: industry tag, financial ranges and bands, deal type and a
// completeness score.
package normalize

import (
	"strings"
	"time"

	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/engine/finance"
)

// Input is everything known about one listing after detail parsing.
type Input struct {
	Source domain.Source
	Stub   domain.Stub
	Fields domain.ExtractedFields
}

// Normalize builds the candidate for one listing.
func Normalize(in Input) domain.Candidate {
	f := in.Fields
	c := domain.Candidate{
		SourceID:     in.Source.ID,
		SourceName:   in.Source.Name,
		SourceURL:    in.Stub.URL,
		CompanyName:  strings.TrimSpace(f.CompanyName),
		Headline:     firstNonEmpty(f.Headline, in.Stub.Title),
		City:         strings.TrimSpace(f.City),
		State:        strings.TrimSpace(f.State),
		TeaserPDFURL: f.TeaserPDFURL,
		HasTeaserPDF: f.TeaserPDFURL != "",
		TextSample:   f.TextSample,
		DealType:     DealTypeFromTerms(f.DealTypeTerms),
		PublishedAt:  ParseDateHint(in.Stub.DateHint),
	}
	if c.State != "" {
		if code, ok := StateCode(c.State); ok {
			c.State = code
		}
	}
	if c.City == "" && c.State == "" {
		if city, state, ok := ParseLocation(in.Stub.LocationHint); ok {
			c.City, c.State = city, state
		}
	}

	blob := strings.Join(append(append([]string{}, f.FinancialText...), f.TextSample), "\n")
	revenue := finance.Extract(blob, finance.Revenue)
	ebitda := finance.Extract(blob, finance.EBITDA)
	c.RevenueMin, c.RevenueMax = revenue.Min, revenue.Max
	c.EBITDAMin, c.EBITDAMax = ebitda.Min, ebitda.Max
	c.RevenueBand = RevenueBand(revenue)
	c.EBITDABand = EBITDABand(ebitda)
	c.AskingPrice = askingPrice(f, blob, in.Stub.PriceHint)

	cls := Classify(ClassifyInput{
		SourceName:    in.Source.Name,
		URL:           in.Stub.URL,
		Title:         in.Stub.Title,
		CompanyName:   c.CompanyName,
		Headline:      c.Headline,
		TextSample:    f.TextSample,
		IndustryTerms: f.IndustryTerms,
	})
	c.IndustryTag, c.IndustryConfidence = cls.Tag, cls.Confidence

	c.ConfidenceScore = Score(c)
	c.DataConfidence = domain.ConfidenceLabel(c.ConfidenceScore)
	return c
}

// askingPrice prefers the parser's explicit value, then a labeled figure in
// the text, then the index-level price hint.
func askingPrice(f domain.ExtractedFields, blob, hint string) *int64 {
	if f.AskingPrice != nil {
		v := *f.AskingPrice
		return &v
	}
	if r := finance.Extract(blob, finance.AskingPrice); r.Min != nil {
		v := *r.Min
		return &v
	}
	if v, ok := finance.ParseMoney(hint); ok {
		return &v
	}
	return nil
}

// DealTypeFromTerms reports asset or stock only when the terms agree.
func DealTypeFromTerms(terms []string) domain.DealType {
	var asset, stock bool
	for _, t := range terms {
		t = strings.ToLower(t)
		switch {
		case strings.Contains(t, "asset"):
			asset = true
		case strings.Contains(t, "stock"), strings.Contains(t, "share"), strings.Contains(t, "equity"):
			stock = true
		}
	}
	switch {
	case asset && !stock:
		return domain.DealAsset
	case stock && !asset:
		return domain.DealStock
	}
	return domain.DealUnknown
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDateHint parses the common listing date formats; nil when unrecognized.
func ParseDateHint(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
