package normalize

import (
	"unicode/utf8"

	"github.com/WessleyAI/dealflow/engine/domain"
)

const (
	longSampleRunes   = 200
	anchorSampleRunes = 160
)

// Score returns the completeness score of a candidate, capped at 100.
func Score(c domain.Candidate) int {
	score := 0
	if c.Headline != "" {
		score += 15
	}
	if c.CompanyName != "" {
		score += 15
	}
	if c.IndustryTag != nil {
		score += 15
	}
	if c.City != "" || c.State != "" {
		score += 15
	}
	if c.HasFinancials() {
		score += 20
	}
	if c.AskingPrice != nil {
		score += 10
	}
	if c.HasTeaserPDF {
		score += 10
	}
	if utf8.RuneCountInString(c.TextSample) >= longSampleRunes {
		score += 5
	}
	return min(score, 100)
}

// HasAnchor reports whether the candidate carries geography, a financial
// figure or a substantial text sample.
func HasAnchor(c domain.Candidate) bool {
	return c.City != "" || c.State != "" ||
		c.HasFinancials() ||
		utf8.RuneCountInString(c.TextSample) >= anchorSampleRunes
}
