package finance

import (
	"regexp"
	"strings"
)

// Field selects which figure to extract.
type Field int

const (
	Revenue Field = iota
	EBITDA
	AskingPrice
)

func (f Field) String() string {
	switch f {
	case Revenue:
		return "revenue"
	case EBITDA:
		return "ebitda"
	case AskingPrice:
		return "asking_price"
	}
	return "unknown"
}

const (
	labelWindow  = 120
	windowBefore = 60
	windowAfter  = 220
)

// labels are listed most specific first so the alternation prefers them.
var labels = map[Field][]string{
	Revenue:     {"annual revenue", "gross revenue", "total revenue", "annual sales", "gross sales", "revenues", "revenue", "sales"},
	EBITDA:      {"adjusted ebitda", "adj. ebitda", "ebitda"},
	AskingPrice: {"asking price", "listing price", "list price", "price"},
}

var labelRes = func() map[Field]*regexp.Regexp {
	out := make(map[Field]*regexp.Regexp, len(labels))
	for f, ls := range labels {
		quoted := make([]string, len(ls))
		for i, l := range ls {
			quoted[i] = regexp.QuoteMeta(l)
		}
		out[f] = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return out
}()

// Extract finds the figure for field in text. It tries every label
// occurrence with the window that follows it, then falls back to wider
// windows around each occurrence that look money-like. The result is empty
// when nothing qualifies.
func Extract(text string, field Field) Range {
	re, ok := labelRes[field]
	if !ok || text == "" {
		return Range{}
	}
	hits := re.FindAllStringIndex(text, -1)

	for _, h := range hits {
		end := min(h[1]+labelWindow, len(text))
		if r, ok := parseFigure(text[h[1]:end]); ok {
			return r
		}
	}

	for _, h := range hits {
		start := max(h[0]-windowBefore, 0)
		end := min(h[1]+windowAfter, len(text))
		window := text[start:end]
		if !LooksMoneyLike(window) {
			continue
		}
		if r, ok := parseFigure(window); ok {
			return r
		}
	}
	return Range{}
}

// HasLabel reports whether text mentions any financial label.
func HasLabel(text string) bool {
	for _, re := range labelRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
