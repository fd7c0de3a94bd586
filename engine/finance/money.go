// Package finance parses money figures out of free listing text.
//
// The grammar has three tiers: a labeled search ("Annual Revenue: ..."), then a
// range parse ("$1.2M - $1.5M", "$300K to $400K"), then a single value parse.
// Only money-like tokens are accepted: a token needs a "$", a K/M/B/million
// suffix or thousands grouping, so years and head counts are never read as money.
package finance

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	numberPattern = `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`
	tokenPattern  = `(\$\s*)?` + numberPattern + `(?:\s*(million|k|m|b))?\b`
	joinPattern   = `\s*(?:-|–|—|to)\s*`
)

var (
	singleRe    = regexp.MustCompile(`(?i)` + tokenPattern)
	rangeRe     = regexp.MustCompile(`(?i)` + tokenPattern + joinPattern + tokenPattern)
	moneyLikeRe = regexp.MustCompile(`(?i)\$|\d\s*(?:million|k|m|b)\b|\d{1,3}(?:,\d{3})+`)
)

var multipliers = map[string]float64{
	"":        1,
	"k":       1e3,
	"m":       1e6,
	"b":       1e9,
	"million": 1e6,
}

// Range is a parsed money range. A single value has Min and Max equal.
type Range struct {
	Min *int64
	Max *int64
}

// Empty reports whether no bound was parsed.
func (r Range) Empty() bool { return r.Min == nil && r.Max == nil }

// Representative collapses the range to one value: the average when both
// bounds exist, otherwise whichever bound is present.
func (r Range) Representative() (float64, bool) {
	switch {
	case r.Min != nil && r.Max != nil:
		return (float64(*r.Min) + float64(*r.Max)) / 2, true
	case r.Min != nil:
		return float64(*r.Min), true
	case r.Max != nil:
		return float64(*r.Max), true
	}
	return 0, false
}

func single(v int64) Range {
	lo, hi := v, v
	return Range{Min: &lo, Max: &hi}
}

func between(a, b int64) Range {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return Range{Min: &lo, Max: &hi}
}

// token is one matched money figure.
type token struct {
	dollar bool
	number string
	suffix string
}

func (t token) moneyLike() bool {
	return t.dollar || t.suffix != "" || strings.Contains(t.number, ",")
}

// borrows reports whether t is a plain number that takes other's suffix.
func (t token) borrows(other token) bool {
	if t.suffix != "" || other.suffix == "" || strings.Contains(t.number, ",") {
		return false
	}
	a, errA := strconv.ParseFloat(t.number, 64)
	b, errB := strconv.ParseFloat(strings.ReplaceAll(other.number, ",", ""), 64)
	return errA == nil && errB == nil && a <= b
}

func (t token) value() (int64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(t.number, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	v := math.Round(f * multipliers[strings.ToLower(t.suffix)])
	if v > math.MaxInt64 || v < 0 {
		return 0, false
	}
	return int64(v), true
}

func tokenAt(s string, m []int, group int) token {
	sub := func(g int) string {
		if m[2*g] < 0 {
			return ""
		}
		return s[m[2*g]:m[2*g+1]]
	}
	return token{
		dollar: sub(group) != "",
		number: sub(group + 1),
		suffix: sub(group + 2),
	}
}

// LooksMoneyLike reports whether s contains anything shaped like money.
func LooksMoneyLike(s string) bool {
	return moneyLikeRe.MatchString(s)
}

// ParseMoney parses the first money-like figure in s.
func ParseMoney(s string) (int64, bool) {
	for _, m := range singleRe.FindAllStringSubmatchIndex(s, -1) {
		t := tokenAt(s, m, 1)
		if !t.moneyLike() {
			continue
		}
		if v, ok := t.value(); ok {
			return v, true
		}
	}
	return 0, false
}

// parseRangeAt finds the first "N1 - N2" or "N1 to N2" figure in s. The
// second side must be money-like. A bare first number borrows the second
// side's suffix when it is not larger, so "$5-10M" and "5 - 10M" read as five
// to ten million; any other bare first number rejects the match.
func parseRangeAt(s string) (Range, int, bool) {
	for _, m := range rangeRe.FindAllStringSubmatchIndex(s, -1) {
		a, b := tokenAt(s, m, 1), tokenAt(s, m, 4)
		if !b.moneyLike() {
			continue
		}
		if a.borrows(b) {
			a.suffix = b.suffix
		}
		if !a.moneyLike() {
			continue
		}
		lo, okA := a.value()
		hi, okB := b.value()
		if okA && okB {
			return between(lo, hi), m[0], true
		}
	}
	return Range{}, -1, false
}

func parseSingleAt(s string) (Range, int, bool) {
	for _, m := range singleRe.FindAllStringSubmatchIndex(s, -1) {
		t := tokenAt(s, m, 1)
		if !t.moneyLike() {
			continue
		}
		if v, ok := t.value(); ok {
			return single(v), m[0], true
		}
	}
	return Range{}, -1, false
}

// parseFigure returns whichever range or single value starts first in s,
// preferring the range when both start at the same offset.
func parseFigure(s string) (Range, bool) {
	r, rAt, rOK := parseRangeAt(s)
	v, vAt, vOK := parseSingleAt(s)
	switch {
	case rOK && (!vOK || rAt <= vAt):
		return r, true
	case vOK:
		return v, true
	}
	return Range{}, false
}
