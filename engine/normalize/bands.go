package normalize

import (
	"math"

	"github.com/WessleyAI/dealflow/engine/finance"
)

type band struct {
	upper float64 // exclusive
	label string
}

var revenueBands = []band{
	{1e6, "<$1M"},
	{5e6, "$1M-$5M"},
	{10e6, "$5M-$10M"},
	{25e6, "$10M-$25M"},
	{50e6, "$25M-$50M"},
	{math.Inf(1), "$50M+"},
}

var ebitdaBands = []band{
	{250e3, "<$250K"},
	{500e3, "$250K-$500K"},
	{1e6, "$500K-$1M"},
	{3e6, "$1M-$3M"},
	{5e6, "$3M-$5M"},
	{math.Inf(1), "$5M+"},
}

func bandFor(r finance.Range, bands []band) string {
	v, ok := r.Representative()
	if !ok {
		return ""
	}
	for _, b := range bands {
		if v < b.upper {
			return b.label
		}
	}
	return ""
}

// RevenueBand buckets a revenue range; empty when no figure exists.
func RevenueBand(r finance.Range) string { return bandFor(r, revenueBands) }

// EBITDABand buckets an EBITDA range; empty when no figure exists.
func EBITDABand(r finance.Range) string { return bandFor(r, ebitdaBands) }
