package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/WessleyAI/dealflow/engine/domain"
)

const (
	strongWeight     = 35
	weakWeight       = 12
	multiStrongBonus = 10
	minWinningScore  = 55
	overrideScore    = 95
)

type keywordSet struct {
	strong    []string
	weak      []string
	exclusion []string
}

var industryKeywords = map[domain.IndustryTag]keywordSet{
	domain.IndustryHVAC: {
		strong: []string{
			"hvac", "heating and air", "heating & air", "heating and cooling",
			"air conditioning", "furnace", "heat pump", "ductwork", "mini-split",
		},
		weak: []string{
			"heating", "cooling", "ventilation", "air quality", "thermostat",
			"boiler", "duct", "a/c", "mechanical contractor",
		},
		exclusion: []string{"automotive", "auto repair", "hvac software"},
	},
	domain.IndustryPlumbing: {
		strong: []string{
			"plumbing", "plumber", "drain cleaning", "sewer line", "water heater",
			"backflow", "hydro jetting", "repipe",
		},
		weak: []string{
			"drain", "pipe", "fixture", "sewer", "septic", "leak detection",
			"water line", "gas line", "rooter",
		},
		exclusion: []string{"pipeline construction", "oil and gas"},
	},
	domain.IndustryElectrical: {
		strong: []string{
			"electrician", "electrical contractor", "electrical contracting",
			"electrical services", "panel upgrade", "low voltage", "wiring",
		},
		weak: []string{
			"electrical", "lighting", "generator", "circuit", "solar",
			"ev charger", "conduit", "breaker",
		},
		exclusion: []string{"electronics retail", "appliance repair", "electrical engineering software"},
	},
}

// suffixAliases maps a trailing source-name token to the tag it encodes.
var suffixAliases = map[string]domain.IndustryTag{
	"hvac":         domain.IndustryHVAC,
	"plumbing":     domain.IndustryPlumbing,
	"plumbers":     domain.IndustryPlumbing,
	"electrical":   domain.IndustryElectrical,
	"electricians": domain.IndustryElectrical,
}

type compiledSet struct {
	strong    []*regexp.Regexp
	weak      []*regexp.Regexp
	exclusion []*regexp.Regexp
}

var compiledKeywords = func() map[domain.IndustryTag]compiledSet {
	out := make(map[domain.IndustryTag]compiledSet, len(industryKeywords))
	for tag, ks := range industryKeywords {
		out[tag] = compiledSet{
			strong:    compileTerms(ks.strong),
			weak:      compileTerms(ks.weak),
			exclusion: compileTerms(ks.exclusion),
		}
	}
	return out
}()

// compileTerms matches each term on word boundaries, allowing a plural.
func compileTerms(terms []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(terms))
	for i, t := range terms {
		out[i] = regexp.MustCompile(`(?:^|[^a-z0-9])` + regexp.QuoteMeta(t) + `(?:s|es)?(?:$|[^a-z0-9])`)
	}
	return out
}

func countHits(blob string, res []*regexp.Regexp) int {
	n := 0
	for _, re := range res {
		if re.MatchString(blob) {
			n++
		}
	}
	return n
}

// Classification is the industry result for one listing.
type Classification struct {
	Tag        *domain.IndustryTag
	Confidence int
}

// ClassifyInput is the text the classifier looks at.
type ClassifyInput struct {
	SourceName    string
	URL           string
	Title         string
	CompanyName   string
	Headline      string
	TextSample    string
	IndustryTerms []string
}

// Classify assigns an industry tag. A source whose name ends in an industry
// suffix wins outright; otherwise keyword scoring over the text decides.
func Classify(in ClassifyInput) Classification {
	if tag, ok := SourceOverride(in.SourceName); ok {
		return Classification{Tag: &tag, Confidence: overrideScore}
	}

	blob := strings.ToLower(strings.Join(append([]string{
		in.SourceName, in.URL, in.Title, in.CompanyName, in.Headline, in.TextSample,
	}, in.IndustryTerms...), "\n"))

	var (
		best      domain.IndustryTag
		bestScore = -1
	)
	for _, tag := range domain.IndustryTags {
		score, ok := scoreIndustry(blob, compiledKeywords[tag])
		if ok && score > bestScore {
			best, bestScore = tag, score
		}
	}
	if bestScore < minWinningScore {
		return Classification{}
	}
	return Classification{Tag: &best, Confidence: bestScore}
}

func scoreIndustry(blob string, set compiledSet) (int, bool) {
	if countHits(blob, set.exclusion) > 0 {
		return 0, false
	}
	strong := countHits(blob, set.strong)
	weak := countHits(blob, set.weak)
	if strong < 1 && weak < 2 {
		return 0, false
	}
	score := strong*strongWeight + weak*weakWeight
	if strong >= 2 {
		score += multiStrongBonus
	}
	return min(score, 100), true
}

// SourceOverride reads an industry from the last word of a source name, as
// in "Sunbelt Listings - HVAC".
func SourceOverride(name string) (domain.IndustryTag, bool) {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return "", false
	}
	tag, ok := suffixAliases[words[len(words)-1]]
	return tag, ok
}
