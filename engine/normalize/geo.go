package normalize

import (
	"regexp"
	"strings"
)

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "florida": "FL", "georgia": "GA",
	"hawaii": "HI", "idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV", "new hampshire": "NH", "new jersey": "NJ",
	"new mexico": "NM", "new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
	"district of columbia": "DC",
}

var stateCodes = func() map[string]bool {
	out := make(map[string]bool, len(stateNames))
	for _, code := range stateNames {
		out[code] = true
	}
	return out
}()

var cityStateRe = regexp.MustCompile(`([A-Z][A-Za-z.'\-]*(?:\s+[A-Z][A-Za-z.'\-]*){0,3}),\s*([A-Z]{2}|[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`)

// StateCode returns the two-letter code for a state code or full name.
func StateCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if up := strings.ToUpper(s); len(up) == 2 && stateCodes[up] {
		return up, true
	}
	code, ok := stateNames[strings.ToLower(s)]
	return code, ok
}

// ParseLocation reads "City, ST" or "City, State" out of s. A bare state
// name or code yields only the state.
func ParseLocation(s string) (city, state string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", false
	}
	for _, m := range cityStateRe.FindAllStringSubmatch(s, -1) {
		if code, ok := StateCode(m[2]); ok {
			return strings.TrimSpace(m[1]), code, true
		}
	}
	if code, ok := StateCode(s); ok {
		return "", code, true
	}
	return "", "", false
}
