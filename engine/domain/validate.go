package domain

import (
	"net/url"
	"strings"
)

// ValidateSource checks a source definition. known reports whether a parser
// key is registered; a nil known skips that check.
func ValidateSource(s Source, known func(string) bool) error {
	if strings.TrimSpace(s.ID) == "" {
		return NewValidationError("id", s.ID, ErrInvalidSource)
	}
	if strings.TrimSpace(s.Name) == "" {
		return NewValidationError("name", s.Name, ErrInvalidSource)
	}
	u, err := url.Parse(s.EntryURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError("url", s.EntryURL, ErrInvalidURL)
	}
	if known != nil && !known(s.ParserKey) {
		return NewValidationError("parser", s.ParserKey, ErrUnknownParser)
	}
	return nil
}

// ValidateSources validates each source and rejects duplicate ids.
func ValidateSources(sources []Source, known func(string) bool) error {
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if err := ValidateSource(s, known); err != nil {
			return err
		}
		if seen[s.ID] {
			return NewValidationError("id", s.ID, ErrDuplicateSource)
		}
		seen[s.ID] = true
	}
	return nil
}
