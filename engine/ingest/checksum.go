package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/WessleyAI/dealflow/engine/domain"
)

// Change classifies a stub against its stored raw row.
type Change int

const (
	ChangeNew Change = iota
	ChangeUnchanged
	ChangeChanged
)

func (c Change) String() string {
	switch c {
	case ChangeNew:
		return "new"
	case ChangeUnchanged:
		return "unchanged"
	case ChangeChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// Status is the raw listing status stored for this change.
func (c Change) Status() domain.RawStatus {
	if c == ChangeChanged {
		return domain.RawChanged
	}
	return domain.RawActive
}

// Checksum hashes the index-level fields of a stub. The URL is the row key
// and is not part of the hash. Each field is length-prefixed so no two
// distinct stubs share an encoding.
func Checksum(s domain.Stub) string {
	h := sha256.New()
	for _, f := range []string{s.Title, s.DateHint, s.LocationHint, s.PriceHint} {
		fmt.Fprintf(h, "%d:%s", len(f), f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Diff classifies a stub checksum against the stored row, if any.
func Diff(prev *domain.RawListing, checksum string) Change {
	switch {
	case prev == nil:
		return ChangeNew
	case prev.Checksum == checksum:
		return ChangeUnchanged
	default:
		return ChangeChanged
	}
}
