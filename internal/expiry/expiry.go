// Package expiry decides whether a link record is still within its validity window.
package expiry

import (
	"time"

	"snaplink/internal/domain"
)

// State is the classification of a record at a given instant.
type State int

const (
	Live State = iota
	Expired
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Classify reports Expired iff now >= record.ExpiresAt. The expiry instant itself is expired.
func Classify(record domain.LinkRecord, now time.Time) State {
	if now.Before(record.ExpiresAt) {
		return Live
	}
	return Expired
}
