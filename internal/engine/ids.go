package engine

import (
	"github.com/google/uuid"
)

// IDGenerator produces session ids. Implemented by UUIDv7Generator
// (production) and testutil.FixedIDs (tests).
type IDGenerator interface {
	New() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids sort by
// creation time in logs and stored traces.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// New creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) New() string {
	return uuid.Must(uuid.NewV7()).String()
}
