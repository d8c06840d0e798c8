package store

import (
	"github.com/google/uuid"

	"github.com/roach88/strata/internal/ir"
)

// IDGenerator issues permanent object identities.
// Implemented by UUIDv7Generator (production) and testutil.FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identities.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identities
// issued later sort later. This keeps the primary key index append-mostly.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// permanentID converts a generated token into an ObjectID, refusing tokens
// that would be mistaken for temporary identities.
func permanentID(token string) (ir.ObjectID, bool) {
	id := ir.ObjectID(token)
	return id, token != "" && !id.IsTemporary()
}
