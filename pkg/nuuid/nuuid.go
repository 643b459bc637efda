// Package nuuid generates the UUIDv7 identifiers that tag every Event,
// Session, Workflow and NetworkCommit.
package nuuid

import "github.com/google/uuid"

// New returns a fresh, time-ordered UUIDv7. It never returns the nil UUID.
func New() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global entropy source is broken,
		// which we treat as unrecoverable for a process that hands out
		// identity for every in-flight request.
		panic("nuuid: failed to generate UUIDv7: " + err.Error())
	}
	return id
}

// IsZero reports whether id is the nil UUID, which is never valid for an
// Event per the invariant above.
func IsZero(id uuid.UUID) bool {
	return id == uuid.Nil
}
