package storage

import "errors"

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound is returned when no state exists for a thread, or the
	// thread belongs to another owner.
	ErrNotFound = errors.New("thread not found")

	// ErrConflict is returned when a save carries a version that does not
	// directly follow the stored one.
	ErrConflict = errors.New("thread was modified concurrently")
)

// CheckVersion validates an optimistic save. next is the version carried by
// the state being saved; stored is the version currently persisted, or 0
// when the thread has never been saved.
func CheckVersion(stored, next int64) error {
	if next != stored+1 {
		return ErrConflict
	}
	return nil
}
