package api

import "github.com/google/uuid"

// NewThreadID returns a fresh random thread identifier.
func NewThreadID() string {
	return uuid.NewString()
}

// ValidateThreadID reports whether id is a well-formed thread identifier.
func ValidateThreadID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
