package model

import "github.com/oklog/ulid/v2"

// NewID returns a ULID string. Task and subscription IDs created later sort
// after earlier ones.
func NewID() string {
	return ulid.Make().String()
}

// ValidID reports whether id could have come from NewID.
func ValidID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
