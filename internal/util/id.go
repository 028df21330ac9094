package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUID string. Primary keys in Postgres are uuid columns,
// so the prefix form is only used for opaque tokens that never hit a uuid column.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + strings.ReplaceAll(id, "-", "")
}

// IsUUID reports whether value parses as a UUID.
func IsUUID(value string) bool {
	_, err := uuid.Parse(strings.TrimSpace(value))
	return err == nil
}

// SafeSegment reports whether value can be used as a single path element.
func SafeSegment(value string) bool {
	if value == "" || value == "." || value == ".." {
		return false
	}
	return !strings.ContainsAny(value, `/\`) && !strings.ContainsRune(value, 0)
}
