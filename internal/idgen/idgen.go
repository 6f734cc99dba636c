package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewFunc generates identifiers; tests may replace it
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier
func New() string { return NewFunc() }

// Short returns the first 8 characters of a new identifier, used in file and socket names
func Short() string {
	return Prefix(New())
}

// Prefix returns the first 8 characters of id
func Prefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Token returns a random secret suitable for bearer authentication
func Token() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "") + strings.ReplaceAll(uuid.New().String(), "-", "")
}
