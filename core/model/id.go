package model

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a short unique identifier with the given prefix, e.g.
// "b-9f2c41d0" for bookings or "v-1a7e03bc" for vehicles.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
