package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a record identifier of the form "entry-<32 hex chars>", backed
// by a full UUIDv4 so ids never collide within (or across) process lifetimes.
func New() string {
	return "entry-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
