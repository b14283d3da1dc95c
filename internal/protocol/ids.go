package protocol

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator produces identifiers for new local entries.
//
// Identifiers must be unique per connection and never equal to the root
// identifier "".
type IDGenerator interface {
	Generate() string
}

// Compile-time verification that generators implement IDGenerator.
var (
	_ IDGenerator = ULIDGenerator{}
	_ IDGenerator = UUIDGenerator{}
	_ IDGenerator = (*FixedGenerator)(nil)
)

// ULIDGenerator generates lexically sortable ULIDs. This is the default.
type ULIDGenerator struct{}

// Generate returns a new ULID string.
func (ULIDGenerator) Generate() string {
	return ulid.Make().String()
}

// UUIDGenerator generates random (version 4) UUIDs.
type UUIDGenerator struct{}

// Generate returns a new UUID string. If the random source fails it falls
// back to a ULID rather than returning a duplicate.
func (UUIDGenerator) Generate() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return ulid.Make().String()
	}

	return id.String()
}

// FixedGenerator yields a predictable sequence of identifiers, for tests and
// golden output.
type FixedGenerator struct {
	Prefix string
	next   atomic.Int64
}

// NewFixedGenerator creates a generator producing prefix1, prefix2, ...
func NewFixedGenerator(prefix string) *FixedGenerator {
	return &FixedGenerator{Prefix: prefix}
}

// Generate returns the next identifier in the sequence.
func (g *FixedGenerator) Generate() string {
	return fmt.Sprintf("%s%d", g.Prefix, g.next.Add(1))
}
