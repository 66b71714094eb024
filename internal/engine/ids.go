package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Entity kinds used for identifiers and error reporting.
const (
	KindAction    = "action"
	KindDelay     = "delay"
	KindChallenge = "challenge"
)

// IDGenerator produces identifiers for new entities.
// Implemented by UUIDv7Generator (production) and SequenceGenerator (tests
// and scenarios).
type IDGenerator interface {
	Generate(kind string) string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7. The kind is not encoded.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate(string) string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns "<kind>-<n>" identifiers with an independent
// counter per kind, so the same sequence of operations always yields the
// same identifiers.
//
// Thread-safety: SequenceGenerator is safe for concurrent use.
type SequenceGenerator struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewSequenceGenerator creates a generator whose counters start at zero.
func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{counters: make(map[string]int)}
}

// Generate returns the next identifier for kind.
//
// Example:
//
//	gen.Generate("action") // "action-1"
//	gen.Generate("delay")  // "delay-1"
//	gen.Generate("action") // "action-2"
func (g *SequenceGenerator) Generate(kind string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[kind]++
	return fmt.Sprintf("%s-%d", kind, g.counters[kind])
}
