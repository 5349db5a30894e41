// Package id provides centralized ID generation for the shell daemon.
//
// IDs are prefixed ULIDs:
//   - Lexicographic sortability: subscribers and start attempts order by creation time
//   - Prefixed types: sub_*, req_*, att_* make log lines readable
//   - Type safety: separate types prevent passing a request ID where a subscriber ID is expected
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SubscriberID identifies a broadcast subscription
type SubscriberID string

// RequestID identifies a command surface request
type RequestID string

// AttemptID identifies a single backend start attempt
type AttemptID string

const (
	SubscriberPrefix = "sub"
	RequestPrefix    = "req"
	AttemptPrefix    = "att"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewSubscriberID generates a new subscriber ID
func NewSubscriberID() SubscriberID {
	return SubscriberID(Default().GenerateWithPrefix(SubscriberPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewAttemptID generates a new start attempt ID
func NewAttemptID() AttemptID {
	return AttemptID(Default().GenerateWithPrefix(AttemptPrefix))
}

func (id SubscriberID) String() string { return string(id) }
func (id RequestID) String() string    { return string(id) }
func (id AttemptID) String() string    { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
