package testsupport

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// Global counter for generating unique sequential IDs in tests
	testSequence uint64

	// Base timestamp to make names shorter
	baseTimestamp = time.Now().UnixNano()
)

func init() {
	// Initialize with current timestamp to ensure uniqueness across test runs
	testSequence = uint64(baseTimestamp % 1000000)
}

// NextSequence returns next unique sequence number
func NextSequence() uint64 {
	return atomic.AddUint64(&testSequence, 1)
}

// UniqueName generates a unique name with given prefix
// Example: UniqueName("test_agent") -> "test_agent_123456"
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, NextSequence())
}

// UniqueDomain generates a unique account domain for tests
// Example: UniqueDomain("acme") -> "acme-123456.test.example"
func UniqueDomain(prefix string) string {
	return fmt.Sprintf("%s-%d.test.example", prefix, NextSequence())
}

// UniqueCallID generates a unique telephony call identifier
// Example: UniqueCallID() -> "call_123456_0a1b2c3d"
func UniqueCallID() string {
	return fmt.Sprintf("call_%d_%s", NextSequence(), uuid.New().String()[:8])
}

// UniquePhoneNumber generates a NANP-looking number for tests
// Returns an 11-digit string starting with 1555
func UniquePhoneNumber() string {
	seq := NextSequence()
	return fmt.Sprintf("1555%07d", seq%10000000)
}

// UniqueString generates a unique string identifier
// Useful when you need guaranteed uniqueness (uses UUID)
func UniqueString() string {
	return uuid.New().String()
}

// UniqueSessionID generates a unique session ID string
func UniqueSessionID() string {
	return fmt.Sprintf("session_%d", NextSequence())
}
