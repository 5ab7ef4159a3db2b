// Package ids mints ULID identifiers for requests and engine calls.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns an identifier stamped with the wall clock.
func New() string { return At(time.Now()) }

// At returns an identifier stamped with t. Call ids use the engine clock so
// that they sort with call time even when the clock is injected.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Time recovers the millisecond timestamp carried by id.
func Time(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
