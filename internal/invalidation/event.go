// Package invalidation defines the cache invalidation message consumed from
// Kafka.
package invalidation

import (
	"errors"
	"strings"
	"time"

	"github.com/mohammed-shakir/weathercache/internal/cache/keys"
)

const OpInvalidate = "invalidate"

// Event asks every instance to drop the cached temperature for Location.
// The persistent store is append-only and is never touched.
type Event struct {
	Version  int       `json:"version"`
	Op       string    `json:"op"`
	Location string    `json:"location"`
	TS       time.Time `json:"ts"`
	Source   string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	if e.Op != OpInvalidate {
		return errors.New("op must be invalidate")
	}
	if strings.TrimSpace(e.Location) == "" {
		return errors.New("location is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	return nil
}

// CacheKey is the distributed cache key the event targets.
func (e Event) CacheKey() string {
	return keys.Key(keys.Normalize(e.Location))
}
