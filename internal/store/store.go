// Package store defines the persistent tier: an append-only log of resolved
// temperatures per normalized location.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a location.
var ErrNotFound = errors.New("no weather record for location")

// Record is one resolution event. Timestamp is always UTC.
type Record struct {
	Location    string
	Temperature float64
	Timestamp   time.Time
}

// Store is the contract every persistent backend must satisfy. Records are
// never updated or deleted.
type Store interface {
	// Latest returns the newest record for location by Timestamp, or
	// ErrNotFound.
	Latest(ctx context.Context, location string) (Record, error)
	Append(ctx context.Context, rec Record) error
}
