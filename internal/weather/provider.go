// Package weather holds the provider capability and reading aggregation.
package weather

import (
	"context"
	"time"
)

// Reading is one provider's answer for a location. It is consumed by
// aggregation and never persisted as-is.
type Reading struct {
	Temperature float64
	Provider    string
}

// Provider fetches the current temperature for a normalized location.
// Implementations may fail; callers treat every provider identically.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, location string) (Reading, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, location string) (Reading, error)
}

func (p ProviderFunc) Name() string { return p.ProviderName }

func (p ProviderFunc) Fetch(ctx context.Context, location string) (Reading, error) {
	return p.Fn(ctx, location)
}

// Resolution describes one completed aggregated fetch.
type Resolution struct {
	Location    string
	Temperature float64
	Providers   []string
	At          time.Time
}
