package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Default spacing between calls per backend class
const (
	ACRCloudInterval    = 1200 * time.Millisecond
	AcoustIDInterval    = 500 * time.Millisecond
	MusicBrainzInterval = 1100 * time.Millisecond
)

// Gate enforces a minimum spacing between calls. It is safe for concurrent
// use and is meant to be shared by every worker hitting the same service.
type Gate struct {
	name     string
	interval time.Duration
	limiter  *rate.Limiter
}

// NewGate creates a gate allowing one call per interval. A zero interval
// disables the gate.
func NewGate(name string, interval time.Duration) *Gate {
	return &Gate{
		name:     name,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait blocks until the next call is allowed or ctx is done
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s gate: %w", g.name, err)
	}
	return nil
}

// Name returns the service the gate protects
func (g *Gate) Name() string {
	return g.name
}

// Interval returns the configured spacing
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Gates groups the shared gates for one run
type Gates struct {
	ACRCloud    *Gate
	AcoustID    *Gate
	MusicBrainz *Gate
}

// DefaultGates returns gates with the standard spacings
func DefaultGates() *Gates {
	return &Gates{
		ACRCloud:    NewGate("acrcloud", ACRCloudInterval),
		AcoustID:    NewGate("acoustid", AcoustIDInterval),
		MusicBrainz: NewGate("musicbrainz", MusicBrainzInterval),
	}
}
