package source

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

const (
	// DefaultRatePerSecond caps source API calls per connector instance.
	DefaultRatePerSecond = 50.0
	DefaultRateBurst     = 10
)

// Lister wraps an adapter with a shared token-bucket limiter. Every page
// fetch acquires the limiter before issuing; acquisition may suspend the
// caller. A single Lister is shared by all resources of one connector so the
// cap applies across concurrently driven resources.
type Lister struct {
	adapter Adapter
	limiter *rate.Limiter
}

// NewLister creates a rate-limited pagination wrapper around an adapter.
// Non-positive perSecond falls back to DefaultRatePerSecond.
func NewLister(adapter Adapter, perSecond float64, burst int) *Lister {
	if perSecond <= 0 {
		perSecond = DefaultRatePerSecond
	}
	if burst <= 0 {
		burst = DefaultRateBurst
	}
	return &Lister{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Adapter returns the wrapped adapter.
func (l *Lister) Adapter() Adapter { return l.adapter }

// NextPage fetches one page of cursor-paginated enumeration. Each page fetch
// is atomic: it completes or fails as a whole.
func (l *Lister) NextPage(ctx context.Context, resourceKey, cursor string) (*Page, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return l.adapter.List(ctx, resourceKey, cursor)
}

// NextDelta fetches one page of delta enumeration.
func (l *Lister) NextDelta(ctx context.Context, resourceKey, deltaToken string) (*DeltaPage, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return l.adapter.ListDelta(ctx, resourceKey, deltaToken)
}

// GetMetadata fetches a single item under the same rate cap as listing.
func (l *Lister) GetMetadata(ctx context.Context, resourceKey, itemID string) (*Item, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return l.adapter.GetMetadata(ctx, resourceKey, itemID)
}
