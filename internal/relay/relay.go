// Package relay talks to event relays: an HTTP client for real ones,
// an in-memory implementation for the dev relay and tests, and a pool
// that fans operations out to every configured relay at once.
package relay

import (
	"context"

	"github.com/starford/othala/internal/wire"
)

// Client is one relay connection.
type Client interface {
	// Publish submits an event. A nil error means the relay acked it.
	Publish(ctx context.Context, ev *wire.Event) error
	// Query returns events matching the filter.
	Query(ctx context.Context, f wire.Filter) ([]*wire.Event, error)
	// URL identifies the relay in logs and status reports.
	URL() string
}
