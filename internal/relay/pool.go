package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/wire"
)

const (
	defaultPublishTimeout = 10 * time.Second
	defaultQueryTimeout   = 15 * time.Second
)

// PoolConfig bounds how long a single relay may take. Zero values get
// defaults.
type PoolConfig struct {
	PublishTimeout time.Duration
	QueryTimeout   time.Duration
}

// Pool fans operations out to every configured relay in parallel.
// Relays are assumed unreliable: publish succeeds on the first ack,
// query tolerates partial answers.
type Pool struct {
	clients        []Client
	log            *slog.Logger
	publishTimeout time.Duration
	queryTimeout   time.Duration
}

func NewPool(log *slog.Logger, clients []Client, cfg PoolConfig) *Pool {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	return &Pool{
		clients:        clients,
		log:            log,
		publishTimeout: cfg.PublishTimeout,
		queryTimeout:   cfg.QueryTimeout,
	}
}

// Size reports how many relays are configured.
func (p *Pool) Size() int { return len(p.clients) }

// URLs lists the configured relays for status reports.
func (p *Pool) URLs() []string {
	out := make([]string, len(p.clients))
	for i, c := range p.clients {
		out[i] = c.URL()
	}
	return out
}

type publishResult struct {
	url string
	err error
}

// Publish submits ev to every relay at once and returns as soon as one
// acks. The remaining attempts continue in the background, bounded by
// the publish timeout, and their outcomes are drained for logging. The
// error is transient: nothing acked, try again later.
func (p *Pool) Publish(ctx context.Context, ev *wire.Event) error {
	if len(p.clients) == 0 {
		return fmt.Errorf("relay: no relays configured: %w", apperr.ErrTransient)
	}

	results := make(chan publishResult, len(p.clients))
	for _, c := range p.clients {
		go func(c Client) {
			// Detached from the caller so stragglers can finish after
			// the first ack returns.
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.publishTimeout)
			defer cancel()
			results <- publishResult{c.URL(), c.Publish(cctx, ev)}
		}(c)
	}

	for received := 0; received < len(p.clients); received++ {
		select {
		case r := <-results:
			if r.err == nil {
				if remaining := len(p.clients) - received - 1; remaining > 0 {
					go p.drain(results, remaining, ev.ID)
				}
				return nil
			}
			p.log.Warn("relay: publish failed",
				slog.String("relay", r.url),
				slog.String("event", ev.ID),
				slog.String("error", r.err.Error()))
		case <-ctx.Done():
			go p.drain(results, len(p.clients)-received, ev.ID)
			return fmt.Errorf("relay: publish canceled: %w", apperr.ErrTransient)
		}
	}
	return fmt.Errorf("relay: all %d relays refused event %s: %w", len(p.clients), ev.ID, apperr.ErrTransient)
}

// drain consumes outcomes that arrive after Publish already returned,
// so slow relays still show up in the logs.
func (p *Pool) drain(results <-chan publishResult, n int, eventID string) {
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			p.log.Warn("relay: straggler publish failed",
				slog.String("relay", r.url),
				slog.String("event", eventID),
				slog.String("error", r.err.Error()))
		} else {
			p.log.Debug("relay: straggler acked",
				slog.String("relay", r.url),
				slog.String("event", eventID))
		}
	}
}

// Query fans the filter out to every relay and merges the answers,
// deduplicating by event id. Individual relay failures are logged and
// tolerated; only a total blackout is an error.
func (p *Pool) Query(ctx context.Context, f wire.Filter) ([]*wire.Event, error) {
	if len(p.clients) == 0 {
		return nil, fmt.Errorf("relay: no relays configured: %w", apperr.ErrTransient)
	}

	var (
		mu      sync.Mutex
		merged  []*wire.Event
		answers int
	)
	g := new(errgroup.Group)
	for _, c := range p.clients {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
			defer cancel()
			events, err := c.Query(cctx, f)
			if err != nil {
				p.log.Warn("relay: query failed",
					slog.String("relay", c.URL()),
					slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			answers++
			merged = append(merged, events...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if answers == 0 {
		return nil, fmt.Errorf("relay: query failed on all %d relays: %w", len(p.clients), apperr.ErrTransient)
	}

	seen := make(map[string]struct{}, len(merged))
	out := merged[:0]
	for _, ev := range merged {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
