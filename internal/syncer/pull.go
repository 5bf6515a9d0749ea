package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/othala/internal/giftwrap"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/store"
	"github.com/starford/othala/internal/wire"
)

// PullResult tallies what a pull cycle did to the local store.
type PullResult struct {
	Fetched   int `json:"fetched"`
	Applied   int `json:"applied"`
	Deleted   int `json:"deleted"`
	Conflicts int `json:"conflicts"`
	Skipped   int `json:"skipped"`
}

type mergeOutcome int

const (
	outcomeSkipped mergeOutcome = iota
	outcomeApplied
	outcomeDeleted
	outcomeConflict
)

// Pull fetches everything newer than the watermark and merges it in.
//
// Plaintext record events by this author and gift wraps addressed to
// this identity are queried in parallel; the wrap window reaches back
// an extra two days because wrap timestamps are jittered. The
// watermark only advances when both queries succeed, so a failed query
// never causes events to be skipped forever. Merging is idempotent:
// re-pulling an already applied event changes nothing.
func (e *Engine) Pull(ctx context.Context) (PullResult, error) {
	var res PullResult
	wm, err := e.store.Watermark(ctx)
	if err != nil {
		return res, err
	}
	begin := time.Now().Unix()

	var (
		plain, wrapped []*wire.Event
		plainErr       error
		wrapErr        error
	)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		plain, plainErr = e.pool.Query(ctx, wire.Filter{
			Authors: []string{e.id.PublicKey()},
			Kinds:   wire.RecordKinds(),
			Since:   wm,
		})
	}()
	go func() {
		defer wg.Done()
		since := wm - lookbackSeconds()
		if since < 0 {
			since = 0
		}
		wrapped, wrapErr = e.pool.Query(ctx, wire.Filter{
			Kinds:      []int{wire.KindGiftWrap},
			Recipients: []string{e.id.EncryptionKey()},
			Since:      since,
		})
	}()
	wg.Wait()

	if plainErr != nil && wrapErr != nil {
		return res, plainErr
	}
	if plainErr != nil {
		e.log.Warn("sync: pull got no plaintext events, merging wraps only",
			slog.String("error", plainErr.Error()))
	}
	if wrapErr != nil {
		e.log.Warn("sync: pull got no wrapped events, merging plaintext only",
			slog.String("error", wrapErr.Error()))
	}

	cands := e.collectCandidates(plain, wrapped)
	res.Fetched = len(cands)
	for _, c := range cands {
		out, err := e.applyCandidate(ctx, c)
		if err != nil {
			return res, err
		}
		switch out {
		case outcomeApplied:
			res.Applied++
		case outcomeDeleted:
			res.Deleted++
		case outcomeConflict:
			res.Conflicts++
		case outcomeSkipped:
			res.Skipped++
		}
	}

	if plainErr == nil && wrapErr == nil {
		if err := e.store.SetWatermark(ctx, begin); err != nil {
			return res, err
		}
	}
	return res, nil
}

// collectCandidates decodes events into merge candidates, newest per
// address. Undecodable or forged events are logged and dropped so one
// poisoned event cannot stall the rest of the pull.
func (e *Engine) collectCandidates(plain, wrapped []*wire.Event) []*candidate {
	me := e.id.PublicKey()
	type key struct {
		kind   models.Kind
		slug   string
		author string
	}
	newest := make(map[key]*candidate)
	keep := func(c *candidate) {
		k := key{c.kind, c.slug, c.author}
		if cur, ok := newest[k]; ok && cur.ts >= c.ts {
			return
		}
		newest[k] = c
	}

	for _, ev := range plain {
		if ev.Author != me {
			continue
		}
		if err := ev.Verify(); err != nil {
			e.log.Warn("sync: dropping event with bad signature", slog.String("id", ev.ID))
			continue
		}
		c, err := candidateFrom(ev)
		if err != nil {
			e.log.Warn("sync: dropping undecodable event",
				slog.String("id", ev.ID), slog.String("error", err.Error()))
			continue
		}
		keep(c)
	}
	for _, w := range wrapped {
		opened, err := giftwrap.Unwrap(e.id, w)
		if err != nil {
			e.log.Warn("sync: dropping wrap that would not open",
				slog.String("id", w.ID), slog.String("error", err.Error()))
			continue
		}
		c, err := candidateFrom(opened.Inner)
		if err != nil {
			e.log.Warn("sync: dropping undecodable wrapped event",
				slog.String("id", w.ID), slog.String("error", err.Error()))
			continue
		}
		keep(c)
	}

	out := make([]*candidate, 0, len(newest))
	for _, c := range newest {
		out = append(out, c)
	}
	// Apply in event time order so older versions never clobber newer
	// ones when the same address appears under several authors.
	sort.Slice(out, func(i, j int) bool {
		if out[i].ts != out[j].ts {
			return out[i].ts < out[j].ts
		}
		if out[i].kind != out[j].kind {
			return out[i].kind < out[j].kind
		}
		return out[i].slug < out[j].slug
	})
	return out
}

// applyCandidate merges one remote version into the store. The whole
// decision runs inside a single reconcile transaction, so a local
// write racing this merge is either fully before or fully after it.
//
// Records with pending local edits never get overwritten: a newer
// different remote version parks in conflict status with the remote
// copy cached on the record. Clean records follow the remote. Stale
// candidates, at or below the known remote baseline, are discarded.
func (e *Engine) applyCandidate(ctx context.Context, c *candidate) (mergeOutcome, error) {
	var out mergeOutcome
	_, err := e.store.Reconcile(ctx, c.kind, c.slug, func(cur *models.Record) (*models.Record, error) {
		switch {
		case cur == nil:
			if c.deleted {
				out = outcomeSkipped
				return nil, nil
			}
			now := models.NowMillis()
			out = outcomeApplied
			return &models.Record{
				Kind:      c.kind,
				Slug:      c.slug,
				Author:    c.author,
				CreatedAt: now,
				UpdatedAt: now,
				Sync: models.SyncState{
					Status:          statusFor(c.listed),
					RemoteUpdatedAt: c.ts,
					NetworkID:       c.networkID,
				},
				Content: c.content,
			}, nil

		case cur.Author != "" && c.author != cur.Author:
			e.log.Warn("sync: slug already taken by another author, skipping",
				slog.String("kind", string(c.kind)),
				slog.String("slug", c.slug),
				slog.String("author", c.author))
			return nil, errSkipMerge

		case cur.Sync.Status.Pending():
			if c.ts <= cur.Sync.RemoteUpdatedAt {
				return nil, errSkipMerge
			}
			if contentMatches(cur, c) {
				// Same content arrived from another device; adopt the
				// remote baseline without touching the local document.
				if cur.Author == "" {
					cur.Author = c.author
				}
				cur.Sync.Status = statusFor(c.listed)
				cur.Sync.RemoteUpdatedAt = c.ts
				cur.Sync.NetworkID = c.networkID
				cur.Sync.Snapshot = nil
				out = outcomeApplied
				return cur, nil
			}
			cur.Sync.Status = models.StatusConflict
			cur.Sync.RemoteUpdatedAt = c.ts
			cur.Sync.Snapshot = snapshotOf(c)
			out = outcomeConflict
			return cur, nil

		case cur.Sync.Status == models.StatusConflict:
			if c.ts <= cur.Sync.RemoteUpdatedAt {
				return nil, errSkipMerge
			}
			// Still conflicted, but the cached remote copy refreshes
			// so resolution always offers the latest remote version.
			cur.Sync.RemoteUpdatedAt = c.ts
			cur.Sync.Snapshot = snapshotOf(c)
			out = outcomeConflict
			return cur, nil

		default: // synced or published, no pending edits
			if c.ts <= cur.Sync.RemoteUpdatedAt {
				return nil, errSkipMerge
			}
			if c.deleted {
				out = outcomeDeleted
				return nil, nil
			}
			if cur.Author == "" {
				cur.Author = c.author
			}
			cur.Content = c.content
			cur.Sync.Status = statusFor(c.listed)
			cur.Sync.RemoteUpdatedAt = c.ts
			cur.Sync.NetworkID = c.networkID
			cur.Sync.Snapshot = nil
			cur.Touch()
			out = outcomeApplied
			return cur, nil
		}
	})
	if err != nil {
		if errors.Is(err, errSkipMerge) {
			return outcomeSkipped, nil
		}
		return out, err
	}
	return out, nil
}

// SyncReport is the outcome of one full cycle: pull first, then push
// every record still carrying local edits.
type SyncReport struct {
	Pull       PullResult `json:"pull"`
	PullFailed bool       `json:"pull_failed,omitempty"`
	Pushed     int        `json:"pushed"`
	Adopted    int        `json:"adopted,omitempty"`
	Conflicts  int        `json:"conflicts,omitempty"`
	Deferred   int        `json:"deferred,omitempty"`
}

// FullSync runs a pull and then pushes all pending records, bounded by
// the configured parallelism. A failed pull is reported but does not
// stop the push half; each half degrades independently when relays
// misbehave.
func (e *Engine) FullSync(ctx context.Context) (SyncReport, error) {
	var rep SyncReport
	pull, err := e.Pull(ctx)
	rep.Pull = pull
	if err != nil {
		rep.PullFailed = true
		e.log.Warn("sync: pull failed, continuing with push", slog.String("error", err.Error()))
	}

	pending, err := e.listPending(ctx)
	if err != nil {
		return rep, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for _, rec := range pending {
		g.Go(func() error {
			out, err := e.PushRecord(gctx, rec.Kind, rec.Slug)
			if err != nil {
				e.log.Warn("sync: push failed",
					slog.String("kind", string(rec.Kind)),
					slog.String("slug", rec.Slug),
					slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			switch out {
			case PushAcked:
				rep.Pushed++
			case PushAdopted:
				rep.Adopted++
			case PushConflict:
				rep.Conflicts++
			case PushDeferred:
				rep.Deferred++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	e.log.Info("sync: cycle finished",
		slog.Int("fetched", rep.Pull.Fetched),
		slog.Int("applied", rep.Pull.Applied),
		slog.Int("pushed", rep.Pushed),
		slog.Int("conflicts", rep.Pull.Conflicts+rep.Conflicts),
		slog.Int("deferred", rep.Deferred))
	return rep, nil
}

func (e *Engine) listPending(ctx context.Context) ([]*models.Record, error) {
	var all []*models.Record
	for offset := 0; ; offset += 500 {
		page, err := e.store.List(ctx, store.Query{
			Status: models.StatusLocal,
			Limit:  500,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < 500 {
			return all, nil
		}
	}
}
