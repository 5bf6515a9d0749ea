package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/giftwrap"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/wire"
)

// PushOutcome summarizes a single record push.
type PushOutcome string

const (
	// PushAcked means at least one relay stored the record's event.
	PushAcked PushOutcome = "acked"
	// PushAdopted means the remote already held this exact content and
	// its timestamp was adopted without publishing anything.
	PushAdopted PushOutcome = "adopted"
	// PushConflict means a newer, different remote version was found
	// and the record moved to conflict status.
	PushConflict PushOutcome = "conflict"
	// PushDeferred means no relay could be reached; the record stays
	// pending and a later sync retries.
	PushDeferred PushOutcome = "deferred"
	// PushSkipped means the record was not eligible, e.g. an
	// unresolved conflict or a record authored by someone else.
	PushSkipped PushOutcome = "skipped"
)

// PushRecord pushes one record to the relay pool.
//
// Local records are claimed into syncing first, so the state machine
// never jumps straight from local to synced. Before publishing, the
// relays are asked for a newer head at the same address; a newer
// different version turns the push into a conflict instead of a blind
// overwrite. If the user edits the record while its event is in
// flight, the record stays local and only the remote baseline advances.
func (e *Engine) PushRecord(ctx context.Context, kind models.Kind, slug string) (PushOutcome, error) {
	rec, err := e.store.Get(ctx, kind, slug)
	if err != nil {
		return "", err
	}
	switch {
	case rec.Sync.Status == models.StatusConflict:
		e.log.Debug("sync: push skipped, record in conflict",
			slog.String("kind", string(kind)), slog.String("slug", slug))
		return PushSkipped, nil
	case rec.Author != "" && rec.Author != e.id.PublicKey():
		// Records shared by others are mirrored locally but never
		// re-signed under this identity.
		return PushSkipped, nil
	}

	claimed := false
	if rec.Sync.Status == models.StatusLocal {
		rec, err = e.store.Update(ctx, kind, slug, func(cur *models.Record) error {
			if cur.Sync.Status != models.StatusLocal {
				return fmt.Errorf("sync: %s %q is %s, expected local: %w",
					kind, slug, cur.Sync.Status, apperr.ErrConflict)
			}
			cur.Sync.Status = models.StatusSyncing
			return nil
		})
		if err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return PushSkipped, nil
			}
			return "", err
		}
		claimed = true
	}
	baselineEdit := rec.UpdatedAt
	listed := rec.Sync.Status == models.StatusPublished

	route, err := e.routingFor(ctx, rec)
	if err != nil {
		e.revertClaim(ctx, kind, slug, claimed)
		return "", err
	}

	head, err := e.remoteHead(ctx, rec, route.visibility)
	if err != nil {
		e.revertClaim(ctx, kind, slug, claimed)
		e.log.Warn("sync: push deferred, baseline check failed",
			slog.String("kind", string(kind)),
			slog.String("slug", slug),
			slog.String("error", err.Error()))
		return PushDeferred, nil
	}
	if head != nil && head.ts > rec.Sync.RemoteUpdatedAt {
		if contentMatches(rec, head) {
			// Another device pushed the same content; adopt its
			// timestamp instead of publishing a duplicate.
			if _, err := e.store.Update(ctx, kind, slug, func(cur *models.Record) error {
				cur.Sync.Status = statusFor(head.listed)
				cur.Sync.RemoteUpdatedAt = head.ts
				cur.Sync.NetworkID = head.networkID
				cur.Sync.Snapshot = nil
				return nil
			}); err != nil {
				return "", err
			}
			return PushAdopted, nil
		}
		if _, err := e.store.Update(ctx, kind, slug, func(cur *models.Record) error {
			cur.Sync.Status = models.StatusConflict
			cur.Sync.RemoteUpdatedAt = head.ts
			cur.Sync.Snapshot = snapshotOf(head)
			return nil
		}); err != nil {
			return "", err
		}
		e.log.Info("sync: push found newer remote version, marked conflict",
			slog.String("kind", string(kind)), slog.String("slug", slug))
		return PushConflict, nil
	}

	ev, err := e.encodeRecord(rec, listed)
	if err != nil {
		e.revertClaim(ctx, kind, slug, claimed)
		return "", err
	}
	if err := e.transmit(ctx, ev, route); err != nil {
		e.revertClaim(ctx, kind, slug, claimed)
		if errors.Is(err, apperr.ErrTransient) {
			e.log.Warn("sync: push deferred, no relay reachable",
				slog.String("kind", string(kind)), slog.String("slug", slug))
			return PushDeferred, nil
		}
		return "", err
	}

	finalStatus := statusFor(listed)
	if _, err := e.store.Update(ctx, kind, slug, func(cur *models.Record) error {
		if cur.Author == "" {
			cur.Author = ev.Author
		}
		if cur.UpdatedAt != baselineEdit {
			// Edited while the event was in flight. The pushed content
			// is on the relays, so the baseline advances, but the
			// record stays pending for the newer edit.
			cur.Sync.Status = models.StatusLocal
			cur.Sync.RemoteUpdatedAt = ev.CreatedAt
			cur.Sync.NetworkID = ev.Address()
			return nil
		}
		cur.Sync.Status = finalStatus
		cur.Sync.RemoteUpdatedAt = ev.CreatedAt
		cur.Sync.NetworkID = ev.Address()
		cur.Sync.Snapshot = nil
		return nil
	}); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// Deleted mid-push. The deletion path publishes its own
			// tombstone, nothing to finalize here.
			return PushAcked, nil
		}
		return "", err
	}
	e.log.Debug("sync: record pushed",
		slog.String("kind", string(kind)),
		slog.String("slug", slug),
		slog.String("visibility", string(route.visibility)),
		slog.Int("recipients", len(route.recipients)))
	return PushAcked, nil
}

// PushDeletion publishes a tombstone for a record that was already
// removed locally. Routing must be captured before the local row goes
// away, so the caller passes it in.
func (e *Engine) PushDeletion(ctx context.Context, kind models.Kind, slug string, vis models.Visibility, recipients []string) error {
	ev, err := e.encodeDeletion(kind, slug)
	if err != nil {
		return err
	}
	if err := e.transmit(ctx, ev, routing{visibility: vis, recipients: recipients}); err != nil {
		return err
	}
	e.log.Debug("sync: deletion pushed",
		slog.String("kind", string(kind)), slog.String("slug", slug))
	return nil
}

// transmit routes a signed inner event: plaintext for public and
// unlisted records, gift wrapped to the author and every recipient for
// private and shared ones. All wrapped copies must land, otherwise the
// whole push counts as deferred and is retried later.
func (e *Engine) transmit(ctx context.Context, ev *wire.Event, route routing) error {
	if !route.visibility.Encrypted() {
		return e.pool.Publish(ctx, ev)
	}
	recipients := append([]string{e.id.EncryptionKey()}, route.recipients...)
	wraps, err := giftwrap.WrapAll(e.id, ev, dedupe(recipients))
	if err != nil {
		return err
	}
	for _, w := range wraps {
		if err := e.pool.Publish(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// remoteHead fetches the newest remote version at the record's address,
// or nil when the relays hold nothing newer than what was asked for.
func (e *Engine) remoteHead(ctx context.Context, rec *models.Record, vis models.Visibility) (*candidate, error) {
	evKind, ok := wire.KindFor(rec.Kind)
	if !ok {
		return nil, fmt.Errorf("sync: kind %q has no event kind: %w", rec.Kind, apperr.ErrInvalid)
	}
	me := e.id.PublicKey()

	if !vis.Encrypted() {
		events, err := e.pool.Query(ctx, wire.Filter{
			Authors: []string{me},
			Kinds:   []int{evKind},
			Slugs:   []string{rec.Slug},
			Limit:   8,
		})
		if err != nil {
			return nil, err
		}
		return newestCandidate(events, rec.Kind, rec.Slug, me), nil
	}

	since := rec.Sync.RemoteUpdatedAt - lookbackSeconds()
	if since < 0 {
		since = 0
	}
	wrapped, err := e.pool.Query(ctx, wire.Filter{
		Kinds:      []int{wire.KindGiftWrap},
		Recipients: []string{e.id.EncryptionKey()},
		Since:      since,
	})
	if err != nil {
		return nil, err
	}
	var head *candidate
	for _, w := range wrapped {
		opened, err := giftwrap.Unwrap(e.id, w)
		if err != nil {
			continue
		}
		if opened.Inner.Kind != evKind || opened.Sender != me {
			continue
		}
		c, err := candidateFrom(opened.Inner)
		if err != nil || c.slug != rec.Slug || c.author != me {
			continue
		}
		if head == nil || c.ts > head.ts {
			head = c
		}
	}
	return head, nil
}

// newestCandidate picks the newest decodable event for one address.
func newestCandidate(events []*wire.Event, kind models.Kind, slug, author string) *candidate {
	var head *candidate
	for _, ev := range events {
		if ev.Author != author {
			continue
		}
		if err := ev.Verify(); err != nil {
			continue
		}
		c, err := candidateFrom(ev)
		if err != nil || c.kind != kind || c.slug != slug {
			continue
		}
		if head == nil || c.ts > head.ts {
			head = c
		}
	}
	return head
}

// revertClaim returns a record claimed into syncing back to local.
// Only the status moves; a concurrent edit keeps its timestamp.
func (e *Engine) revertClaim(ctx context.Context, kind models.Kind, slug string, claimed bool) {
	if !claimed {
		return
	}
	if _, err := e.store.Update(ctx, kind, slug, func(cur *models.Record) error {
		if cur.Sync.Status == models.StatusSyncing {
			cur.Sync.Status = models.StatusLocal
		}
		return nil
	}); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		e.log.Warn("sync: could not revert syncing claim",
			slog.String("kind", string(kind)),
			slog.String("slug", slug),
			slog.String("error", err.Error()))
	}
}
