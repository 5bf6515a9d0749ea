// Package syncer drives the sync lifecycle between the local store and
// the relay pool: pushing pending records, pulling and merging remote
// versions, and surfacing conflicts for explicit resolution.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/giftwrap"
	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/relay"
	"github.com/starford/othala/internal/store"
	"github.com/starford/othala/internal/visibility"
	"github.com/starford/othala/internal/wire"
)

// Config tunes the engine. Zero values get defaults.
type Config struct {
	// Parallelism bounds concurrent per-record pushes in a full sync.
	Parallelism int
}

// Engine coordinates the store, the identity and the relay pool. All
// state transitions run through store transactions, so concurrent local
// edits never get lost under an in-flight sync.
type Engine struct {
	store    *store.Store
	pool     *relay.Pool
	id       identity.Identity
	log      *slog.Logger
	parallel int
}

func New(log *slog.Logger, st *store.Store, pool *relay.Pool, id identity.Identity, cfg Config) *Engine {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &Engine{
		store:    st,
		pool:     pool,
		id:       id,
		log:      log,
		parallel: cfg.Parallelism,
	}
}

// errSkipMerge aborts a reconcile without writing anything.
var errSkipMerge = errors.New("skip merge")

// routing is where a record goes on the wire: its effective visibility
// and, for encrypted routes, who gets a wrapped copy besides the author.
type routing struct {
	visibility models.Visibility
	recipients []string
}

// Routing resolves where a record would go on the wire right now.
// Callers that are about to delete a record use it to capture tombstone
// routing while the row still exists.
func (e *Engine) Routing(ctx context.Context, rec *models.Record) (models.Visibility, []string, error) {
	r, err := e.routingFor(ctx, rec)
	if err != nil {
		return "", nil, err
	}
	return r.visibility, r.recipients, nil
}

// routingFor resolves the effective visibility per kind. Saves follow
// the collection resolver; annotations inherit from their parent save;
// collections and articles carry their own setting.
func (e *Engine) routingFor(ctx context.Context, rec *models.Record) (routing, error) {
	switch rec.Kind {
	case models.KindSave:
		c, err := rec.SaveContent()
		if err != nil {
			return routing{}, err
		}
		return e.saveRouting(ctx, c)
	case models.KindCollection:
		c, err := rec.CollectionContent()
		if err != nil {
			return routing{}, err
		}
		vis := c.Visibility
		if !vis.Valid() {
			vis = models.VisibilityPrivate
		}
		return routing{visibility: vis, recipients: c.Collaborators}, nil
	case models.KindAnnotation:
		c, err := rec.AnnotationContent()
		if err != nil {
			return routing{}, err
		}
		parent, err := e.store.Get(ctx, models.KindSave, c.SaveSlug)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				// Orphaned annotation stays private to the author.
				return routing{visibility: models.VisibilityPrivate}, nil
			}
			return routing{}, err
		}
		pc, err := parent.SaveContent()
		if err != nil {
			return routing{}, err
		}
		return e.saveRouting(ctx, pc)
	case models.KindArticle:
		c, err := rec.ArticleContent()
		if err != nil {
			return routing{}, err
		}
		vis := c.Visibility
		if !vis.Valid() {
			vis = models.VisibilityPrivate
		}
		return routing{visibility: vis}, nil
	}
	return routing{}, fmt.Errorf("sync: unknown kind %q: %w", rec.Kind, apperr.ErrInvalid)
}

// saveRouting resolves a save against its member collections. Sharing
// recipients are the save's own plus the collaborators of every member
// collection, so a save dropped into a shared collection reaches the
// people the collection is shared with.
func (e *Engine) saveRouting(ctx context.Context, c *models.SaveContent) (routing, error) {
	cols := make(map[string]*models.CollectionContent, len(c.Collections))
	var recipients []string
	recipients = append(recipients, c.Recipients...)
	for _, slug := range c.Collections {
		rec, err := e.store.Get(ctx, models.KindCollection, slug)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return routing{}, err
		}
		cc, err := rec.CollectionContent()
		if err != nil {
			continue
		}
		cols[slug] = cc
		recipients = append(recipients, cc.Collaborators...)
	}
	return routing{
		visibility: visibility.Effective(c, cols),
		recipients: dedupe(recipients),
	}, nil
}

// encodeRecord builds the signed inner event for a record. The event
// timestamp is the push time in unix seconds and becomes the record's
// new remote baseline once a relay acks.
func (e *Engine) encodeRecord(rec *models.Record, listed bool) (*wire.Event, error) {
	kind, ok := wire.KindFor(rec.Kind)
	if !ok {
		return nil, fmt.Errorf("sync: kind %q has no event kind: %w", rec.Kind, apperr.ErrInvalid)
	}
	canonical := rec.Clone()
	if err := canonical.Normalize(); err != nil {
		return nil, err
	}
	ev := &wire.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      kind,
		Content:   string(canonical.Content),
	}
	ev.AddTag(wire.TagSlug, rec.Slug)
	if listed {
		ev.AddTag(wire.TagListed)
	}
	if err := e.id.Sign(ev); err != nil {
		return nil, fmt.Errorf("sync: %w: %v", apperr.ErrSignDeclined, err)
	}
	return ev, nil
}

// encodeDeletion builds a tombstone: an addressable event with no
// content that replaces the record at its address on every relay.
func (e *Engine) encodeDeletion(kind models.Kind, slug string) (*wire.Event, error) {
	evKind, ok := wire.KindFor(kind)
	if !ok {
		return nil, fmt.Errorf("sync: kind %q has no event kind: %w", kind, apperr.ErrInvalid)
	}
	ev := &wire.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      evKind,
	}
	ev.AddTag(wire.TagSlug, slug)
	ev.AddTag(wire.TagDeleted)
	if err := e.id.Sign(ev); err != nil {
		return nil, fmt.Errorf("sync: %w: %v", apperr.ErrSignDeclined, err)
	}
	return ev, nil
}

// candidate is one remote version considered for merge.
type candidate struct {
	kind      models.Kind
	slug      string
	author    string
	ts        int64 // true event timestamp, unix seconds
	content   json.RawMessage
	listed    bool
	deleted   bool
	networkID string
}

// candidateFrom validates a record event and extracts the merge
// candidate. The content document is normalized so later equality
// checks compare canonical forms.
func candidateFrom(ev *wire.Event) (*candidate, error) {
	kind, ok := wire.RecordKind(ev.Kind)
	if !ok {
		return nil, fmt.Errorf("sync: event kind %d is not a record: %w", ev.Kind, apperr.ErrDecode)
	}
	slug := ev.TagValue(wire.TagSlug)
	if slug == "" {
		return nil, fmt.Errorf("sync: record event without slug: %w", apperr.ErrDecode)
	}
	c := &candidate{
		kind:      kind,
		slug:      slug,
		author:    ev.Author,
		ts:        ev.CreatedAt,
		listed:    ev.HasTag(wire.TagListed),
		deleted:   ev.HasTag(wire.TagDeleted),
		networkID: ev.Address(),
	}
	if c.deleted {
		return c, nil
	}
	if ev.Content == "" {
		return nil, fmt.Errorf("sync: record event %s has no content: %w", ev.ID, apperr.ErrDecode)
	}
	tmp := &models.Record{Kind: kind, Slug: slug, Content: json.RawMessage(ev.Content)}
	if err := tmp.Normalize(); err != nil {
		return nil, fmt.Errorf("sync: %v: %w", err, apperr.ErrDecode)
	}
	c.content = tmp.Content
	return c, nil
}

// contentMatches reports whether the local record and the candidate
// carry the same canonical content document.
func contentMatches(rec *models.Record, c *candidate) bool {
	if c.deleted {
		return false
	}
	tmp := &models.Record{Kind: rec.Kind, Slug: rec.Slug, Content: c.content}
	return models.ContentEqual(rec, tmp)
}

// remoteSnapshot is the losing remote version cached on a conflicted
// record until the user resolves it.
type remoteSnapshot struct {
	Author          string          `json:"author,omitempty"`
	RemoteUpdatedAt int64           `json:"remote_updated_at"`
	NetworkID       string          `json:"network_id,omitempty"`
	Listed          bool            `json:"listed,omitempty"`
	Deleted         bool            `json:"deleted,omitempty"`
	Content         json.RawMessage `json:"content,omitempty"`
}

func snapshotOf(c *candidate) json.RawMessage {
	b, err := json.Marshal(remoteSnapshot{
		Author:          c.author,
		RemoteUpdatedAt: c.ts,
		NetworkID:       c.networkID,
		Listed:          c.listed,
		Deleted:         c.deleted,
		Content:         c.content,
	})
	if err != nil {
		return nil
	}
	return b
}

func statusFor(listed bool) models.SyncStatus {
	if listed {
		return models.StatusPublished
	}
	return models.StatusSynced
}

// Resolution choices for ResolveConflict.
const (
	KeepLocal  = "keep-local"
	KeepRemote = "keep-remote"
)

// ResolveConflict applies the user's choice to a conflicted record.
//
// keep-local returns the record to local status with a fresh edit
// timestamp, so the next push overwrites the remote copy. keep-remote
// adopts the cached snapshot; if the snapshot is a deletion the record
// is removed.
func (e *Engine) ResolveConflict(ctx context.Context, kind models.Kind, slug, keep string) (*models.Record, error) {
	if keep != KeepLocal && keep != KeepRemote {
		return nil, fmt.Errorf("sync: unknown resolution %q: %w", keep, apperr.ErrInvalid)
	}
	rec, err := e.store.Reconcile(ctx, kind, slug, func(cur *models.Record) (*models.Record, error) {
		if cur == nil {
			return nil, fmt.Errorf("sync: %s %q: %w", kind, slug, apperr.ErrNotFound)
		}
		if cur.Sync.Status != models.StatusConflict {
			return nil, fmt.Errorf("sync: %s %q is not in conflict: %w", kind, slug, apperr.ErrInvalid)
		}

		if keep == KeepLocal {
			cur.Sync.Status = models.StatusLocal
			cur.Sync.Snapshot = nil
			cur.Touch()
			return cur, nil
		}

		var snap remoteSnapshot
		if err := json.Unmarshal(cur.Sync.Snapshot, &snap); err != nil {
			return nil, fmt.Errorf("sync: decode conflict snapshot for %s %q: %w", kind, slug, err)
		}
		if snap.Deleted {
			return nil, nil
		}
		cur.Content = snap.Content
		cur.Sync.Status = statusFor(snap.Listed)
		cur.Sync.RemoteUpdatedAt = snap.RemoteUpdatedAt
		if snap.NetworkID != "" {
			cur.Sync.NetworkID = snap.NetworkID
		}
		cur.Sync.Snapshot = nil
		cur.Touch()
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		e.log.Info("sync: conflict resolved by adopting remote deletion",
			slog.String("kind", string(kind)), slog.String("slug", slug))
		return nil, nil
	}
	e.log.Info("sync: conflict resolved",
		slog.String("kind", string(kind)),
		slog.String("slug", slug),
		slog.String("keep", keep),
		slog.String("status", string(rec.Sync.Status)))
	return rec, nil
}

// Publish marks a record as listed and pushes it. On transient failure
// the previous status is restored so the record does not sit in
// published while no relay carries the listed copy.
func (e *Engine) Publish(ctx context.Context, kind models.Kind, slug string) (PushOutcome, error) {
	var prev models.SyncStatus
	_, err := e.store.Update(ctx, kind, slug, func(cur *models.Record) error {
		if cur.Sync.Status == models.StatusConflict {
			return fmt.Errorf("sync: %s %q must be resolved before publishing: %w", kind, slug, apperr.ErrConflict)
		}
		prev = cur.Sync.Status
		cur.Sync.Status = models.StatusPublished
		return nil
	})
	if err != nil {
		return "", err
	}

	out, err := e.PushRecord(ctx, kind, slug)
	if err != nil || out == PushDeferred {
		if _, uerr := e.store.Update(ctx, kind, slug, func(cur *models.Record) error {
			if cur.Sync.Status == models.StatusPublished {
				cur.Sync.Status = prev
			}
			return nil
		}); uerr != nil && !errors.Is(uerr, apperr.ErrNotFound) {
			e.log.Warn("sync: could not restore status after failed publish",
				slog.String("kind", string(kind)), slog.String("slug", slug),
				slog.String("error", uerr.Error()))
		}
		if err == nil {
			err = fmt.Errorf("sync: publish %s %q: no relay acked: %w", kind, slug, apperr.ErrTransient)
		}
		return out, err
	}
	return out, nil
}

// Status is the engine's view for status reports.
type Status struct {
	Counts    map[models.SyncStatus]int `json:"counts"`
	Watermark int64                     `json:"watermark"`
	Relays    []string                  `json:"relays"`
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	counts, err := e.store.CountByStatus(ctx)
	if err != nil {
		return Status{}, err
	}
	wm, err := e.store.Watermark(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Counts: counts, Watermark: wm, Relays: e.pool.URLs()}, nil
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// lookbackSeconds widens pull windows so jittered wrap timestamps do
// not fall outside the watermark.
func lookbackSeconds() int64 {
	return int64(giftwrap.Window / time.Second)
}
