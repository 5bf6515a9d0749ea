// Package models defines the domain types for Othala records.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the record types that share the sync lifecycle.
type Kind string

const (
	KindSave       Kind = "save"
	KindCollection Kind = "collection"
	KindAnnotation Kind = "annotation"
	KindArticle    Kind = "article"
)

// Kinds lists every record kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindSave, KindCollection, KindAnnotation, KindArticle}
}

func (k Kind) Valid() bool {
	switch k {
	case KindSave, KindCollection, KindAnnotation, KindArticle:
		return true
	}
	return false
}

// SyncStatus tracks where a record sits in its sync lifecycle.
type SyncStatus string

const (
	StatusLocal     SyncStatus = "local"     // never pushed, or edited since the last push
	StatusSyncing   SyncStatus = "syncing"   // a push is in flight
	StatusSynced    SyncStatus = "synced"    // local and remote copies agree
	StatusConflict  SyncStatus = "conflict"  // concurrent edits, awaiting explicit resolution
	StatusPublished SyncStatus = "published" // synced and listed for public discovery
)

func (s SyncStatus) Valid() bool {
	switch s {
	case StatusLocal, StatusSyncing, StatusSynced, StatusConflict, StatusPublished:
		return true
	}
	return false
}

// Pending reports whether the record carries local edits that have not
// been acknowledged by a relay yet.
func (s SyncStatus) Pending() bool {
	return s == StatusLocal || s == StatusSyncing
}

// Visibility controls how a record is routed when mirrored to relays.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityShared   Visibility = "shared"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPublic   Visibility = "public"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityShared, VisibilityUnlisted, VisibilityPublic:
		return true
	}
	return false
}

// Rank orders visibilities from most restrictive to most permissive.
// Unknown values rank as private.
func (v Visibility) Rank() int {
	switch v {
	case VisibilityShared:
		return 1
	case VisibilityUnlisted:
		return 2
	case VisibilityPublic:
		return 3
	}
	return 0
}

// Encrypted reports whether records at this visibility travel inside
// gift wraps rather than as plaintext events.
func (v Visibility) Encrypted() bool {
	return v == VisibilityPrivate || v == VisibilityShared
}

// MorePermissive returns the wider of two visibilities.
func MorePermissive(a, b Visibility) Visibility {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// SyncState is the per-record bookkeeping the sync engine maintains.
//
// RemoteUpdatedAt is the second-precision created_at of the newest relay
// copy this device has observed and acts as the push baseline. NetworkID
// is the record's stable relay address, assigned on first push.
type SyncState struct {
	Status          SyncStatus `json:"status"`
	RemoteUpdatedAt int64      `json:"remote_updated_at,omitempty"`
	NetworkID       string     `json:"network_id,omitempty"`

	// Snapshot caches the losing remote copy while Status is conflict.
	// The store keeps it in its own column, outside the payload.
	Snapshot json.RawMessage `json:"-"`
}

// Record is the envelope shared by every kind. Meta fields live on the
// envelope; kind-specific fields live in Content as a JSON document and
// are accessed through the typed views in content.go.
//
// CreatedAt and UpdatedAt are millisecond timestamps from the local
// clock. UpdatedAt moves on every local mutation and is what the engine
// compares when deciding whether an edit raced a push.
type Record struct {
	Kind      Kind            `json:"kind"`
	Slug      string          `json:"slug"`
	Author    string          `json:"author,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
	Sync      SyncState       `json:"sync"`
	Content   json.RawMessage `json:"content"`
}

// New returns a fresh local record of the given kind.
func New(kind Kind, slug string) *Record {
	now := NowMillis()
	return &Record{
		Kind:      kind,
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
		Sync:      SyncState{Status: StatusLocal},
	}
}

// Touch bumps UpdatedAt to the current local clock.
func (r *Record) Touch() {
	r.UpdatedAt = NowMillis()
}

// Clone returns a deep copy safe to mutate independently.
func (r *Record) Clone() *Record {
	c := *r
	if r.Content != nil {
		c.Content = append(json.RawMessage(nil), r.Content...)
	}
	if r.Sync.Snapshot != nil {
		c.Sync.Snapshot = append(json.RawMessage(nil), r.Sync.Snapshot...)
	}
	return &c
}

// Decode unmarshals the content document into v.
func (r *Record) Decode(v any) error {
	if len(r.Content) == 0 {
		return fmt.Errorf("models: %s %q has no content", r.Kind, r.Slug)
	}
	if err := json.Unmarshal(r.Content, v); err != nil {
		return fmt.Errorf("models: decode %s %q: %w", r.Kind, r.Slug, err)
	}
	return nil
}

// Encode marshals v as the record's content document.
func (r *Record) Encode(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("models: encode %s %q: %w", r.Kind, r.Slug, err)
	}
	r.Content = b
	return nil
}

// NowMillis returns the local clock as unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
