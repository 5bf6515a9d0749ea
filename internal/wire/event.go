// Package wire implements the relay event format: signed JSON events,
// addressable per (author, kind, slug), plus the query filter relays
// understand.
package wire

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/starford/othala/internal/models"
)

// Event kind numbers. Record kinds are addressable: a relay keeps only
// the newest event per (author, kind, slug) address. Seals and gift
// wraps are stored by id and never replaced.
const (
	KindSave       = 3001
	KindCollection = 3002
	KindAnnotation = 3003
	KindArticle    = 3004
	KindSeal       = 3051
	KindGiftWrap   = 3052
)

// Tag names.
const (
	TagSlug      = "slug"    // addressable identifier
	TagRecipient = "to"      // gift wrap destination encryption key
	TagListed    = "listed"  // published, discoverable in public indexes
	TagDeleted   = "deleted" // tombstone
	TagSenderKey = "enc"     // sender's encryption key, carried inside a seal
)

// RecordKinds lists the addressable record kinds.
func RecordKinds() []int {
	return []int{KindSave, KindCollection, KindAnnotation, KindArticle}
}

// Addressable reports whether events of this kind replace older events
// at the same (author, kind, slug) address.
func Addressable(kind int) bool {
	switch kind {
	case KindSave, KindCollection, KindAnnotation, KindArticle:
		return true
	}
	return false
}

// KindFor maps a record kind to its event kind number.
func KindFor(k models.Kind) (int, bool) {
	switch k {
	case models.KindSave:
		return KindSave, true
	case models.KindCollection:
		return KindCollection, true
	case models.KindAnnotation:
		return KindAnnotation, true
	case models.KindArticle:
		return KindArticle, true
	}
	return 0, false
}

// RecordKind maps an event kind number back to the record kind.
func RecordKind(kind int) (models.Kind, bool) {
	switch kind {
	case KindSave:
		return models.KindSave, true
	case KindCollection:
		return models.KindCollection, true
	case KindAnnotation:
		return models.KindAnnotation, true
	case KindArticle:
		return models.KindArticle, true
	}
	return "", false
}

// Event is the unit relays store and serve. CreatedAt is unix seconds;
// the network never sees millisecond clocks.
type Event struct {
	ID        string     `json:"id"`
	Author    string     `json:"author"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// TagValue returns the first value of the named tag, or "".
func (e *Event) TagValue(name string) string {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

// HasTag reports whether the named tag is present, with or without a
// value.
func (e *Event) HasTag(name string) bool {
	for _, t := range e.Tags {
		if len(t) >= 1 && t[0] == name {
			return true
		}
	}
	return false
}

// AddTag appends a tag.
func (e *Event) AddTag(name string, values ...string) {
	e.Tags = append(e.Tags, append([]string{name}, values...))
}

// Address returns the replaceable address "kind:author:slug", or "" for
// kinds that are not addressable.
func (e *Event) Address() string {
	if !Addressable(e.Kind) {
		return ""
	}
	return fmt.Sprintf("%d:%s:%s", e.Kind, e.Author, e.TagValue(TagSlug))
}

// digest hashes the canonical serialization: a fixed-order JSON array
// of the signed fields. Both signer and verifier derive the id from it.
func (e *Event) digest() []byte {
	payload, err := json.Marshal([]any{e.Author, e.CreatedAt, e.Kind, e.Tags, e.Content})
	if err != nil {
		// Only strings, ints and string slices are involved.
		panic(fmt.Sprintf("wire: canonical marshal: %v", err))
	}
	h := sha256.Sum256(payload)
	return h[:]
}

// ComputeID returns the hex digest of the canonical serialization.
func (e *Event) ComputeID() string {
	return hex.EncodeToString(e.digest())
}

// Sign sets Author from the key, recomputes the id and signs it.
func Sign(e *Event, priv ed25519.PrivateKey) error {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok || len(priv) != ed25519.PrivateKeySize {
		return fmt.Errorf("wire: malformed signing key")
	}
	e.Author = hex.EncodeToString(pub)
	e.ID = e.ComputeID()
	e.Sig = hex.EncodeToString(ed25519.Sign(priv, e.digest()))
	return nil
}

// Verify checks the id against the canonical serialization and the
// signature against the author key.
func (e *Event) Verify() error {
	if e.ID != e.ComputeID() {
		return fmt.Errorf("wire: event id does not match content")
	}
	pub, err := hex.DecodeString(e.Author)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("wire: malformed author key %q", e.Author)
	}
	sig, err := hex.DecodeString(e.Sig)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("wire: malformed signature")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), e.digest(), sig) {
		return fmt.Errorf("wire: invalid signature")
	}
	return nil
}
