// Package giftwrap implements the double envelope that carries private
// and shared records across relays. The inner event is encrypted into a
// seal signed by the true sender, and the seal is encrypted again into
// an outer wrap signed by a throwaway key, so relays learn nothing but
// the recipient.
package giftwrap

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	mathrand "math/rand/v2"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/wire"
)

// Window is how far a wrap's timestamp may be displaced from the seal's
// true one, in either direction. Pull queries must widen their lower
// bound by this much or jittered wraps fall outside the watermark.
const Window = 2 * 24 * time.Hour

// Wrap builds the envelope carrying inner to one recipient, identified
// by their hex curve25519 encryption key.
//
// The seal keeps the inner event's true timestamp and is signed by the
// sender. The outer wrap gets a jittered timestamp and a fresh ed25519
// key that signs exactly one event, so wraps for different recipients
// cannot be correlated by author.
func Wrap(id identity.Identity, inner *wire.Event, recipient string) (*wire.Event, error) {
	innerJSON, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("giftwrap: marshal inner event: %w", err)
	}
	sealed, err := id.EncryptTo(recipient, innerJSON)
	if err != nil {
		return nil, fmt.Errorf("giftwrap: seal content: %w", err)
	}
	seal := &wire.Event{
		CreatedAt: inner.CreatedAt,
		Kind:      wire.KindSeal,
		Tags:      [][]string{{wire.TagSenderKey, id.EncryptionKey()}},
		Content:   sealed,
	}
	if err := id.Sign(seal); err != nil {
		return nil, fmt.Errorf("giftwrap: sign seal: %w", err)
	}

	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, fmt.Errorf("giftwrap: marshal seal: %w", err)
	}
	wrapped, err := identity.SealAnonymous(recipient, sealJSON)
	if err != nil {
		return nil, fmt.Errorf("giftwrap: wrap seal: %w", err)
	}
	wrap := &wire.Event{
		CreatedAt: jitter(inner.CreatedAt),
		Kind:      wire.KindGiftWrap,
		Tags:      [][]string{{wire.TagRecipient, recipient}},
		Content:   wrapped,
	}
	_, ephemeral, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("giftwrap: ephemeral key: %w", err)
	}
	if err := wire.Sign(wrap, ephemeral); err != nil {
		return nil, fmt.Errorf("giftwrap: sign wrap: %w", err)
	}
	return wrap, nil
}

// WrapAll builds one envelope per recipient.
func WrapAll(id identity.Identity, inner *wire.Event, recipients []string) ([]*wire.Event, error) {
	wraps := make([]*wire.Event, 0, len(recipients))
	for _, r := range recipients {
		w, err := Wrap(id, inner, r)
		if err != nil {
			return nil, err
		}
		wraps = append(wraps, w)
	}
	return wraps, nil
}

// Unwrapped is a recovered envelope: the verified inner event, the seal
// signer, and the wrap's jittered arrival timestamp. Merge logic must
// order by Inner.CreatedAt, never by ArrivedAt.
type Unwrapped struct {
	Inner     *wire.Event
	Sender    string
	ArrivedAt int64
}

// Unwrap opens both layers and verifies the signatures inside. The
// seal's author must match the inner event's author, otherwise a seal
// holder could replay someone else's content under their own name.
func Unwrap(id identity.Identity, wrap *wire.Event) (*Unwrapped, error) {
	if wrap.Kind != wire.KindGiftWrap {
		return nil, fmt.Errorf("giftwrap: kind %d is not a gift wrap: %w", wrap.Kind, apperr.ErrDecode)
	}
	sealJSON, err := id.DecryptSealed(wrap.Content)
	if err != nil {
		return nil, fmt.Errorf("giftwrap: open wrap: %w", err)
	}
	var seal wire.Event
	if err := json.Unmarshal(sealJSON, &seal); err != nil {
		return nil, fmt.Errorf("giftwrap: parse seal: %w", apperr.ErrDecode)
	}
	if seal.Kind != wire.KindSeal {
		return nil, fmt.Errorf("giftwrap: wrapped kind %d is not a seal: %w", seal.Kind, apperr.ErrDecode)
	}
	if err := seal.Verify(); err != nil {
		return nil, fmt.Errorf("giftwrap: seal: %w", err)
	}
	senderEnc := seal.TagValue(wire.TagSenderKey)
	if senderEnc == "" {
		return nil, fmt.Errorf("giftwrap: seal carries no sender key: %w", apperr.ErrDecode)
	}

	innerJSON, err := id.DecryptFrom(senderEnc, seal.Content)
	if err != nil {
		return nil, fmt.Errorf("giftwrap: open seal: %w", err)
	}
	var inner wire.Event
	if err := json.Unmarshal(innerJSON, &inner); err != nil {
		return nil, fmt.Errorf("giftwrap: parse inner event: %w", apperr.ErrDecode)
	}
	if err := inner.Verify(); err != nil {
		return nil, fmt.Errorf("giftwrap: inner event: %w", err)
	}
	if inner.Author != seal.Author {
		return nil, fmt.Errorf("giftwrap: seal signer %s does not match payload author %s", seal.Author, inner.Author)
	}
	return &Unwrapped{Inner: &inner, Sender: seal.Author, ArrivedAt: wrap.CreatedAt}, nil
}

// jitter displaces t uniformly within ±Window.
func jitter(t int64) int64 {
	span := int64(Window / time.Second)
	return t + mathrand.Int64N(2*span+1) - span
}
