package giftwrap

import (
	"testing"
	"time"

	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/wire"
)

func signedInner(t *testing.T, id identity.Identity) *wire.Event {
	t.Helper()
	inner := &wire.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      wire.KindSave,
		Content:   `{"title":"private capture","url":"https://example.test"}`,
	}
	inner.AddTag(wire.TagSlug, "private-capture")
	if err := id.Sign(inner); err != nil {
		t.Fatalf("sign inner: %v", err)
	}
	return inner
}

func TestWrapUnwrapToPeer(t *testing.T) {
	alice, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}

	inner := signedInner(t, alice)
	wrap, err := Wrap(alice, inner, bob.EncryptionKey())
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	got, err := Unwrap(bob, wrap)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if got.Sender != alice.PublicKey() {
		t.Errorf("sender = %q, want alice", got.Sender)
	}
	if got.Inner.ID != inner.ID || got.Inner.Content != inner.Content {
		t.Error("inner event did not survive the roundtrip")
	}
	if got.Inner.CreatedAt != inner.CreatedAt {
		t.Error("inner timestamp must be the true one")
	}
}

func TestWrapToSelf(t *testing.T) {
	alice, _ := identity.Generate()
	inner := signedInner(t, alice)

	wrap, err := Wrap(alice, inner, alice.EncryptionKey())
	if err != nil {
		t.Fatalf("Wrap to self: %v", err)
	}
	got, err := Unwrap(alice, wrap)
	if err != nil {
		t.Fatalf("Unwrap own wrap: %v", err)
	}
	if got.Inner.ID != inner.ID {
		t.Error("self wrap did not carry the inner event")
	}
}

func TestWrapHidesSender(t *testing.T) {
	alice, _ := identity.Generate()
	bob, _ := identity.Generate()
	inner := signedInner(t, alice)

	wrap, err := Wrap(alice, inner, bob.EncryptionKey())
	if err != nil {
		t.Fatal(err)
	}
	if wrap.Author == alice.PublicKey() {
		t.Error("wrap must be signed by a throwaway key, not the sender")
	}
	if err := wrap.Verify(); err != nil {
		t.Errorf("wrap should still carry a valid signature: %v", err)
	}
	if wrap.TagValue(wire.TagRecipient) != bob.EncryptionKey() {
		t.Error("wrap must be tagged to the recipient")
	}

	two, err := Wrap(alice, inner, bob.EncryptionKey())
	if err != nil {
		t.Fatal(err)
	}
	if two.Author == wrap.Author {
		t.Error("each wrap must use a fresh throwaway key")
	}
}

func TestWrapJittersTimestamp(t *testing.T) {
	alice, _ := identity.Generate()
	inner := signedInner(t, alice)
	span := int64(Window / time.Second)

	for range 32 {
		wrap, err := Wrap(alice, inner, alice.EncryptionKey())
		if err != nil {
			t.Fatal(err)
		}
		d := wrap.CreatedAt - inner.CreatedAt
		if d < -span || d > span {
			t.Fatalf("wrap timestamp displaced by %ds, outside ±%ds", d, span)
		}
	}
}

func TestUnwrapByNonRecipientFails(t *testing.T) {
	alice, _ := identity.Generate()
	bob, _ := identity.Generate()
	eve, _ := identity.Generate()

	wrap, err := Wrap(alice, signedInner(t, alice), bob.EncryptionKey())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unwrap(eve, wrap); err == nil {
		t.Error("only the recipient should open the wrap")
	}
}

func TestUnwrapRejectsNonWrapKinds(t *testing.T) {
	alice, _ := identity.Generate()
	inner := signedInner(t, alice)
	if _, err := Unwrap(alice, inner); err == nil {
		t.Error("a plain record event is not a gift wrap")
	}
}

func TestWrapAll(t *testing.T) {
	alice, _ := identity.Generate()
	bob, _ := identity.Generate()
	inner := signedInner(t, alice)

	wraps, err := WrapAll(alice, inner, []string{alice.EncryptionKey(), bob.EncryptionKey()})
	if err != nil {
		t.Fatalf("WrapAll: %v", err)
	}
	if len(wraps) != 2 {
		t.Fatalf("got %d wraps, want 2", len(wraps))
	}
	if _, err := Unwrap(alice, wraps[0]); err != nil {
		t.Errorf("alice cannot open her copy: %v", err)
	}
	if _, err := Unwrap(bob, wraps[1]); err != nil {
		t.Errorf("bob cannot open his copy: %v", err)
	}
}
