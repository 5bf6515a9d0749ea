// Package identity manages the signing and encryption keys a session
// acts under. The engine only sees the Identity interface, so a remote
// signer or hardware key can replace the local keyring without touching
// sync code.
package identity

import (
	"encoding/hex"

	"github.com/starford/othala/internal/wire"
)

// Identity is the set of key operations the engine needs. Sign may
// refuse; callers treat a refusal as a transient stop, not corruption.
type Identity interface {
	// PublicKey returns the hex ed25519 key that identifies the user.
	PublicKey() string
	// EncryptionKey returns the hex curve25519 key peers encrypt to.
	EncryptionKey() string
	// Sign computes the event id and signature in place.
	Sign(e *wire.Event) error
	// EncryptTo seals plaintext to the peer's encryption key so that
	// the peer can both open it and authenticate the sender.
	EncryptTo(peerKey string, plaintext []byte) (string, error)
	// DecryptFrom opens a ciphertext a peer sealed for us.
	DecryptFrom(peerKey string, ciphertext string) ([]byte, error)
	// DecryptSealed opens an anonymously sealed ciphertext, the outer
	// layer of a gift wrap. The sender is not authenticated.
	DecryptSealed(ciphertext string) ([]byte, error)
}

// ValidEncryptionKey reports whether s parses as a hex curve25519 key.
func ValidEncryptionKey(s string) bool {
	raw, err := hex.DecodeString(s)
	return err == nil && len(raw) == 32
}

// ValidPublicKey reports whether s parses as a hex ed25519 key.
func ValidPublicKey(s string) bool {
	raw, err := hex.DecodeString(s)
	return err == nil && len(raw) == 32
}
