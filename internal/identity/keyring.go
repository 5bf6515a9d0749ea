package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/wire"
)

// Keyring is the local Identity: an ed25519 signing key plus a
// curve25519 encryption key held in memory.
type Keyring struct {
	signPriv ed25519.PrivateKey
	encPriv  *[32]byte
	encPub   *[32]byte
}

// Generate creates a fresh keyring.
func Generate() (*Keyring, error) {
	_, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate signing key: %w", err)
	}
	encPub, encPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate encryption key: %w", err)
	}
	return &Keyring{signPriv: signPriv, encPriv: encPriv, encPub: encPub}, nil
}

// fromMaterial rebuilds a keyring from the persisted secrets.
func fromMaterial(signSeed []byte, encPriv *[32]byte) (*Keyring, error) {
	if len(signSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: signing seed is %d bytes, want %d", len(signSeed), ed25519.SeedSize)
	}
	k := &Keyring{
		signPriv: ed25519.NewKeyFromSeed(signSeed),
		encPriv:  encPriv,
		encPub:   new([32]byte),
	}
	curve25519.ScalarBaseMult(k.encPub, k.encPriv)
	return k, nil
}

func (k *Keyring) PublicKey() string {
	return hex.EncodeToString(k.signPriv.Public().(ed25519.PublicKey))
}

func (k *Keyring) EncryptionKey() string {
	return hex.EncodeToString(k.encPub[:])
}

func (k *Keyring) Sign(e *wire.Event) error {
	return wire.Sign(e, k.signPriv)
}

// EncryptTo seals with an authenticated box: nonce prepended to the
// ciphertext, the whole thing base64.
func (k *Keyring) EncryptTo(peerKey string, plaintext []byte) (string, error) {
	peer, err := decodeCurveKey(peerKey)
	if err != nil {
		return "", err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("identity: nonce: %w", err)
	}
	ct := box.Seal(nonce[:], plaintext, &nonce, peer, k.encPriv)
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (k *Keyring) DecryptFrom(peerKey string, ciphertext string) ([]byte, error) {
	peer, err := decodeCurveKey(peerKey)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("identity: ciphertext encoding: %w", apperr.ErrDecode)
	}
	if len(raw) < 24+box.Overhead {
		return nil, fmt.Errorf("identity: ciphertext too short: %w", apperr.ErrDecode)
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	pt, ok := box.Open(nil, raw[24:], &nonce, peer, k.encPriv)
	if !ok {
		return nil, fmt.Errorf("identity: open box: %w", apperr.ErrCrypto)
	}
	return pt, nil
}

func (k *Keyring) DecryptSealed(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("identity: sealed encoding: %w", apperr.ErrDecode)
	}
	pt, ok := box.OpenAnonymous(nil, raw, k.encPub, k.encPriv)
	if !ok {
		return nil, fmt.Errorf("identity: open sealed box: %w", apperr.ErrCrypto)
	}
	return pt, nil
}

// SealAnonymous encrypts to a peer with a throwaway key, so nothing
// ties the ciphertext back to the sender. Opening requires only the
// recipient's keyring.
func SealAnonymous(peerKey string, plaintext []byte) (string, error) {
	peer, err := decodeCurveKey(peerKey)
	if err != nil {
		return "", err
	}
	ct, err := box.SealAnonymous(nil, plaintext, peer, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("identity: seal anonymous: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

func decodeCurveKey(s string) (*[32]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("identity: malformed encryption key %q: %w", s, apperr.ErrDecode)
	}
	key := new([32]byte)
	copy(key[:], raw)
	return key, nil
}
