package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// keystoreFile is the on-disk form. With a passphrase the secrets are
// sealed with a key derived by argon2id; without one they are stored
// plain, which is acceptable for a device-local file with 0600 mode.
type keystoreFile struct {
	Version int    `json:"version"`
	Salt    string `json:"salt,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
	Sealed  string `json:"sealed,omitempty"`

	SignSeed string `json:"sign_seed,omitempty"`
	EncPriv  string `json:"enc_priv,omitempty"`
}

type keystoreSecrets struct {
	SignSeed string `json:"sign_seed"`
	EncPriv  string `json:"enc_priv"`
}

const keystoreVersion = 1

// LoadOrCreate reads the keyring at path, generating and persisting a
// fresh one if the file does not exist. The second return reports
// whether a new identity was created.
func LoadOrCreate(path, passphrase string) (*Keyring, bool, error) {
	k, err := Load(path, passphrase)
	if err == nil {
		return k, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	k, err = Generate()
	if err != nil {
		return nil, false, err
	}
	if err := Save(path, k, passphrase); err != nil {
		return nil, false, err
	}
	return k, true, nil
}

// Load reads and, if sealed, decrypts the keyring at path.
func Load(path, passphrase string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read keystore: %w", err)
	}
	var f keystoreFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("identity: parse keystore: %w", err)
	}
	if f.Version != keystoreVersion {
		return nil, fmt.Errorf("identity: unsupported keystore version %d", f.Version)
	}

	var sec keystoreSecrets
	switch {
	case f.Sealed != "":
		if passphrase == "" {
			return nil, fmt.Errorf("identity: keystore is sealed, passphrase required")
		}
		plain, err := openSealed(&f, passphrase)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(plain, &sec); err != nil {
			return nil, fmt.Errorf("identity: parse sealed secrets: %w", err)
		}
	default:
		sec = keystoreSecrets{SignSeed: f.SignSeed, EncPriv: f.EncPriv}
	}

	seed, err := hex.DecodeString(sec.SignSeed)
	if err != nil {
		return nil, fmt.Errorf("identity: malformed signing seed: %w", err)
	}
	encRaw, err := hex.DecodeString(sec.EncPriv)
	if err != nil || len(encRaw) != 32 {
		return nil, fmt.Errorf("identity: malformed encryption key material")
	}
	encPriv := new([32]byte)
	copy(encPriv[:], encRaw)
	return fromMaterial(seed, encPriv)
}

// Save writes the keyring to path with 0600 mode, atomically.
func Save(path string, k *Keyring, passphrase string) error {
	f := keystoreFile{Version: keystoreVersion}
	sec := keystoreSecrets{
		SignSeed: hex.EncodeToString(k.signPriv.Seed()),
		EncPriv:  hex.EncodeToString(k.encPriv[:]),
	}
	if passphrase == "" {
		f.SignSeed = sec.SignSeed
		f.EncPriv = sec.EncPriv
	} else {
		plain, err := json.Marshal(sec)
		if err != nil {
			return fmt.Errorf("identity: marshal secrets: %w", err)
		}
		if err := seal(&f, plain, passphrase); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal keystore: %w", err)
	}
	return writeFileAtomic(path, data, 0o600)
}

// deriveKey stretches the passphrase with argon2id into an AES-256 key.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

func seal(f *keystoreFile, plain []byte, passphrase string) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("identity: salt: %w", err)
	}
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return fmt.Errorf("identity: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("identity: gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("identity: nonce: %w", err)
	}
	f.Salt = hex.EncodeToString(salt)
	f.Nonce = hex.EncodeToString(nonce)
	f.Sealed = base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plain, nil))
	return nil
}

func openSealed(f *keystoreFile, passphrase string) ([]byte, error) {
	salt, err := hex.DecodeString(f.Salt)
	if err != nil {
		return nil, fmt.Errorf("identity: malformed salt: %w", err)
	}
	nonce, err := hex.DecodeString(f.Nonce)
	if err != nil {
		return nil, fmt.Errorf("identity: malformed nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(f.Sealed)
	if err != nil {
		return nil, fmt.Errorf("identity: malformed sealed data: %w", err)
	}
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("identity: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("identity: gcm: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: wrong passphrase or corrupt keystore: %w", err)
	}
	return plain, nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("identity: create keystore dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return fmt.Errorf("identity: temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("identity: write keystore: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("identity: chmod keystore: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("identity: sync keystore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity: close keystore: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("identity: replace keystore: %w", err)
	}
	return nil
}
