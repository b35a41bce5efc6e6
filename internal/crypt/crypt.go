// Package crypt implements envelope encryption for exam content.
//
// Two independent encryption contexts exist per exam: the at-rest blob,
// keyed by a storage key held only server-side, and the published blob,
// keyed by a distribution key stored alongside the public locator. Both use
// AES-256-GCM but never share key material; each key is generated fresh at
// the point its blob is produced and is never backfilled from a sibling.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// KeySize is the symmetric key length in bytes (AES-256).
	KeySize = 32

	nonceSize = 12
	tagSize   = 16
)

// ErrDecryption is returned when a blob cannot be decrypted: malformed
// nonce/ciphertext/tag, wrong key length, unknown blob version, or
// authentication failure. Callers must treat it as recoverable only by
// re-supplying correct material, never by retrying with a fallback key.
var ErrDecryption = errors.New("decryption failed")

// BlobVersion tags the wire format of an EncryptedBlob so format drift is
// an additive enum case rather than ad-hoc type sniffing.
type BlobVersion string

const (
	// BlobV1 is AES-256-GCM with a detached 16-byte tag.
	BlobV1 BlobVersion = "v1.aes256gcm"
)

// Key is a symmetric encryption key.
type Key []byte

// GenerateKey returns a fresh cryptographically random 32-byte key.
func GenerateKey() (Key, error) {
	k := make(Key, KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return k, nil
}

// Hex returns the hex encoding used for at-rest key persistence.
func (k Key) Hex() string {
	return hex.EncodeToString(k)
}

// KeyFromHex decodes a hex-encoded key and validates its length.
func KeyFromHex(s string) (Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(b) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(b))
	}
	return Key(b), nil
}

// EncryptedBlob is the single tagged ciphertext representation, opaque to
// everything outside this package. Nonce, Ciphertext and Tag are raw bytes;
// JSON encoding is base64 via encoding/json.
type EncryptedBlob struct {
	Version    BlobVersion `json:"version"`
	Nonce      []byte      `json:"nonce"`
	Ciphertext []byte      `json:"ciphertext"`
	Tag        []byte      `json:"tag"`
}

// Encrypt seals plaintext under key with a fresh random nonce. Reusing a
// nonce under the same key would break GCM, so the nonce is drawn from
// crypto/rand on every call.
func Encrypt(plaintext []byte, key Key) (*EncryptedBlob, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	// Seal appends the tag; detach it so the blob carries it explicitly.
	split := len(sealed) - tagSize
	return &EncryptedBlob{
		Version:    BlobV1,
		Nonce:      nonce,
		Ciphertext: sealed[:split],
		Tag:        sealed[split:],
	}, nil
}

// Decrypt opens blob with key. It is side-effect free and applies no state
// on failure: the output is either the full plaintext or ErrDecryption.
func Decrypt(blob *EncryptedBlob, key Key) ([]byte, error) {
	if blob == nil {
		return nil, fmt.Errorf("%w: nil blob", ErrDecryption)
	}
	if blob.Version != BlobV1 {
		return nil, fmt.Errorf("%w: unknown blob version %q", ErrDecryption, blob.Version)
	}
	if len(blob.Nonce) != nonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrDecryption, nonceSize, len(blob.Nonce))
	}
	if len(blob.Tag) != tagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", ErrDecryption, tagSize, len(blob.Tag))
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(blob.Ciphertext)+tagSize)
	sealed = append(sealed, blob.Ciphertext...)
	sealed = append(sealed, blob.Tag...)

	plaintext, err := aead.Open(nil, blob.Nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryption)
	}
	return plaintext, nil
}

func newAEAD(key Key) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrDecryption, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return cipher.NewGCM(block)
}
