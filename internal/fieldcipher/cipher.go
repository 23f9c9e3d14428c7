// Package fieldcipher implements the authenticated field encryption
// primitive used to protect persisted secrets (SealKey material, vault
// file contents, provider credentials).
//
// It is AES-256-GCM with a random 16-byte IV per encryption. The wire
// format is three base64 segments joined by ":": "iv:tag:ct". Decryption
// fails with a distinguishable ErrAuthFailed on tag mismatch, tampered
// IV, or truncated payload.
package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keySize   = 32 // AES-256
	ivSize    = 16
	tagSize   = 16
	numFields = 3
)

// ErrAuthFailed is returned by Decrypt when the GCM authentication tag
// does not verify — tampered ciphertext, tampered IV, wrong key, or a
// truncated payload all collapse to this single error so callers cannot
// distinguish "wrong key" from "tampered data" (that distinction would
// itself leak information to an attacker).
var ErrAuthFailed = errors.New("fieldcipher: authentication failed")

// Cipher performs AES-256-GCM encryption and decryption with a single
// 32-byte key. A Cipher is safe for concurrent use.
type Cipher struct {
	key []byte
}

// New constructs a Cipher from a raw 32-byte AES-256 key. It fails loudly
// (returns an error, never a zero-value Cipher) when the key is absent or
// of the wrong length.
func New(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("fieldcipher: key must be %d bytes, got %d", keySize, len(key))
	}
	return &Cipher{key: append([]byte(nil), key...)}, nil
}

// NewFromBase64 decodes a base64-encoded 32-byte key and constructs a
// Cipher from it.
func NewFromBase64(keyB64 string) (*Cipher, error) {
	if keyB64 == "" {
		return nil, fmt.Errorf("fieldcipher: encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("fieldcipher: invalid base64 key: %w", err)
	}
	return New(key)
}

// Encrypt encrypts plaintext and returns "base64(iv):base64(tag):base64(ct)".
// Two calls with the same plaintext and the same key produce distinct
// ciphertexts because the IV is freshly random every time.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("fieldcipher: cipher init: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return "", fmt.Errorf("fieldcipher: gcm init: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("fieldcipher: iv generation: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ct),
	}, ":"), nil
}

// EncryptString is a convenience wrapper over Encrypt for string plaintext.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// Decrypt parses the "iv:tag:ct" wire format and authenticates+decrypts
// it. Any mutation of any segment, a truncated payload, or the wrong key
// causes ErrAuthFailed.
func (c *Cipher) Decrypt(envelope string) ([]byte, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != numFields {
		return nil, fmt.Errorf("%w: malformed envelope (expected %d segments, got %d)", ErrAuthFailed, numFields, len(parts))
	}

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid iv encoding", ErrAuthFailed)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tag encoding", ErrAuthFailed)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext encoding", ErrAuthFailed)
	}
	if len(iv) != ivSize || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: segment length mismatch", ErrAuthFailed)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("fieldcipher: cipher init: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return nil, fmt.Errorf("fieldcipher: gcm init: %w", err)
	}

	sealed := append(append([]byte(nil), ct...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// DecryptString is a convenience wrapper over Decrypt returning a string.
func (c *Cipher) DecryptString(envelope string) (string, error) {
	pt, err := c.Decrypt(envelope)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
