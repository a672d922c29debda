// Package vault encrypts tenant payment secrets and renders key ids for
// display. The process-wide key never leaves this package.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"regexp"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrNoKey            = errors.New("vault: encryption key not configured")
	ErrInvalidKeyID     = errors.New("vault: invalid key id format")
	ErrDecryptionFailed = errors.New("vault: decryption failed")
)

const hkdfInfo = "gym-platform/payment-credentials/v1"

var keyIDPattern = regexp.MustCompile(`^rzp_(test|live)_[A-Za-z0-9]{14,}$`)

// ValidKeyID reports whether keyID has the gateway's public key format
func ValidKeyID(keyID string) bool {
	return keyIDPattern.MatchString(keyID)
}

// Cipher seals secrets with AES-256-GCM under a key derived from the
// configured passphrase
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the data key. An empty secret yields ErrNoKey so a
// misconfigured process fails on first use instead of storing plaintext.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrNoKey
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt returns ciphertext and a fresh nonce. aad binds the ciphertext to
// its owner (the tenant id) so rows cannot be swapped between tenants.
func (c *Cipher) Encrypt(plaintext, aad []byte) (ciphertext, iv []byte, err error) {
	iv = make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("vault: nonce: %w", err)
	}
	return c.aead.Seal(nil, iv, plaintext, aad), iv, nil
}

// Decrypt opens a sealed secret
func (c *Cipher) Decrypt(ciphertext, iv, aad []byte) ([]byte, error) {
	if len(iv) != c.aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	out, err := c.aead.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return out, nil
}

// MaskKeyID renders first 8 + **** + last 4 for ids longer than 12
// characters and first 4 + **** otherwise
func MaskKeyID(keyID string) string {
	if len(keyID) > 12 {
		return keyID[:8] + "****" + keyID[len(keyID)-4:]
	}
	if len(keyID) > 4 {
		return keyID[:4] + "****"
	}
	return keyID + "****"
}

// MaskSecret hides everything but the last 4 characters
func MaskSecret(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
