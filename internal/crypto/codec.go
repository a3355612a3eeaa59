package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	ivSize  = 12
	tagSize = 16
)

// ErrMalformedSecret is returned when an encrypted value does not have the
// expected iv:tag:ciphertext shape.
var ErrMalformedSecret = errors.New("malformed encrypted secret")

// ErrAuthenticationTag is returned when the authentication tag does not
// verify. No partial plaintext is ever returned.
var ErrAuthenticationTag = errors.New("authentication tag verification failed")

// Codec encrypts and decrypts short secrets with AES-256-GCM for storage at
// rest. Encrypted values are encoded as three colon-separated hex segments:
// a 12-byte IV, a 16-byte authentication tag, and the ciphertext.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec creates a Codec from a 64-character hex key (32 bytes). Any other
// key length is a configuration error.
func NewCodec(hexKey string) (*Codec, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV and returns the
// iv:tag:ciphertext envelope.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt opens an iv:tag:ciphertext envelope. Values that do not split into
// exactly three hex segments fail with ErrMalformedSecret; a tag mismatch
// fails with ErrAuthenticationTag.
func (c *Codec) Decrypt(secret string) (string, error) {
	parts := strings.Split(secret, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedSecret, len(parts))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", fmt.Errorf("%w: bad iv segment", ErrMalformedSecret)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: bad tag segment", ErrMalformedSecret)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext segment", ErrMalformedSecret)
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrAuthenticationTag
	}

	return string(plaintext), nil
}
