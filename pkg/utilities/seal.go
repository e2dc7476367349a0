package utilities

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "sb1:"
	plainPrefix  = "plain:"
	keySize      = 32
	nonceSize    = 24
)

var ErrSealedValue = errors.New("sealed value is malformed or was sealed with another key")

// Sealer encrypts short secrets (tokens, client secrets) before they are
// written to the database. A Sealer without a key stores values marked as
// plain text so a key can be introduced later without a migration.
type Sealer struct {
	key *[keySize]byte
}

// NewSealer builds a Sealer from a raw 32-byte key. A nil key disables sealing.
func NewSealer(key []byte) (*Sealer, error) {
	if key == nil {
		return &Sealer{}, nil
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", keySize, len(key))
	}
	var k [keySize]byte
	copy(k[:], key)
	return &Sealer{key: &k}, nil
}

// SealerFromEnv reads TOKEN_SEAL_KEY (standard base64). Unset means no sealing.
func SealerFromEnv() (*Sealer, error) {
	v := strings.TrimSpace(os.Getenv("TOKEN_SEAL_KEY"))
	if v == "" {
		return NewSealer(nil)
	}
	key, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("decode TOKEN_SEAL_KEY: %w", err)
	}
	return NewSealer(key)
}

// Enabled reports whether values are actually encrypted.
func (s *Sealer) Enabled() bool { return s != nil && s.key != nil }

// Seal returns an opaque text form of value. Empty stays empty.
func (s *Sealer) Seal(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if !s.Enabled() {
		return plainPrefix + value, nil
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(value), &nonce, s.key)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(stored string) (string, error) {
	switch {
	case stored == "":
		return "", nil
	case strings.HasPrefix(stored, plainPrefix):
		return strings.TrimPrefix(stored, plainPrefix), nil
	case strings.HasPrefix(stored, sealedPrefix):
		if !s.Enabled() {
			return "", ErrSealedValue
		}
		raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
		if err != nil || len(raw) < nonceSize+secretbox.Overhead {
			return "", ErrSealedValue
		}
		var nonce [nonceSize]byte
		copy(nonce[:], raw[:nonceSize])
		plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, s.key)
		if !ok {
			return "", ErrSealedValue
		}
		return string(plain), nil
	default:
		return "", ErrSealedValue
	}
}
