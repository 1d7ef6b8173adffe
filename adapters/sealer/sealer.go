// Package sealer provides Sealer implementations.
package sealer

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/artpar/conftree/ports"
)

const (
	saltLen  = 16
	nonceLen = 24
	keyLen   = 32

	// DefaultCost is the scrypt CPU/memory cost used when none is given.
	DefaultCost = 1 << 15
)

// ErrSealed is returned when a sealed value cannot be opened.
var ErrSealed = errors.New("cannot open sealed value: wrong passphrase or corrupt data")

// SecretBox seals values with nacl/secretbox under a key derived from a
// passphrase with scrypt. Every sealed value carries its own salt and
// nonce, so equal plaintexts seal to different bytes.
type SecretBox struct {
	passphrase []byte
	cost       int
	rng        ports.Random
}

// NewSecretBox creates a sealer from a passphrase. cost is the scrypt
// CPU/memory parameter; values that are not a power of two of at least
// 1024 fall back to DefaultCost.
func NewSecretBox(passphrase string, cost int, rng ports.Random) *SecretBox {
	if cost < 1024 || cost&(cost-1) != 0 {
		cost = DefaultCost
	}
	return &SecretBox{passphrase: []byte(passphrase), cost: cost, rng: rng}
}

// Seal encrypts plaintext. Output layout: salt | nonce | box.
func (s *SecretBox) Seal(plaintext []byte) ([]byte, error) {
	salt, err := s.rng.Bytes(saltLen)
	if err != nil {
		return nil, fmt.Errorf("draw salt: %w", err)
	}
	key, err := s.deriveKey(salt)
	if err != nil {
		return nil, err
	}

	nb, err := s.rng.Bytes(nonceLen)
	if err != nil {
		return nil, fmt.Errorf("draw nonce: %w", err)
	}
	var nonce [nonceLen]byte
	copy(nonce[:], nb)

	out := make([]byte, 0, saltLen+nonceLen+len(plaintext)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, key), nil
}

// Open decrypts a previously sealed value.
func (s *SecretBox) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < saltLen+nonceLen+secretbox.Overhead {
		return nil, ErrSealed
	}
	key, err := s.deriveKey(sealed[:saltLen])
	if err != nil {
		return nil, err
	}
	var nonce [nonceLen]byte
	copy(nonce[:], sealed[saltLen:saltLen+nonceLen])

	plain, ok := secretbox.Open(nil, sealed[saltLen+nonceLen:], &nonce, key)
	if !ok {
		return nil, ErrSealed
	}
	return plain, nil
}

func (s *SecretBox) deriveKey(salt []byte) (*[keyLen]byte, error) {
	kb, err := scrypt.Key(s.passphrase, salt, s.cost, 8, 1, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	var key [keyLen]byte
	copy(key[:], kb)
	return &key, nil
}

// Ensure interface compliance.
var _ ports.Sealer = (*SecretBox)(nil)

// Noop passes values through unchanged, for setups without a passphrase.
type Noop struct{}

// Seal returns the plaintext untouched.
func (Noop) Seal(plaintext []byte) ([]byte, error) { return plaintext, nil }

// Open returns the sealed bytes untouched.
func (Noop) Open(sealed []byte) ([]byte, error) { return sealed, nil }

// Ensure interface compliance.
var _ ports.Sealer = Noop{}
