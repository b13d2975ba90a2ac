package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
)

const (
	// GCMIVSize is the nonce length used for every AES-GCM operation.
	GCMIVSize = 12
	// GCMTagSize is the AES-GCM authentication tag length.
	GCMTagSize = 16
	// SealOverhead is the number of bytes sealing adds to key material.
	SealOverhead = GCMIVSize + GCMTagSize
)

var ErrUnseal = errors.New("cryptoutils: failed to unseal key material")

// Sealer protects key material with the platform sealing key using
// AES-256-GCM. The key blob metadata is bound as additional data so a
// sealed key cannot be reused under a different keyspec or origin.
//
// Sealed format: [iv (12 bytes)][ciphertext][tag (16 bytes)]
type Sealer struct {
	aead   cipher.AEAD
	random io.Reader
}

// NewSealer creates a sealer for a 32-byte sealing key. The key is copied
// into the cipher schedule and may be wiped by the caller afterwards.
func NewSealer(sealingKey []byte, random io.Reader) (*Sealer, error) {
	if len(sealingKey) != 32 {
		return nil, fmt.Errorf("sealing key must be 32 bytes, got %d", len(sealingKey))
	}
	block, err := aes.NewCipher(sealingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{aead: aead, random: random}, nil
}

// SealedSize is the sealed length of n bytes of key material.
func SealedSize(n int) int { return n + SealOverhead }

// Seal encrypts key material bound to metadata.
func (s *Sealer) Seal(metadata, material []byte) ([]byte, error) {
	out := make([]byte, GCMIVSize, SealedSize(len(material)))
	if _, err := io.ReadFull(s.random, out); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	return s.aead.Seal(out, out[:GCMIVSize], material, metadata), nil
}

// Open recovers key material. The caller owns the returned slice and must
// Wipe it when done.
func (s *Sealer) Open(metadata, sealed []byte) ([]byte, error) {
	if len(sealed) < SealOverhead {
		return nil, ErrUnseal
	}
	material, err := s.aead.Open(nil, sealed[:GCMIVSize], sealed[GCMIVSize:], metadata)
	if err != nil {
		return nil, ErrUnseal
	}
	return material, nil
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	memguard.WipeBytes(b)
}
