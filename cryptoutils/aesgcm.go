package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/ruteri/tee-kms-core/interfaces"
)

// ErrDecrypt reports a ciphertext that failed authentication or unpadding.
// It carries the MAC mismatch status.
var ErrDecrypt = fmt.Errorf("cryptoutils: message authentication failed: %w", interfaces.ErrMACMismatch)

// AESGCMOverhead is the ciphertext expansion of the AES-GCM family.
const AESGCMOverhead = GCMIVSize + GCMTagSize

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// AESGCMEncrypt produces ciphertext || iv || tag.
func (p *Primitives) AESGCMEncrypt(cmk interfaces.KeyBlob, aad, plaintext []byte) ([]byte, error) {
	var out []byte
	err := p.withKey(cmk, func(key []byte) error {
		var err error
		out, err = SealGCM(key, p.readIV, aad, plaintext)
		return err
	})
	return out, err
}

// AESGCMDecrypt reverses AESGCMEncrypt.
func (p *Primitives) AESGCMDecrypt(cmk interfaces.KeyBlob, aad, ciphertext []byte) ([]byte, error) {
	var out []byte
	err := p.withKey(cmk, func(key []byte) error {
		var err error
		out, err = OpenGCM(key, aad, ciphertext)
		return err
	})
	return out, err
}

// SealGCM encrypts plaintext under key into the ciphertext || iv || tag
// layout shared by the AES-GCM family and API credential wrapping.
func SealGCM(key []byte, readIV func(int) ([]byte, error), aad, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv, err := readIV(GCMIVSize)
	if err != nil {
		return nil, err
	}

	sealed := aead.Seal(nil, iv, plaintext, aad)
	ctLen := len(plaintext)

	out := make([]byte, 0, ctLen+AESGCMOverhead)
	out = append(out, sealed[:ctLen]...)
	out = append(out, iv...)
	out = append(out, sealed[ctLen:]...)
	return out, nil
}

// OpenGCM decrypts the ciphertext || iv || tag layout.
func OpenGCM(key []byte, aad, data []byte) ([]byte, error) {
	if len(data) < AESGCMOverhead {
		return nil, fmt.Errorf("ciphertext too short: %w", interfaces.ErrInvalidParameter)
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	ctLen := len(data) - AESGCMOverhead
	iv := data[ctLen : ctLen+GCMIVSize]
	sealed := make([]byte, 0, ctLen+GCMTagSize)
	sealed = append(sealed, data[:ctLen]...)
	sealed = append(sealed, data[ctLen+GCMIVSize:]...)

	plaintext, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
