package attestation

import (
	"crypto/aes"
	"errors"
	"fmt"

	"github.com/aead/cmac"
	"github.com/ruteri/tee-kms-core/interfaces"
)

// DefaultKDFID identifies the label-based derivation in msg2.
const DefaultKDFID uint16 = 1

var ErrUnsupportedKDF = errors.New("attestation: unsupported key derivation function")

// CMAC computes the 16-byte AES-128-CMAC of msg.
func CMAC(key [16]byte, msg []byte) ([16]byte, error) {
	var out [16]byte
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return out, err
	}
	sum, err := cmac.Sum(msg, block, 16)
	if err != nil {
		return out, err
	}
	copy(out[:], sum)
	return out, nil
}

// DeriveKDK computes the key derivation key from the little-endian shared
// x coordinate: CMAC under an all-zero key.
func DeriveKDK(shared []byte) ([16]byte, error) {
	return CMAC([16]byte{}, shared)
}

// DeriveLabelKey derives one session key: CMAC(kdk, 0x01 || label || 0x00 || 0x80 || 0x00).
func DeriveLabelKey(kdk [16]byte, label string) ([16]byte, error) {
	msg := make([]byte, 0, len(label)+4)
	msg = append(msg, 0x01)
	msg = append(msg, label...)
	msg = append(msg, 0x00, 0x80, 0x00)
	return CMAC(kdk, msg)
}

// DefaultKeyDerivation derives SMK, SK, MK and VK from the shared secret.
func DefaultKeyDerivation(shared []byte, kdfID uint16) (interfaces.SessionKeys, error) {
	var keys interfaces.SessionKeys
	if kdfID != DefaultKDFID {
		return keys, fmt.Errorf("%w: %d", ErrUnsupportedKDF, kdfID)
	}

	kdk, err := DeriveKDK(shared)
	if err != nil {
		return keys, err
	}
	defer clear(kdk[:])

	for _, l := range []struct {
		label string
		dst   *[16]byte
	}{
		{"SMK", &keys.SMK},
		{"SK", &keys.SK},
		{"MK", &keys.MK},
		{"VK", &keys.VK},
	} {
		if *l.dst, err = DeriveLabelKey(kdk, l.label); err != nil {
			return interfaces.SessionKeys{}, err
		}
	}
	return keys, nil
}
