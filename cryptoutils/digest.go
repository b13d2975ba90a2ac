package cryptoutils

import (
	"crypto"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/tjfoc/gmsm/sm3"
)

// digestHash maps a digest mode to its crypto.Hash. SM3 has no
// crypto.Hash value and returns 0. DigestNone signs with SHA-256.
func digestHash(mode interfaces.DigestMode) (crypto.Hash, error) {
	switch mode {
	case interfaces.DigestNone, interfaces.DigestSHA256:
		return crypto.SHA256, nil
	case interfaces.DigestSHA224:
		return crypto.SHA224, nil
	case interfaces.DigestSHA384:
		return crypto.SHA384, nil
	case interfaces.DigestSHA512:
		return crypto.SHA512, nil
	case interfaces.DigestSM3:
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported digest %s: %w", mode, interfaces.ErrInvalidParameter)
	}
}

// Digest hashes data with the given digest mode.
func Digest(mode interfaces.DigestMode, data []byte) ([]byte, error) {
	switch mode {
	case interfaces.DigestNone, interfaces.DigestSHA256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case interfaces.DigestSHA224:
		sum := sha256.Sum224(data)
		return sum[:], nil
	case interfaces.DigestSHA384:
		sum := sha512.Sum384(data)
		return sum[:], nil
	case interfaces.DigestSHA512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	case interfaces.DigestSM3:
		return sm3.Sm3Sum(data), nil
	default:
		return nil, fmt.Errorf("unsupported digest %s: %w", mode, interfaces.ErrInvalidParameter)
	}
}
