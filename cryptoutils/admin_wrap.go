package cryptoutils

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const adminWrapInfo = "ehsm-admin-share"

// p256PointSize is the uncompressed P-256 point length.
const p256PointSize = 65

// WrapForAdmin encrypts data to an administrator's P-256 key:
//
//	[ephemeral public key (65)][ciphertext][iv (12)][tag (16)]
//
// The AES-256-GCM key is HKDF-SHA256 over the ECDH shared secret with the
// ephemeral public key as salt.
func WrapForAdmin(pub Pubkey, data []byte) ([]byte, error) {
	ecdsaPub, err := pub.ECDSA()
	if err != nil {
		return nil, err
	}
	recipient, err := ecdsaPub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("failed to convert admin key: %w", err)
	}

	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	shared, err := ephemeral.ECDH(recipient)
	if err != nil {
		return nil, err
	}
	defer Wipe(shared)

	ephemeralPub := ephemeral.PublicKey().Bytes()
	key, err := adminWrapKey(shared, ephemeralPub)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	sealed, err := SealGCM(key, randomIV, ephemeralPub, data)
	if err != nil {
		return nil, err
	}
	return append(ephemeralPub, sealed...), nil
}

// UnwrapWithAdminKey reverses WrapForAdmin.
func UnwrapWithAdminKey(priv Privkey, wrapped []byte) ([]byte, error) {
	if len(wrapped) < p256PointSize+AESGCMOverhead {
		return nil, errors.New("wrapped data too short")
	}
	ecdsaPriv, err := priv.ECDSA()
	if err != nil {
		return nil, err
	}
	own, err := ecdsaPriv.ECDH()
	if err != nil {
		return nil, fmt.Errorf("failed to convert admin key: %w", err)
	}

	ephemeralPub := wrapped[:p256PointSize]
	peer, err := ecdh.P256().NewPublicKey(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("invalid ephemeral key: %w", err)
	}
	shared, err := own.ECDH(peer)
	if err != nil {
		return nil, err
	}
	defer Wipe(shared)

	key, err := adminWrapKey(shared, ephemeralPub)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	return OpenGCM(key, ephemeralPub, wrapped[p256PointSize:])
}

func adminWrapKey(shared, salt []byte) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, []byte(adminWrapInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func randomIV(n int) ([]byte, error) {
	iv := make([]byte, n)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}
