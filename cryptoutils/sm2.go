package cryptoutils

import (
	"fmt"

	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/tjfoc/gmsm/sm2"
)

// SM2Overhead is the ciphertext expansion of SM2 encryption in C1C3C2
// order: an uncompressed point (65 bytes) and an SM3 hash (32 bytes).
const SM2Overhead = 1 + 64 + 32

func (p *Primitives) sm2Key(cmk interfaces.KeyBlob, fn func(priv *sm2.PrivateKey) error) error {
	if spec := cmk.Metadata().KeySpec; spec != interfaces.KeySpecSM2 {
		return fmt.Errorf("keyspec %s is not sm2: %w", spec, interfaces.ErrInvalidParameter)
	}
	return p.withKey(cmk, func(material []byte) error {
		priv, err := DecodeSM2(material)
		if err != nil {
			return err
		}
		return fn(priv)
	})
}

func (p *Primitives) SM2Encrypt(cmk interfaces.KeyBlob, plaintext []byte) ([]byte, error) {
	var out []byte
	err := p.sm2Key(cmk, func(priv *sm2.PrivateKey) error {
		var err error
		out, err = sm2.Encrypt(&priv.PublicKey, plaintext, p.random, sm2.C1C3C2)
		return err
	})
	return out, err
}

func (p *Primitives) SM2Decrypt(cmk interfaces.KeyBlob, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) <= SM2Overhead {
		return nil, fmt.Errorf("sm2 ciphertext too short: %w", interfaces.ErrInvalidParameter)
	}
	var out []byte
	err := p.sm2Key(cmk, func(priv *sm2.PrivateKey) error {
		var err error
		out, err = sm2.Decrypt(priv, ciphertext, sm2.C1C3C2)
		return err
	})
	return out, err
}

// SM2Sign signs data with SM3 and the default user id.
func (p *Primitives) SM2Sign(cmk interfaces.KeyBlob, data []byte) ([]byte, error) {
	var sig []byte
	err := p.sm2Key(cmk, func(priv *sm2.PrivateKey) error {
		var err error
		sig, err = priv.Sign(p.random, data, nil)
		return err
	})
	return sig, err
}

func (p *Primitives) SM2Verify(cmk interfaces.KeyBlob, data, signature []byte) (bool, error) {
	var valid bool
	err := p.sm2Key(cmk, func(priv *sm2.PrivateKey) error {
		valid = priv.PublicKey.Verify(data, signature)
		return nil
	})
	return valid, err
}
