package cryptoutils

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ruteri/tee-kms-core/interfaces"
)

func (p *Primitives) eccKey(cmk interfaces.KeyBlob, fn func(md interfaces.KeyMetadata, priv *ecdsa.PrivateKey) error) error {
	md := cmk.Metadata()
	if md.KeySpec.Family() != interfaces.FamilyECC {
		return fmt.Errorf("keyspec %s is not ecc: %w", md.KeySpec, interfaces.ErrInvalidParameter)
	}
	curve, err := Curve(md.KeySpec)
	if err != nil {
		return err
	}
	return p.withKey(cmk, func(material []byte) error {
		priv, err := DecodeECDSA(material, curve)
		if err != nil {
			return err
		}
		return fn(md, priv)
	})
}

// ECCSign returns an ASN.1 DER ECDSA signature over the digest of data.
func (p *Primitives) ECCSign(cmk interfaces.KeyBlob, data []byte) ([]byte, error) {
	var sig []byte
	err := p.eccKey(cmk, func(md interfaces.KeyMetadata, priv *ecdsa.PrivateKey) error {
		digest, err := Digest(md.DigestMode, data)
		if err != nil {
			return err
		}
		sig, err = ecdsa.SignASN1(p.random, priv, digest)
		return err
	})
	return sig, err
}

func (p *Primitives) ECCVerify(cmk interfaces.KeyBlob, data, signature []byte) (bool, error) {
	var valid bool
	err := p.eccKey(cmk, func(md interfaces.KeyMetadata, priv *ecdsa.PrivateKey) error {
		digest, err := Digest(md.DigestMode, data)
		if err != nil {
			return err
		}
		valid = ecdsa.VerifyASN1(&priv.PublicKey, digest, signature)
		return nil
	})
	return valid, err
}
