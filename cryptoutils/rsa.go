package cryptoutils

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"fmt"
	"math/big"

	"github.com/ruteri/tee-kms-core/interfaces"
)

// RSAPaddingOverhead is the number of modulus bytes an encryption padding
// consumes. OAEP uses SHA-1 for both the label hash and MGF1. ok is false
// for modes that cannot be used for encryption.
func RSAPaddingOverhead(mode interfaces.PaddingMode) (overhead int, ok bool) {
	switch mode {
	case interfaces.PaddingNone:
		return 0, true
	case interfaces.PaddingRSAPKCS1:
		return 11, true
	case interfaces.PaddingRSAPKCS1OAEP:
		return 2*sha1.Size + 2, true
	default:
		return 0, false
	}
}

var errRawRSAInput = fmt.Errorf("cryptoutils: raw rsa input must be one block below the modulus: %w", interfaces.ErrInvalidParameter)

func (p *Primitives) rsaKey(cmk interfaces.KeyBlob, fn func(md interfaces.KeyMetadata, priv *rsa.PrivateKey) error) error {
	md := cmk.Metadata()
	if md.KeySpec.Family() != interfaces.FamilyRSA {
		return fmt.Errorf("keyspec %s is not rsa: %w", md.KeySpec, interfaces.ErrInvalidParameter)
	}
	return p.withKey(cmk, func(material []byte) error {
		priv, err := DecodeRSA(material, md.KeySpec.RSABits())
		if err != nil {
			return err
		}
		return fn(md, priv)
	})
}

// RSAEncrypt encrypts with the padding recorded in the key metadata. The
// output is always modulus-sized.
func (p *Primitives) RSAEncrypt(cmk interfaces.KeyBlob, plaintext []byte) ([]byte, error) {
	var out []byte
	err := p.rsaKey(cmk, func(md interfaces.KeyMetadata, priv *rsa.PrivateKey) error {
		var err error
		switch md.PaddingMode {
		case interfaces.PaddingRSAPKCS1:
			out, err = rsa.EncryptPKCS1v15(p.random, &priv.PublicKey, plaintext)
		case interfaces.PaddingRSAPKCS1OAEP:
			out, err = rsa.EncryptOAEP(sha1.New(), p.random, &priv.PublicKey, plaintext, nil)
		case interfaces.PaddingNone:
			out, err = rawRSA(plaintext, priv.E, priv.N, priv.Size())
		default:
			return fmt.Errorf("padding %s cannot encrypt: %w", md.PaddingMode, interfaces.ErrInvalidParameter)
		}
		return err
	})
	return out, err
}

// RSADecrypt reverses RSAEncrypt. With PaddingNone the recovered block is
// modulus-sized and left-padded with zeros.
func (p *Primitives) RSADecrypt(cmk interfaces.KeyBlob, ciphertext []byte) ([]byte, error) {
	var out []byte
	err := p.rsaKey(cmk, func(md interfaces.KeyMetadata, priv *rsa.PrivateKey) error {
		var err error
		switch md.PaddingMode {
		case interfaces.PaddingRSAPKCS1:
			out, err = rsa.DecryptPKCS1v15(p.random, priv, ciphertext)
		case interfaces.PaddingRSAPKCS1OAEP:
			out, err = rsa.DecryptOAEP(sha1.New(), p.random, priv, ciphertext, nil)
		case interfaces.PaddingNone:
			if len(ciphertext) != priv.Size() {
				return errRawRSAInput
			}
			c := new(big.Int).SetBytes(ciphertext)
			if c.Cmp(priv.N) >= 0 {
				return errRawRSAInput
			}
			out = c.Exp(c, priv.D, priv.N).FillBytes(make([]byte, priv.Size()))
		default:
			return fmt.Errorf("padding %s cannot decrypt: %w", md.PaddingMode, interfaces.ErrInvalidParameter)
		}
		return err
	})
	return out, err
}

// rawRSA takes exactly one modulus-sized block. Shorter inputs would come
// back left-padded from decryption and lose their length.
func rawRSA(in []byte, e int, n *big.Int, size int) ([]byte, error) {
	if len(in) != size {
		return nil, errRawRSAInput
	}
	m := new(big.Int).SetBytes(in)
	if m.Cmp(n) >= 0 {
		return nil, errRawRSAInput
	}
	return m.Exp(m, big.NewInt(int64(e)), n).FillBytes(make([]byte, size)), nil
}

// RSASign hashes data with the metadata digest and signs it with PSS when
// the padding mode asks for it, PKCS #1 v1.5 otherwise.
func (p *Primitives) RSASign(cmk interfaces.KeyBlob, data []byte) ([]byte, error) {
	var sig []byte
	err := p.rsaKey(cmk, func(md interfaces.KeyMetadata, priv *rsa.PrivateKey) error {
		hash, digest, err := rsaDigest(md, data)
		if err != nil {
			return err
		}
		if md.PaddingMode == interfaces.PaddingRSAPKCS1PSS {
			sig, err = rsa.SignPSS(p.random, priv, hash, digest, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		} else {
			sig, err = rsa.SignPKCS1v15(p.random, priv, hash, digest)
		}
		return err
	})
	return sig, err
}

func (p *Primitives) RSAVerify(cmk interfaces.KeyBlob, data, signature []byte) (bool, error) {
	var valid bool
	err := p.rsaKey(cmk, func(md interfaces.KeyMetadata, priv *rsa.PrivateKey) error {
		hash, digest, err := rsaDigest(md, data)
		if err != nil {
			return err
		}
		if md.PaddingMode == interfaces.PaddingRSAPKCS1PSS {
			valid = rsa.VerifyPSS(&priv.PublicKey, hash, digest, signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}) == nil
		} else {
			valid = rsa.VerifyPKCS1v15(&priv.PublicKey, hash, digest, signature) == nil
		}
		return nil
	})
	return valid, err
}

// rsaDigest returns the hash identifier and digest to sign. SM3 digests
// are signed without a DigestInfo prefix and are not usable with PSS.
func rsaDigest(md interfaces.KeyMetadata, data []byte) (crypto.Hash, []byte, error) {
	hash, err := digestHash(md.DigestMode)
	if err != nil {
		return 0, nil, err
	}
	if hash == 0 && md.PaddingMode == interfaces.PaddingRSAPKCS1PSS {
		return 0, nil, fmt.Errorf("pss requires a standard digest: %w", interfaces.ErrInvalidParameter)
	}
	digest, err := Digest(md.DigestMode, data)
	if err != nil {
		return 0, nil, err
	}
	return hash, digest, nil
}
