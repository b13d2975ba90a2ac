package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/tjfoc/gmsm/sm2"
)

// Raw key material is stored in fixed-width encodings so the sealed size
// of every keyspec is known before generation:
//
//	symmetric: key bytes
//	RSA:       e (4 bytes, big-endian) | p | q   (each prime bits/16 bytes)
//	ECC, SM2:  private scalar d (curve byte size)

var ErrMalformedKey = errors.New("cryptoutils: malformed key material")

// Curve returns the elliptic curve of an ECC or SM2 keyspec.
func Curve(spec interfaces.KeySpec) (elliptic.Curve, error) {
	switch spec {
	case interfaces.KeySpecECP224:
		return elliptic.P224(), nil
	case interfaces.KeySpecECP256:
		return elliptic.P256(), nil
	case interfaces.KeySpecECP384:
		return elliptic.P384(), nil
	case interfaces.KeySpecECP521:
		return elliptic.P521(), nil
	case interfaces.KeySpecSM2:
		return sm2.P256Sm2(), nil
	default:
		return nil, fmt.Errorf("keyspec %s has no curve: %w", spec, interfaces.ErrInvalidParameter)
	}
}

func curveByteSize(c elliptic.Curve) int {
	return (c.Params().BitSize + 7) / 8
}

// RawKeySize is the length of the unsealed material for a keyspec, or 0
// when the keyspec is not supported.
func RawKeySize(spec interfaces.KeySpec) int {
	switch spec.Family() {
	case interfaces.FamilyAESGCM, interfaces.FamilySM4CTR, interfaces.FamilySM4CBC:
		return spec.SymmetricKeySize()
	case interfaces.FamilyRSA:
		return 4 + spec.RSABits()/8
	case interfaces.FamilyECC, interfaces.FamilySM2:
		c, err := Curve(spec)
		if err != nil {
			return 0
		}
		return curveByteSize(c)
	default:
		return 0
	}
}

// GenerateKeyMaterial creates fresh raw material for spec from random.
// The caller must Wipe the result.
func GenerateKeyMaterial(spec interfaces.KeySpec, random io.Reader) ([]byte, error) {
	switch spec.Family() {
	case interfaces.FamilyAESGCM, interfaces.FamilySM4CTR, interfaces.FamilySM4CBC:
		key := make([]byte, spec.SymmetricKeySize())
		if _, err := io.ReadFull(random, key); err != nil {
			return nil, fmt.Errorf("failed to read random key: %w", err)
		}
		return key, nil
	case interfaces.FamilyRSA:
		priv, err := rsa.GenerateKey(random, spec.RSABits())
		if err != nil {
			return nil, fmt.Errorf("failed to generate rsa key: %w", err)
		}
		return encodeRSA(priv, spec.RSABits())
	case interfaces.FamilyECC:
		curve, _ := Curve(spec)
		priv, err := ecdsa.GenerateKey(curve, random)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ecc key: %w", err)
		}
		return priv.D.FillBytes(make([]byte, curveByteSize(curve))), nil
	case interfaces.FamilySM2:
		priv, err := sm2.GenerateKey(random)
		if err != nil {
			return nil, fmt.Errorf("failed to generate sm2 key: %w", err)
		}
		return priv.D.FillBytes(make([]byte, 32)), nil
	default:
		return nil, fmt.Errorf("unsupported keyspec %s: %w", spec, interfaces.ErrInvalidParameter)
	}
}

func encodeRSA(priv *rsa.PrivateKey, bits int) ([]byte, error) {
	if len(priv.Primes) != 2 || priv.E < 0 || priv.E > (1<<31) {
		return nil, ErrMalformedKey
	}
	half := bits / 16
	p, q := priv.Primes[0], priv.Primes[1]
	if (p.BitLen()+7)/8 > half || (q.BitLen()+7)/8 > half {
		return nil, ErrMalformedKey
	}
	out := make([]byte, 4+2*half)
	binary.BigEndian.PutUint32(out[0:4], uint32(priv.E))
	p.FillBytes(out[4 : 4+half])
	q.FillBytes(out[4+half:])
	return out, nil
}

// DecodeRSA rebuilds an RSA private key from its fixed-width encoding.
func DecodeRSA(material []byte, bits int) (*rsa.PrivateKey, error) {
	half := bits / 16
	if bits == 0 || len(material) != 4+2*half {
		return nil, ErrMalformedKey
	}
	e := int(binary.BigEndian.Uint32(material[0:4]))
	p := new(big.Int).SetBytes(material[4 : 4+half])
	q := new(big.Int).SetBytes(material[4+half:])
	if e < 3 || p.Sign() == 0 || q.Sign() == 0 {
		return nil, ErrMalformedKey
	}

	n := new(big.Int).Mul(p, q)
	if n.BitLen() != bits {
		return nil, ErrMalformedKey
	}
	one := big.NewInt(1)
	phi := new(big.Int).Mul(new(big.Int).Sub(p, one), new(big.Int).Sub(q, one))
	d := new(big.Int).ModInverse(big.NewInt(int64(e)), phi)
	if d == nil {
		return nil, ErrMalformedKey
	}

	priv := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: e},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	priv.Precompute()
	return priv, nil
}

// DecodeECDSA rebuilds an ECDSA private key from its scalar.
func DecodeECDSA(material []byte, curve elliptic.Curve) (*ecdsa.PrivateKey, error) {
	if len(material) != curveByteSize(curve) {
		return nil, ErrMalformedKey
	}
	d := new(big.Int).SetBytes(material)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, ErrMalformedKey
	}
	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         d,
	}
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(material)
	return priv, nil
}

// DecodeSM2 rebuilds an SM2 private key from its scalar.
func DecodeSM2(material []byte) (*sm2.PrivateKey, error) {
	curve := sm2.P256Sm2()
	if len(material) != 32 {
		return nil, ErrMalformedKey
	}
	d := new(big.Int).SetBytes(material)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, ErrMalformedKey
	}
	priv := &sm2.PrivateKey{
		PublicKey: sm2.PublicKey{Curve: curve},
		D:         d,
	}
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(material)
	return priv, nil
}
