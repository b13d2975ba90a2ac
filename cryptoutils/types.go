package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// Pubkey is a P-256 public key in PEM format, used for the verifying
// party's long-term key and administrator share-signing keys.
type Pubkey []byte

// NewPubkey creates a public key object from PEM-encoded data with validation.
func NewPubkey(data []byte) (Pubkey, error) {
	if _, err := Pubkey(data).ECDSA(); err != nil {
		return nil, err
	}
	return Pubkey(data), nil
}

// Validate checks if the public key is properly formed.
func (pub Pubkey) Validate() error {
	_, err := pub.ECDSA()
	return err
}

// ECDSA returns the parsed P-256 public key.
func (pub Pubkey) ECDSA() (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pub)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.New("invalid public key: not in PEM format or not a public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid public key structure: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok || ecKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unsupported public key type: %T", key)
	}
	return ecKey, nil
}

// Privkey is a P-256 private key in PEM format.
type Privkey []byte

// NewPrivkey creates a private key object from PEM-encoded data with validation.
func NewPrivkey(data []byte) (Privkey, error) {
	if _, err := Privkey(data).ECDSA(); err != nil {
		return nil, err
	}
	return Privkey(data), nil
}

// ECDSA returns the parsed P-256 private key. Both PKCS #8 and SEC 1
// encodings are accepted.
func (priv Privkey) ECDSA() (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(priv)
	if block == nil || (block.Type != "PRIVATE KEY" && block.Type != "EC PRIVATE KEY") {
		return nil, errors.New("invalid private key: not in PEM format or not a private key")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		parsed, err = x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid private key structure: %w", err)
		}
	}

	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unsupported private key type: %T", parsed)
	}
	return key, nil
}

// MarshalPubkey encodes a public key as PEM.
func MarshalPubkey(key *ecdsa.PublicKey) (Pubkey, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// MarshalPrivkey encodes a private key as SEC 1 PEM.
func MarshalPrivkey(key *ecdsa.PrivateKey) (Privkey, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

func RandomP256Keypair() (Pubkey, Privkey, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	privateKeyPEM, err := MarshalPrivkey(privateKey)
	if err != nil {
		return nil, nil, err
	}

	pubkeyPEM, err := MarshalPubkey(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	return pubkeyPEM, privateKeyPEM, nil
}
