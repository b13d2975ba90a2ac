package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ruteri/tee-kms-core/interfaces"
)

// Native quote layout (version 3):
//
//	[header (48 bytes)][report body (384 bytes)][signature length u32][r (32)][s (32)][quoting key X (32)][quoting key Y (32)]
//
// The header starts with version u16, attestation key type u16 and tee
// type u32, all little-endian. The signature is ECDSA P-256 over
// SHA-256(header || body).
const (
	QuoteHeaderSize       = 48
	nativeQuoteVersion    = 3
	tdxQuoteVersion       = 4
	attKeyTypeECDSAP256   = 2
	nativeSignatureLength = 128
	NativeQuoteSize       = QuoteHeaderSize + interfaces.ReportBodySize + 4 + nativeSignatureLength
)

var (
	ErrQuoteFormat    = errors.New("cryptoutils: malformed quote")
	ErrQuoteSignature = errors.New("cryptoutils: quote signature does not verify")
)

// QuoteIdentity is the code identity extracted from a quote.
type QuoteIdentity struct {
	Type        AttestationType
	Measurement []byte
	Signer      []byte
	ReportData  []byte
	// QuotingKey is set for native quotes only.
	QuotingKey *ecdsa.PublicKey
}

// NewNativeQuote signs a report body with the platform quoting key.
func NewNativeQuote(body *interfaces.ReportBody, qeKey *ecdsa.PrivateKey, random io.Reader) ([]byte, error) {
	bodyBytes, err := body.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, QuoteHeaderSize, NativeQuoteSize)
	binary.LittleEndian.PutUint16(out[0:2], nativeQuoteVersion)
	binary.LittleEndian.PutUint16(out[2:4], attKeyTypeECDSAP256)
	out = append(out, bodyBytes...)

	digest := sha256.Sum256(out)
	r, s, err := ecdsa.Sign(random, qeKey, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign quote: %w", err)
	}

	out = binary.LittleEndian.AppendUint32(out, nativeSignatureLength)
	out = append(out, r.FillBytes(make([]byte, 32))...)
	out = append(out, s.FillBytes(make([]byte, 32))...)
	out = append(out, qeKey.PublicKey.X.FillBytes(make([]byte, 32))...)
	out = append(out, qeKey.PublicKey.Y.FillBytes(make([]byte, 32))...)
	return out, nil
}

// ParseQuote extracts signer, measurement and report data from a native
// or TDX quote without verifying its signature.
func ParseQuote(raw []byte) (*QuoteIdentity, error) {
	if len(raw) < QuoteHeaderSize {
		return nil, ErrQuoteFormat
	}
	switch binary.LittleEndian.Uint16(raw[0:2]) {
	case nativeQuoteVersion:
		return parseNativeQuote(raw)
	case tdxQuoteVersion:
		q, err := parseTDXQuote(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQuoteFormat, err)
		}
		return tdxIdentity(q), nil
	default:
		return nil, ErrQuoteFormat
	}
}

func parseNativeQuote(raw []byte) (*QuoteIdentity, error) {
	if len(raw) < QuoteHeaderSize+interfaces.ReportBodySize {
		return nil, ErrQuoteFormat
	}

	var body interfaces.ReportBody
	if err := body.UnmarshalBinary(raw[QuoteHeaderSize : QuoteHeaderSize+interfaces.ReportBodySize]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuoteFormat, err)
	}

	id := &QuoteIdentity{
		Type:        NativeAttestation,
		Measurement: append([]byte(nil), body.Measurement[:]...),
		Signer:      append([]byte(nil), body.Signer[:]...),
		ReportData:  append([]byte(nil), body.ReportData[:]...),
	}

	if len(raw) == NativeQuoteSize {
		sig := raw[QuoteHeaderSize+interfaces.ReportBodySize+4:]
		x := new(big.Int).SetBytes(sig[64:96])
		y := new(big.Int).SetBytes(sig[96:128])
		if elliptic.P256().IsOnCurve(x, y) {
			id.QuotingKey = &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		}
	}
	return id, nil
}

// VerifyNativeQuote parses a native quote and checks its signature against
// the trusted quoting key.
func VerifyNativeQuote(raw []byte, trusted *ecdsa.PublicKey) (*QuoteIdentity, error) {
	if len(raw) != NativeQuoteSize || binary.LittleEndian.Uint16(raw[0:2]) != nativeQuoteVersion {
		return nil, ErrQuoteFormat
	}
	id, err := parseNativeQuote(raw)
	if err != nil {
		return nil, err
	}
	if id.QuotingKey == nil || !id.QuotingKey.Equal(trusted) {
		return nil, ErrQuoteSignature
	}

	signed := QuoteHeaderSize + interfaces.ReportBodySize
	if binary.LittleEndian.Uint32(raw[signed:signed+4]) != nativeSignatureLength {
		return nil, ErrQuoteFormat
	}
	sig := raw[signed+4:]
	digest := sha256.Sum256(raw[:signed])
	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !ecdsa.Verify(trusted, digest[:], r, s) {
		return nil, ErrQuoteSignature
	}
	return id, nil
}
