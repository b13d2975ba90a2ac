package attestation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"slices"
)

// Wire formats. Curve coordinates and signature scalars are 32-byte
// little-endian integers, so a public key is x || y (64 bytes) and a
// signature is r || s (64 bytes).
//
//	msg1: Ga (64)
//	msg2: Gb (64) | kdf id u16 | SigSP (64) | MAC (16)
//	msg3: MAC (16) | Ga (64) | quote length u32 | quote
const (
	PointSize     = 64
	SignatureSize = 64
	MACSize       = 16
	Msg1Size      = PointSize
	Msg2Size      = PointSize + 2 + SignatureSize + MACSize
)

var ErrMessageFormat = errors.New("attestation: malformed message")

// Msg1 carries the enclave's ephemeral public key.
type Msg1 struct {
	Ga [PointSize]byte
}

func (m *Msg1) MarshalBinary() ([]byte, error) { return slices.Clone(m.Ga[:]), nil }

func (m *Msg1) UnmarshalBinary(b []byte) error {
	if len(b) != Msg1Size {
		return ErrMessageFormat
	}
	copy(m.Ga[:], b)
	return nil
}

// Msg2 carries the verifying party's ephemeral key, signed with its
// long-term key over Gb || Ga, and a MAC under SMK.
type Msg2 struct {
	Gb    [PointSize]byte
	KDFID uint16
	SigSP [SignatureSize]byte
	MAC   [MACSize]byte
}

// macInput is the part of msg2 covered by its MAC.
func (m *Msg2) macInput() []byte {
	out := make([]byte, 0, PointSize+2+SignatureSize)
	out = append(out, m.Gb[:]...)
	out = binary.LittleEndian.AppendUint16(out, m.KDFID)
	return append(out, m.SigSP[:]...)
}

func (m *Msg2) MarshalBinary() ([]byte, error) {
	return append(m.macInput(), m.MAC[:]...), nil
}

func (m *Msg2) UnmarshalBinary(b []byte) error {
	if len(b) != Msg2Size {
		return ErrMessageFormat
	}
	copy(m.Gb[:], b[:PointSize])
	m.KDFID = binary.LittleEndian.Uint16(b[PointSize:])
	copy(m.SigSP[:], b[PointSize+2:])
	copy(m.MAC[:], b[PointSize+2+SignatureSize:])
	return nil
}

// Msg3 carries a quote whose report data binds the session to the
// enclave identity: SHA-256(Ga || Gb || VK) followed by 32 zero bytes.
type Msg3 struct {
	MAC   [MACSize]byte
	Ga    [PointSize]byte
	Quote []byte
}

func (m *Msg3) macInput() []byte {
	out := make([]byte, 0, PointSize+len(m.Quote))
	out = append(out, m.Ga[:]...)
	return append(out, m.Quote...)
}

func (m *Msg3) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, MACSize+PointSize+4+len(m.Quote))
	out = append(out, m.MAC[:]...)
	out = append(out, m.Ga[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(m.Quote)))
	return append(out, m.Quote...), nil
}

func (m *Msg3) UnmarshalBinary(b []byte) error {
	if len(b) < MACSize+PointSize+4 {
		return ErrMessageFormat
	}
	n := binary.LittleEndian.Uint32(b[MACSize+PointSize:])
	rest := b[MACSize+PointSize+4:]
	if uint64(len(rest)) != uint64(n) {
		return ErrMessageFormat
	}
	copy(m.MAC[:], b[:MACSize])
	copy(m.Ga[:], b[MACSize:])
	m.Quote = slices.Clone(rest)
	return nil
}

func leBytes(v *big.Int) []byte {
	b := v.FillBytes(make([]byte, 32))
	slices.Reverse(b)
	return b
}

func leInt(b []byte) *big.Int {
	be := slices.Clone(b)
	slices.Reverse(be)
	return new(big.Int).SetBytes(be)
}

// EncodePoint encodes a P-256 public key as little-endian x || y.
func EncodePoint(pub *ecdsa.PublicKey) (out [PointSize]byte) {
	copy(out[:32], leBytes(pub.X))
	copy(out[32:], leBytes(pub.Y))
	return out
}

// DecodePoint parses a P-256 public key and checks it is on the curve.
func DecodePoint(b [PointSize]byte) (*ecdsa.PublicKey, error) {
	x, y := leInt(b[:32]), leInt(b[32:])
	if !elliptic.P256().IsOnCurve(x, y) {
		return nil, fmt.Errorf("%w: point not on curve", ErrMessageFormat)
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

func encodeSignature(r, s *big.Int) (out [SignatureSize]byte) {
	copy(out[:32], leBytes(r))
	copy(out[32:], leBytes(s))
	return out
}

func decodeSignature(b [SignatureSize]byte) (r, s *big.Int) {
	return leInt(b[:32]), leInt(b[32:])
}
