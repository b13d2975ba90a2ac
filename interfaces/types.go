// Package interfaces defines the data model shared by the enclave core and
// the injected capabilities it depends on.
package interfaces

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
)

// Sizes of the native report structures.
const (
	MeasurementSize = 32
	ReportDataSize  = 64
	ReportBodySize  = 384
	ReportKeyIDSize = 32
	ReportMACSize   = 16
	ReportSize      = ReportBodySize + ReportKeyIDSize + ReportMACSize
	TargetInfoSize  = 512
)

// Offsets of the identity fields inside a report body.
const (
	offCPUSVN      = 0
	offMiscSelect  = 16
	offAttributes  = 48
	offMeasurement = 64
	offSigner      = 128
	offProductID   = 256
	offSVN         = 258
	offReportData  = 320
)

// Measurement is a 32-byte code identity (enclave measurement or signer hash).
type Measurement [MeasurementSize]byte

// ReportData is caller-chosen data bound into a report.
type ReportData [ReportDataSize]byte

// TargetInfo identifies the enclave a report is destined for.
type TargetInfo struct {
	Measurement Measurement
	Attributes  [16]byte
	MiscSelect  uint32
}

// MarshalBinary encodes the target info into its 512-byte form.
func (t *TargetInfo) MarshalBinary() ([]byte, error) {
	out := make([]byte, TargetInfoSize)
	copy(out[0:32], t.Measurement[:])
	copy(out[32:48], t.Attributes[:])
	binary.LittleEndian.PutUint32(out[52:56], t.MiscSelect)
	return out, nil
}

// UnmarshalBinary decodes the 512-byte form produced by MarshalBinary.
func (t *TargetInfo) UnmarshalBinary(b []byte) error {
	if len(b) != TargetInfoSize {
		return fmt.Errorf("target info must be %d bytes, got %d", TargetInfoSize, len(b))
	}
	copy(t.Measurement[:], b[0:32])
	copy(t.Attributes[:], b[32:48])
	t.MiscSelect = binary.LittleEndian.Uint32(b[52:56])
	return nil
}

// ReportBody holds the identity fields of an integrity report.
type ReportBody struct {
	CPUSVN      [16]byte
	MiscSelect  uint32
	Attributes  [16]byte
	Measurement Measurement
	Signer      Measurement
	ProductID   uint16
	SVN         uint16
	ReportData  ReportData
}

// MarshalBinary encodes the body into the fixed 384-byte layout.
func (b *ReportBody) MarshalBinary() ([]byte, error) {
	out := make([]byte, ReportBodySize)
	copy(out[offCPUSVN:], b.CPUSVN[:])
	binary.LittleEndian.PutUint32(out[offMiscSelect:], b.MiscSelect)
	copy(out[offAttributes:], b.Attributes[:])
	copy(out[offMeasurement:], b.Measurement[:])
	copy(out[offSigner:], b.Signer[:])
	binary.LittleEndian.PutUint16(out[offProductID:], b.ProductID)
	binary.LittleEndian.PutUint16(out[offSVN:], b.SVN)
	copy(out[offReportData:], b.ReportData[:])
	return out, nil
}

// UnmarshalBinary decodes a body from the first 384 bytes of data.
func (b *ReportBody) UnmarshalBinary(data []byte) error {
	if len(data) < ReportBodySize {
		return errors.New("report body too short")
	}
	copy(b.CPUSVN[:], data[offCPUSVN:])
	b.MiscSelect = binary.LittleEndian.Uint32(data[offMiscSelect:])
	copy(b.Attributes[:], data[offAttributes:])
	copy(b.Measurement[:], data[offMeasurement:])
	copy(b.Signer[:], data[offSigner:])
	b.ProductID = binary.LittleEndian.Uint16(data[offProductID:])
	b.SVN = binary.LittleEndian.Uint16(data[offSVN:])
	copy(b.ReportData[:], data[offReportData:offReportData+ReportDataSize])
	return nil
}

// Report is a locally verifiable integrity report: a body authenticated by
// a MAC under the report key of the target enclave.
type Report struct {
	Body  ReportBody
	KeyID [ReportKeyIDSize]byte
	MAC   [ReportMACSize]byte
}

// MarshalBinary encodes the body followed by the key id and MAC.
func (r *Report) MarshalBinary() ([]byte, error) {
	body, err := r.Body.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, ReportSize)
	out = append(out, body...)
	out = append(out, r.KeyID[:]...)
	out = append(out, r.MAC[:]...)
	return out, nil
}

// UnmarshalBinary decodes a report of exactly ReportSize bytes.
func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) != ReportSize {
		return fmt.Errorf("report must be %d bytes, got %d", ReportSize, len(data))
	}
	if err := r.Body.UnmarshalBinary(data[:ReportBodySize]); err != nil {
		return err
	}
	copy(r.KeyID[:], data[ReportBodySize:ReportBodySize+ReportKeyIDSize])
	copy(r.MAC[:], data[ReportBodySize+ReportKeyIDSize:])
	return nil
}

// Platform is the hardware trust capability the enclave core runs on:
// randomness, sealing and integrity reports. Implementations live in the
// platform package.
type Platform interface {
	// ReadRand fills p from the platform random source.
	ReadRand(p []byte) error
	// SealingKey returns the 32-byte key bound to this enclave's identity.
	SealingKey() ([]byte, error)
	// TargetInfo describes this enclave as a report target.
	TargetInfo() (TargetInfo, error)
	// CreateReport produces a report about this enclave for the target.
	CreateReport(target *TargetInfo, data *ReportData) (*Report, error)
}

// RAContext is an opaque handle to one key-exchange session.
type RAContext uint32

// RAKeyType selects one of the session keys derived by a key exchange.
type RAKeyType int

const (
	RAKeySMK RAKeyType = iota
	RAKeySK
	RAKeyMK
	RAKeyVK
)

func (t RAKeyType) String() string {
	switch t {
	case RAKeySMK:
		return "SMK"
	case RAKeySK:
		return "SK"
	case RAKeyMK:
		return "MK"
	case RAKeyVK:
		return "VK"
	default:
		return fmt.Sprintf("RAKeyType(%d)", int(t))
	}
}

// SessionKeys are the 128-bit keys derived from one key exchange.
type SessionKeys struct {
	SMK [16]byte
	SK  [16]byte
	MK  [16]byte
	VK  [16]byte
}

// Get returns the key of the given type.
func (k *SessionKeys) Get(t RAKeyType) ([16]byte, bool) {
	switch t {
	case RAKeySMK:
		return k.SMK, true
	case RAKeySK:
		return k.SK, true
	case RAKeyMK:
		return k.MK, true
	case RAKeyVK:
		return k.VK, true
	}
	return [16]byte{}, false
}

// KeyDerivationFunc replaces the default session-key derivation. It
// receives the little-endian shared x coordinate and the kdf id sent by the
// verifying party.
type KeyDerivationFunc func(shared []byte, kdfID uint16) (SessionKeys, error)

// KeyExchange is the trusted key-exchange library the attestation entry
// points are built on. GetKey must be safe to call concurrently.
type KeyExchange interface {
	Init(spPub *ecdsa.PublicKey, pse bool, kdf KeyDerivationFunc) (RAContext, error)
	GetKey(ctx RAContext, keyType RAKeyType) ([16]byte, error)
	Close(ctx RAContext) error
}
