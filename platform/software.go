package platform

import (
	"bytes"
	"crypto/aes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"slices"

	"github.com/aead/cmac"
	"github.com/awnumar/memguard"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
	"golang.org/x/crypto/hkdf"
)

// RootSecretSize is the minimum length of a software platform root secret.
const RootSecretSize = 32

const (
	sealingKeySize = 32
	reportKeySize  = 16
)

var (
	ErrRootTooShort = fmt.Errorf("platform: root secret must be at least %d bytes", RootSecretSize)
	ErrReportMAC    = errors.New("platform: report mac does not verify")
)

// Identity is the code identity a platform reports about the enclave.
type Identity struct {
	Measurement interfaces.Measurement
	Signer      interfaces.Measurement
	Attributes  [16]byte
	MiscSelect  uint32
	ProductID   uint16
	SVN         uint16
}

// Software runs the enclave core on commodity hardware. Every key it hands
// out is derived from one root secret with HKDF-SHA256:
//
//   - the sealing key is bound to the signer and product id, so any
//     enclave version from the same signer can unseal
//   - report keys are bound to the target measurement
//   - the quoting key signs native quotes
//
// Reports carry an AES-CMAC under the target's report key.
type Software struct {
	root     *memguard.LockedBuffer
	identity Identity
	random   io.Reader
	qeKey    *ecdsa.PrivateKey
}

var (
	_ interfaces.Platform              = (*Software)(nil)
	_ cryptoutils.AttestationProvider = (*Software)(nil)
)

// NewSoftware copies root into locked memory. A nil random falls back to
// crypto/rand.
func NewSoftware(root []byte, identity Identity, random io.Reader) (*Software, error) {
	if len(root) < RootSecretSize {
		return nil, ErrRootTooShort
	}
	if random == nil {
		random = rand.Reader
	}

	s := &Software{
		root:     memguard.NewBufferFromBytes(bytes.Clone(root)),
		identity: identity,
		random:   random,
	}

	qeKey, err := s.deriveQuotingKey()
	if err != nil {
		s.Destroy()
		return nil, err
	}
	s.qeKey = qeKey
	return s, nil
}

// Destroy wipes the root secret. The platform is unusable afterwards.
func (s *Software) Destroy() {
	s.root.Destroy()
}

func (s *Software) derive(size int, label string, context ...[]byte) ([]byte, error) {
	if !s.root.IsAlive() {
		return nil, errors.New("platform: root secret destroyed")
	}
	info := slices.Concat(append([][]byte{[]byte(label)}, context...)...)
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.root.Bytes(), nil, info), out); err != nil {
		return nil, fmt.Errorf("failed to derive %s: %w", label, err)
	}
	return out, nil
}

// deriveQuotingKey maps a derived seed onto a P-256 scalar in [1, n-1].
func (s *Software) deriveQuotingKey() (*ecdsa.PrivateKey, error) {
	seed, err := s.derive(40, "ehsm-quoting-key")
	if err != nil {
		return nil, err
	}
	defer cryptoutils.Wipe(seed)

	curve := elliptic.P256()
	nMinusOne := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	d := new(big.Int).SetBytes(seed)
	d.Mod(d, nMinusOne).Add(d, big.NewInt(1))

	priv := &ecdsa.PrivateKey{PublicKey: ecdsa.PublicKey{Curve: curve}, D: d}
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(d.FillBytes(make([]byte, 32)))
	return priv, nil
}

func (s *Software) ReadRand(p []byte) error {
	if _, err := io.ReadFull(s.random, p); err != nil {
		return fmt.Errorf("failed to read randomness: %w", err)
	}
	return nil
}

// SealingKey returns a fresh copy of the 32-byte sealing key.
func (s *Software) SealingKey() ([]byte, error) {
	var product [2]byte
	binary.LittleEndian.PutUint16(product[:], s.identity.ProductID)
	return s.derive(sealingKeySize, "ehsm-seal", s.identity.Signer[:], product[:])
}

func (s *Software) TargetInfo() (interfaces.TargetInfo, error) {
	return interfaces.TargetInfo{
		Measurement: s.identity.Measurement,
		Attributes:  s.identity.Attributes,
		MiscSelect:  s.identity.MiscSelect,
	}, nil
}

func (s *Software) body(data *interfaces.ReportData) *interfaces.ReportBody {
	return &interfaces.ReportBody{
		MiscSelect:  s.identity.MiscSelect,
		Attributes:  s.identity.Attributes,
		Measurement: s.identity.Measurement,
		Signer:      s.identity.Signer,
		ProductID:   s.identity.ProductID,
		SVN:         s.identity.SVN,
		ReportData:  *data,
	}
}

func (s *Software) reportMAC(target interfaces.Measurement, body *interfaces.ReportBody) ([interfaces.ReportMACSize]byte, error) {
	var mac [interfaces.ReportMACSize]byte

	key, err := s.derive(reportKeySize, "ehsm-report", target[:])
	if err != nil {
		return mac, err
	}
	defer cryptoutils.Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return mac, err
	}
	bodyBytes, err := body.MarshalBinary()
	if err != nil {
		return mac, err
	}
	sum, err := cmac.Sum(bodyBytes, block, interfaces.ReportMACSize)
	if err != nil {
		return mac, err
	}
	copy(mac[:], sum)
	return mac, nil
}

// CreateReport produces a report about this enclave that target can verify.
func (s *Software) CreateReport(target *interfaces.TargetInfo, data *interfaces.ReportData) (*interfaces.Report, error) {
	if target == nil || data == nil {
		return nil, errors.New("target info and report data are required")
	}
	report := &interfaces.Report{Body: *s.body(data)}
	if err := s.ReadRand(report.KeyID[:]); err != nil {
		return nil, err
	}
	mac, err := s.reportMAC(target.Measurement, &report.Body)
	if err != nil {
		return nil, err
	}
	report.MAC = mac
	return report, nil
}

// VerifyReport checks a report that was created for this enclave.
func (s *Software) VerifyReport(report *interfaces.Report) error {
	mac, err := s.reportMAC(s.identity.Measurement, &report.Body)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(mac[:], report.MAC[:]) != 1 {
		return ErrReportMAC
	}
	return nil
}

func (*Software) AttestationType() cryptoutils.AttestationType {
	return cryptoutils.NativeAttestation
}

// Attest returns a native quote over reportData signed by the quoting key.
func (s *Software) Attest(reportData [64]byte) ([]byte, error) {
	rd := interfaces.ReportData(reportData)
	return cryptoutils.NewNativeQuote(s.body(&rd), s.qeKey, s.random)
}

// QuotingKey is the key verifiers must trust for this platform's quotes.
func (s *Software) QuotingKey() *ecdsa.PublicKey {
	return &s.qeKey.PublicKey
}
