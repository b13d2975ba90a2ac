package attestation

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
)

var ErrReportData = errors.New("attestation: quote is not bound to this session")

// QuoteVerifier checks a quote and returns the identity it attests to.
type QuoteVerifier func(quote []byte) (*cryptoutils.QuoteIdentity, error)

// ServiceProvider is the verifying party of the key exchange. It holds the
// long-term signing key whose public half is configured in the enclave.
type ServiceProvider struct {
	key    *ecdsa.PrivateKey
	random io.Reader
	kdf    interfaces.KeyDerivationFunc
	kdfID  uint16
}

// NewServiceProvider creates a verifying party. A nil kdf selects the
// default label derivation.
func NewServiceProvider(key *ecdsa.PrivateKey, random io.Reader, kdf interfaces.KeyDerivationFunc, kdfID uint16) *ServiceProvider {
	if random == nil {
		random = rand.Reader
	}
	if kdf == nil {
		kdf, kdfID = DefaultKeyDerivation, DefaultKDFID
	}
	return &ServiceProvider{key: key, random: random, kdf: kdf, kdfID: kdfID}
}

// PublicKey is the long-term key the enclave must be configured with.
func (sp *ServiceProvider) PublicKey() *ecdsa.PublicKey { return &sp.key.PublicKey }

// SPSession is the verifying party's view of one key exchange.
type SPSession struct {
	Ga       [PointSize]byte
	Gb       [PointSize]byte
	Keys     interfaces.SessionKeys
	Identity *cryptoutils.QuoteIdentity
}

// HandleMsg1 answers msg1 with a signed ephemeral key and derives the
// session keys.
func (sp *ServiceProvider) HandleMsg1(msg1 *Msg1) (*Msg2, *SPSession, error) {
	gaPub, err := DecodePoint(msg1.Ga)
	if err != nil {
		return nil, nil, err
	}

	ephemeral, err := ecdsa.GenerateKey(elliptic.P256(), sp.random)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	shared, err := sharedSecret(ephemeral, gaPub)
	if err != nil {
		return nil, nil, err
	}
	defer cryptoutils.Wipe(shared)

	keys, err := sp.kdf(shared, sp.kdfID)
	if err != nil {
		return nil, nil, err
	}

	msg2 := &Msg2{Gb: EncodePoint(&ephemeral.PublicKey), KDFID: sp.kdfID}
	digest := sha256.Sum256(slices.Concat(msg2.Gb[:], msg1.Ga[:]))
	r, s, err := ecdsa.Sign(sp.random, sp.key, digest[:])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign msg2: %w", err)
	}
	msg2.SigSP = encodeSignature(r, s)
	if msg2.MAC, err = CMAC(keys.SMK, msg2.macInput()); err != nil {
		return nil, nil, err
	}

	return msg2, &SPSession{Ga: msg1.Ga, Gb: msg2.Gb, Keys: keys}, nil
}

// VerifyMsg3 checks the msg3 MAC, the quote and its binding to this session.
func (s *SPSession) VerifyMsg3(msg3 *Msg3, verify QuoteVerifier) error {
	if msg3.Ga != s.Ga {
		return fmt.Errorf("%w: ga does not match msg1", ErrMessageFormat)
	}
	mac, err := CMAC(s.Keys.SMK, msg3.macInput())
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(mac[:], msg3.MAC[:]) != 1 {
		return ErrMAC
	}

	id, err := verify(msg3.Quote)
	if err != nil {
		return fmt.Errorf("quote verification failed: %w", err)
	}
	expected := SessionReportData(s.Ga, s.Gb, s.Keys.VK)
	if !bytes.Equal(id.ReportData, expected[:]) {
		return ErrReportData
	}
	s.Identity = id
	return nil
}

// AttResultMAC authenticates an attestation result message under MK.
func (s *SPSession) AttResultMAC(msg []byte) ([16]byte, error) {
	return CMAC(s.Keys.MK, msg)
}

// DecryptAPIKey opens a credential wrapped by the enclave under SK:
// ciphertext || iv (12 bytes) || tag (16 bytes).
func (s *SPSession) DecryptAPIKey(wrapped []byte) ([]byte, error) {
	return cryptoutils.OpenGCM(s.Keys.SK[:], nil, wrapped)
}
