package attestation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
	"go.uber.org/atomic"
)

var (
	ErrUnknownContext   = errors.New("attestation: unknown context")
	ErrKeysNotDerived   = errors.New("attestation: session keys not derived yet")
	ErrPlatformServices = errors.New("attestation: platform services are not available")
	ErrSignature        = errors.New("attestation: verifying party signature does not verify")
	ErrMAC              = errors.New("attestation: message mac does not verify")
)

type session struct {
	spPub *ecdsa.PublicKey
	kdf   interfaces.KeyDerivationFunc
	priv  *ecdsa.PrivateKey

	// set once msg2 has been processed
	gb      [PointSize]byte
	keys    interfaces.SessionKeys
	derived bool
}

// Exchange is the enclave side of the key exchange. It owns every open
// context; handles are never reused within one Exchange.
type Exchange struct {
	log    *slog.Logger
	random io.Reader

	mu       sync.RWMutex
	sessions map[interfaces.RAContext]*session
	next     atomic.Uint32
}

var _ interfaces.KeyExchange = (*Exchange)(nil)

// NewExchange creates an empty context store. A nil random falls back to
// crypto/rand.
func NewExchange(log *slog.Logger, random io.Reader) *Exchange {
	if random == nil {
		random = rand.Reader
	}
	return &Exchange{
		log:      log,
		random:   random,
		sessions: make(map[interfaces.RAContext]*session),
	}
}

// Init opens a context bound to the verifying party's long-term key and
// generates the enclave's ephemeral key pair. Platform services sessions
// are not supported.
func (e *Exchange) Init(spPub *ecdsa.PublicKey, pse bool, kdf interfaces.KeyDerivationFunc) (interfaces.RAContext, error) {
	if spPub == nil || spPub.Curve != elliptic.P256() {
		return 0, fmt.Errorf("verifying party key must be P-256: %w", interfaces.ErrInvalidParameter)
	}
	if pse {
		return 0, ErrPlatformServices
	}
	if kdf == nil {
		kdf = DefaultKeyDerivation
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), e.random)
	if err != nil {
		return 0, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	ctx := interfaces.RAContext(e.next.Inc())

	e.mu.Lock()
	e.sessions[ctx] = &session{spPub: spPub, kdf: kdf, priv: priv}
	e.mu.Unlock()

	e.log.Debug("key exchange context opened", "context", ctx)
	return ctx, nil
}

func (e *Exchange) session(ctx interfaces.RAContext) (*session, error) {
	s, ok := e.sessions[ctx]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContext, ctx)
	}
	return s, nil
}

// Msg1 returns the enclave's ephemeral public key for the context.
func (e *Exchange) Msg1(ctx interfaces.RAContext) (*Msg1, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, err := e.session(ctx)
	if err != nil {
		return nil, err
	}
	return &Msg1{Ga: EncodePoint(&s.priv.PublicKey)}, nil
}

// ProcessMsg2 checks the verifying party's signature over Gb || Ga,
// derives the session keys, checks the msg2 MAC under SMK and produces
// msg3 with a quote from attester.
func (e *Exchange) ProcessMsg2(ctx interfaces.RAContext, msg2 *Msg2, attester cryptoutils.AttestationProvider) (*Msg3, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(ctx)
	if err != nil {
		return nil, err
	}
	if s.derived {
		return nil, fmt.Errorf("msg2 already processed for context %d: %w", ctx, interfaces.ErrInvalidParameter)
	}

	gbPub, err := DecodePoint(msg2.Gb)
	if err != nil {
		return nil, err
	}
	ga := EncodePoint(&s.priv.PublicKey)

	digest := sha256.Sum256(slices.Concat(msg2.Gb[:], ga[:]))
	r, sigS := decodeSignature(msg2.SigSP)
	if !ecdsa.Verify(s.spPub, digest[:], r, sigS) {
		return nil, ErrSignature
	}

	shared, err := sharedSecret(s.priv, gbPub)
	if err != nil {
		return nil, err
	}
	defer cryptoutils.Wipe(shared)

	keys, err := s.kdf(shared, msg2.KDFID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive session keys: %w", err)
	}

	mac, err := CMAC(keys.SMK, msg2.macInput())
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(mac[:], msg2.MAC[:]) != 1 {
		return nil, ErrMAC
	}

	msg3 := &Msg3{Ga: ga}
	msg3.Quote, err = attester.Attest(SessionReportData(ga, msg2.Gb, keys.VK))
	if err != nil {
		return nil, fmt.Errorf("failed to produce quote: %w", err)
	}
	if msg3.MAC, err = CMAC(keys.SMK, msg3.macInput()); err != nil {
		return nil, err
	}

	s.gb = msg2.Gb
	s.keys = keys
	s.derived = true
	e.log.Debug("key exchange session keys derived", "context", ctx)
	return msg3, nil
}

// GetKey returns one derived session key. It is safe for concurrent use.
func (e *Exchange) GetKey(ctx interfaces.RAContext, keyType interfaces.RAKeyType) ([16]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, err := e.session(ctx)
	if err != nil {
		return [16]byte{}, err
	}
	if !s.derived {
		return [16]byte{}, ErrKeysNotDerived
	}
	key, ok := s.keys.Get(keyType)
	if !ok {
		return [16]byte{}, fmt.Errorf("unknown key type %s: %w", keyType, interfaces.ErrInvalidParameter)
	}
	return key, nil
}

// Close forgets the context and wipes its keys.
func (e *Exchange) Close(ctx interfaces.RAContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(ctx)
	if err != nil {
		return err
	}
	s.keys = interfaces.SessionKeys{}
	s.priv = nil
	delete(e.sessions, ctx)
	e.log.Debug("key exchange context closed", "context", ctx)
	return nil
}

// SessionReportData binds a quote to one key exchange.
func SessionReportData(ga, gb [PointSize]byte, vk [16]byte) [64]byte {
	var rd [64]byte
	sum := sha256.Sum256(slices.Concat(ga[:], gb[:], vk[:]))
	copy(rd[:], sum[:])
	return rd
}

// sharedSecret returns the ECDH shared x coordinate in little-endian order.
func sharedSecret(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	ecdhPriv, err := priv.ECDH()
	if err != nil {
		return nil, err
	}
	ecdhPub, err := pub.ECDH()
	if err != nil {
		return nil, err
	}
	shared, err := ecdhPriv.ECDH(ecdhPub)
	if err != nil {
		return nil, err
	}
	slices.Reverse(shared)
	return shared, nil
}
