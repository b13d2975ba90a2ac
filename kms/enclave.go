package kms

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ruteri/tee-kms-core/attestation"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
)

// Enclave is the trusted key-management core. Every exported method is an
// entry point: it validates all containers before touching their payload,
// dispatches by keyspec and reports failures as errors that map to a
// fixed status through interfaces.StatusOf.
//
// Enclave holds no mutable state besides what the key exchange owns and
// is safe for concurrent use.
type Enclave struct {
	log      *slog.Logger
	metrics  Metrics
	platform interfaces.Platform
	exchange interfaces.KeyExchange
	ops      interfaces.KeyOperations
	sealer   *cryptoutils.Sealer
	alloc    interfaces.ScratchAllocator
	random   io.Reader

	spPub         *ecdsa.PublicKey
	keyDerivation interfaces.KeyDerivationFunc
}

// New creates an enclave core on top of platform. A nil exchange selects
// attestation.Exchange drawing randomness from the platform.
func New(platform interfaces.Platform, exchange interfaces.KeyExchange, cfg Config) (*Enclave, error) {
	if platform == nil {
		return nil, errors.New("platform is required")
	}
	if cfg.SPPublicKey == nil || cfg.SPPublicKey.Curve != elliptic.P256() {
		return nil, errors.New("verifying party public key must be a P-256 key")
	}

	e := &Enclave{
		log:      cfg.Log,
		metrics:  cfg.Metrics,
		platform: platform,
		exchange: exchange,
		ops:      cfg.Primitives,
		alloc:    cfg.Allocator,
		random:   platformReader{platform},
		spPub: &ecdsa.PublicKey{
			Curve: cfg.SPPublicKey.Curve,
			X:     new(big.Int).Set(cfg.SPPublicKey.X),
			Y:     new(big.Int).Set(cfg.SPPublicKey.Y),
		},
		keyDerivation: cfg.KeyDerivation,
	}
	if e.log == nil {
		e.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.alloc == nil {
		e.alloc = LockedAllocator{}
	}
	if e.exchange == nil {
		e.exchange = attestation.NewExchange(e.log, e.random)
	}

	sealingKey, err := platform.SealingKey()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain sealing key: %w", err)
	}
	defer cryptoutils.Wipe(sealingKey)

	e.sealer, err = cryptoutils.NewSealer(sealingKey, e.random)
	if err != nil {
		return nil, err
	}
	if e.ops == nil {
		e.ops = cryptoutils.NewPrimitives(e.sealer, e.random)
	}
	return e, nil
}

// platformReader adapts the platform random source to io.Reader.
type platformReader struct {
	p interfaces.Platform
}

func (r platformReader) Read(b []byte) (int, error) {
	if err := r.p.ReadRand(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// track starts timing an entry point. The returned func records the
// outcome and is deferred with the named error result:
//
//	defer e.track("encrypt")(&err)
func (e *Enclave) track(op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		err := *errp
		status := interfaces.StatusOf(err)
		e.metrics.ObserveOperation(op, status, time.Since(start))
		if err != nil {
			e.log.Debug("operation failed", "op", op, "status", status.String(), "err", err)
		}
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), interfaces.ErrInvalidParameter)
}

// checkKey validates a key blob used for an operation: exact container
// size, non-empty sealed payload and internal origin.
func checkKey(cmk interfaces.KeyBlob) error {
	if !cmk.SizeValid() {
		return invalidf("key blob size does not match declared length")
	}
	if cmk.DeclaredLen() == 0 {
		return invalidf("key blob is empty")
	}
	if origin := cmk.Metadata().Origin; origin != interfaces.OriginInternal {
		return invalidf("key origin %s is not allowed", origin)
	}
	return nil
}

// checkData validates a required data container.
func checkData(name string, d interfaces.Data) error {
	if !d.SizeValid() {
		return invalidf("%s size does not match declared length", name)
	}
	return nil
}

// checkAAD accepts either no AAD at all or a size-consistent container.
func checkAAD(aad interfaces.Data) error {
	if aad == nil {
		return nil
	}
	return checkData("aad", aad)
}

// writeOutput copies produced bytes into an output container whose
// declared length is its capacity, then declares the produced length.
func writeOutput(dst interfaces.Data, produced []byte) error {
	if uint64(len(produced)) > uint64(dst.Len()) {
		return invalidf("output buffer too small: %d < %d", dst.Len(), len(produced))
	}
	payload := dst.Payload()
	n := copy(payload, produced)
	clear(payload[n:])
	dst.SetLen(uint32(n))
	return nil
}
