package kms

import (
	"crypto/ecdsa"
	"log/slog"
	"time"

	"github.com/ruteri/tee-kms-core/interfaces"
)

// Metrics receives one observation per entry point call.
type Metrics interface {
	ObserveOperation(op string, status interfaces.Status, elapsed time.Duration)
}

// Config holds the enclave configuration. Only SPPublicKey is required.
type Config struct {
	// SPPublicKey is the verifying party's long-term P-256 key every key
	// exchange is bound to. It is copied by New.
	SPPublicKey *ecdsa.PublicKey

	// KeyDerivation replaces the default session-key derivation.
	KeyDerivation interfaces.KeyDerivationFunc

	Log     *slog.Logger
	Metrics Metrics

	// Allocator provides scratch memory for transient plaintext. Defaults
	// to locked memguard buffers.
	Allocator interfaces.ScratchAllocator

	// Primitives overrides the primitive dispatch table. Defaults to
	// cryptoutils.Primitives sealed under the platform sealing key.
	Primitives interfaces.KeyOperations
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, interfaces.Status, time.Duration) {}
