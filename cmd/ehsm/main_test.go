package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/tee-kms-core/attestation"
	"github.com/ruteri/tee-kms-core/common"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/ruteri/tee-kms-core/kms"
	"github.com/ruteri/tee-kms-core/metrics"
	"github.com/ruteri/tee-kms-core/platform"
	"github.com/stretchr/testify/require"
)

func newTestEnclave(t *testing.T, spPub *ecdsa.PublicKey) *enclave {
	t.Helper()
	p, err := platform.New(platform.Config{Root: bytes.Repeat([]byte{7}, platform.RootSecretSize)})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()
	exchange := attestation.NewExchange(logger, nil)
	core, err := kms.New(p, exchange, kms.Config{
		SPPublicKey: spPub,
		Log:         logger,
		Metrics:     metrics.NewMetrics(common.PackageName, registry),
	})
	require.NoError(t, err)

	e := &enclave{Enclave: core, log: logger, platform: p, exchange: exchange, registry: registry}
	t.Cleanup(e.Close)
	return e
}

func TestSelfTest(t *testing.T) {
	spKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	e := newTestEnclave(t, &spKey.PublicKey)

	require.NoError(t, selfTest(e))
	count, err := testutil.GatherAndCount(e.registry, "ehsm_operations_total")
	require.NoError(t, err)
	// create_key, encrypt and decrypt, each called twice with one status
	require.Equal(t, 3, count)
}

func TestTwoPhaseTrimsOutput(t *testing.T) {
	out, err := twoPhase(func(d interfaces.Data) error {
		if d.Len() == 0 {
			d.SetLen(8)
			return nil
		}
		copy(d.Payload(), "abc")
		d.SetLen(3)
		return nil
	})
	require.NoError(t, err)
	require.True(t, out.SizeValid())
	require.Equal(t, []byte("abc"), out.Payload())

	_, err = twoPhase(func(interfaces.Data) error { return interfaces.ErrInvalidParameter })
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
}

func TestStatusError(t *testing.T) {
	require.NoError(t, statusError("encrypt", nil))
	err := statusError("decrypt", interfaces.ErrMACMismatch)
	require.ErrorIs(t, err, interfaces.ErrMACMismatch)
	require.Contains(t, err.Error(), interfaces.StatusMACMismatch.String())
}

func TestQuoteVerifierNative(t *testing.T) {
	spKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	e := newTestEnclave(t, &spKey.PublicKey)

	ctx, err := e.InitRA(false)
	require.NoError(t, err)
	msg1, err := e.exchange.Msg1(ctx)
	require.NoError(t, err)
	msg2, session, err := attestation.NewServiceProvider(spKey, nil, nil, 0).HandleMsg1(msg1)
	require.NoError(t, err)
	msg3, err := e.exchange.ProcessMsg2(ctx, msg2, e.platform)
	require.NoError(t, err)
	require.NoError(t, session.VerifyMsg3(msg3, quoteVerifier(e)))
	require.Equal(t, cryptoutils.NativeAttestation, session.Identity.Type)

	// a quote signed by another platform's quoting key is rejected
	other := newTestEnclave(t, &spKey.PublicKey)
	other.platform, err = platform.New(platform.Config{Root: bytes.Repeat([]byte{8}, platform.RootSecretSize)})
	require.NoError(t, err)
	_, err = quoteVerifier(other)(msg3.Quote)
	require.Error(t, err)
}
