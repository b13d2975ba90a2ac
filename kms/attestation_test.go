package kms

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ruteri/tee-kms-core/attestation"
	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/stretchr/testify/require"
)

type nativeQuoter struct {
	key  *ecdsa.PrivateKey
	body interfaces.ReportBody
}

func newNativeQuoter(t *testing.T) *nativeQuoter {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	q := &nativeQuoter{key: key}
	for i := range q.body.Measurement {
		q.body.Measurement[i] = byte(i)
		q.body.Signer[i] = byte(0xf0 - i)
	}
	return q
}

func (*nativeQuoter) AttestationType() cryptoutils.AttestationType {
	return cryptoutils.NativeAttestation
}

func (q *nativeQuoter) Attest(reportData [64]byte) ([]byte, error) {
	body := q.body
	body.ReportData = reportData
	return cryptoutils.NewNativeQuote(&body, q.key, rand.Reader)
}

// attest runs a full key exchange against the verifying party.
func (te *testEnclave) attest(t *testing.T) (interfaces.RAContext, *attestation.SPSession) {
	t.Helper()
	ctx, err := te.InitRA(false)
	require.NoError(t, err)

	msg1, err := te.exchange.Msg1(ctx)
	require.NoError(t, err)
	msg2, session, err := te.sp.HandleMsg1(msg1)
	require.NoError(t, err)

	qe := newNativeQuoter(t)
	msg3, err := te.exchange.ProcessMsg2(ctx, msg2, qe)
	require.NoError(t, err)
	require.NoError(t, session.VerifyMsg3(msg3, func(quote []byte) (*cryptoutils.QuoteIdentity, error) {
		return cryptoutils.VerifyNativeQuote(quote, &qe.key.PublicKey)
	}))
	return ctx, session
}

func TestInitRA(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))

	a, err := te.InitRA(false)
	require.NoError(t, err)
	b, err := te.InitRA(false)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = te.InitRA(true)
	requireStatus(t, interfaces.StatusUnexpected, err)
}

func TestGenerateAPIKey(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))
	ctx, session := te.attest(t)

	for _, n := range []int{1, 16, APIKeySize} {
		apikey := make([]byte, n)
		cipher := make([]byte, APIKeyCipherMinSize)
		require.NoError(t, te.GenerateAPIKey(ctx, apikey, cipher))

		for _, c := range apikey {
			require.True(t, strings.IndexByte(apiKeyAlphabet, c) >= 0, "character %q", c)
		}

		opened, err := session.DecryptAPIKey(cipher[:n+cryptoutils.GCMIVSize+cryptoutils.GCMTagSize])
		require.NoError(t, err)
		require.Equal(t, apikey, opened)
	}
	te.alloc.requireScrubbed(t, 3)
}

func TestGenerateAPIKeyValidation(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))
	ctx, _ := te.attest(t)

	err := te.GenerateAPIKey(ctx, make([]byte, APIKeySize+1), make([]byte, 128))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
	err = te.GenerateAPIKey(ctx, nil, make([]byte, 128))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)
	err = te.GenerateAPIKey(ctx, make([]byte, APIKeySize), make([]byte, APIKeyCipherMinSize-1))
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	// A context without derived keys leaves nothing behind.
	fresh, err := te.InitRA(false)
	require.NoError(t, err)
	apikey := make([]byte, APIKeySize)
	err = te.GenerateAPIKey(fresh, apikey, make([]byte, APIKeyCipherMinSize))
	require.ErrorIs(t, err, attestation.ErrKeysNotDerived)
	require.Equal(t, make([]byte, APIKeySize), apikey)
	te.alloc.requireScrubbed(t, 1)
}

func TestGetAPIKey(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))

	a := make([]byte, APIKeySize)
	require.NoError(t, te.GetAPIKey(a))
	b := make([]byte, APIKeySize)
	require.NoError(t, te.GetAPIKey(b))
	require.NotEqual(t, a, b)
	for _, c := range a {
		require.Contains(t, apiKeyAlphabet, string(c))
	}

	require.ErrorIs(t, te.GetAPIKey(make([]byte, APIKeySize-1)), interfaces.ErrInvalidParameter)

	te.platform.FailRand(errRandUnavailable)
	requireStatus(t, interfaces.StatusUnexpected, te.GetAPIKey(a))
	require.Equal(t, make([]byte, APIKeySize), a)
	te.alloc.requireScrubbed(t, 3)
}

func TestAPIKeyAlphabet(t *testing.T) {
	require.Len(t, apiKeyAlphabet, 58)
	require.Equal(t, 232, apiKeyRejectFrom)
	require.NotContains(t, apiKeyAlphabet, "I")
	require.NotContains(t, apiKeyAlphabet, "O")
	require.NotContains(t, apiKeyAlphabet, "l")
	require.NotContains(t, apiKeyAlphabet, "o")
}

func TestVerifyAttResultMAC(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))
	ctx, session := te.attest(t)

	msg := []byte("attestation result: trusted")
	mac, err := session.AttResultMAC(msg)
	require.NoError(t, err)

	require.NoError(t, te.VerifyAttResultMAC(ctx, msg, mac[:]))

	err = te.VerifyAttResultMAC(ctx, msg, mac[:15])
	requireStatus(t, interfaces.StatusInvalidParameter, err)
	err = te.VerifyAttResultMAC(ctx, msg, append(mac[:], 0))
	requireStatus(t, interfaces.StatusInvalidParameter, err)

	bad := mac
	bad[15] ^= 0x01
	err = te.VerifyAttResultMAC(ctx, msg, bad[:])
	requireStatus(t, interfaces.StatusMACMismatch, err)

	err = te.VerifyAttResultMAC(ctx, []byte("attestation result: untrusted"), mac[:])
	requireStatus(t, interfaces.StatusMACMismatch, err)

	// The SK session key is not the MAC key.
	skMAC, err := attestation.CMAC(session.Keys.SK, msg)
	require.NoError(t, err)
	err = te.VerifyAttResultMAC(ctx, msg, skMAC[:])
	requireStatus(t, interfaces.StatusMACMismatch, err)

	err = te.VerifyAttResultMAC(ctx+100, msg, mac[:])
	require.ErrorIs(t, err, attestation.ErrUnknownContext)
}

func TestVerifyQuotePolicy(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))
	qe := newNativeQuoter(t)
	quote, err := qe.Attest([64]byte{})
	require.NoError(t, err)

	signer := hex.EncodeToString(qe.body.Signer[:])
	measurement := hex.EncodeToString(qe.body.Measurement[:])
	require.Len(t, measurement, 2*interfaces.MeasurementSize)

	require.NoError(t, te.VerifyQuotePolicy(quote, signer, measurement))

	flip := func(s string, i int) string {
		b := []byte(s)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		return string(b)
	}

	cases := map[string][2]string{
		"short signer":        {signer[:63], measurement},
		"long measurement":    {signer, measurement + "0"},
		"signer differs":      {flip(signer, 10), measurement},
		"measurement differs": {signer, flip(measurement, 63)},
		"uppercase":           {strings.ToUpper(signer), measurement},
		"swapped":             {measurement, signer},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := te.VerifyQuotePolicy(quote, tc[0], tc[1])
			requireStatus(t, interfaces.StatusUnexpected, err)
		})
	}

	requireStatus(t, interfaces.StatusInvalidParameter, te.VerifyQuotePolicy(nil, signer, measurement))
	requireStatus(t, interfaces.StatusInvalidParameter, te.VerifyQuotePolicy(quote[:40], signer, measurement))
}

func TestReportsAndRandomness(t *testing.T) {
	te := newTestEnclave(t, strictOps(t))

	ti, err := te.GetTargetInfo()
	require.NoError(t, err)
	require.Equal(t, byte(0x5a), ti.Measurement[0])

	_, err = te.CreateReport(nil)
	require.ErrorIs(t, err, interfaces.ErrInvalidParameter)

	report, err := te.CreateReport(&ti)
	require.NoError(t, err)
	require.Equal(t, interfaces.ReportData{}, report.Body.ReportData)

	require.ErrorIs(t, te.GetRand(nil), interfaces.ErrInvalidParameter)
	buf := make([]byte, 48)
	require.NoError(t, te.GetRand(buf))
	require.NotEqual(t, make([]byte, 48), buf)

	te.platform.FailRand(errRandUnavailable)
	requireStatus(t, interfaces.StatusUnexpected, te.GetRand(buf))
}
