package httpserver

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ruteri/tee-kms-core/cryptoutils"
	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/ruteri/tee-kms-core/platform"
	"github.com/stretchr/testify/require"
)

type failingProvider struct{}

func (failingProvider) AttestationType() cryptoutils.AttestationType {
	return cryptoutils.DCAPAttestation
}

func (failingProvider) Attest([64]byte) ([]byte, error) {
	return nil, errors.New("no quoting device")
}

func newTestServer(t *testing.T, quotes *QuoteHandler, admin *AdminHandler) *httptest.Server {
	t.Helper()
	srv, err := New(&HTTPServerConfig{Log: testLogger()}, quotes, admin)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (int, []byte, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body, resp.Header
}

func TestNewRequiresHandler(t *testing.T) {
	_, err := New(&HTTPServerConfig{Log: testLogger()}, nil, nil)
	require.Error(t, err)
}

func TestQuoteEndpoint(t *testing.T) {
	software, err := platform.NewSoftware(bytes.Repeat([]byte{1}, platform.RootSecretSize), platform.Identity{}, nil)
	require.NoError(t, err)
	defer software.Destroy()

	ts := newTestServer(t, NewQuoteHandler(testLogger(), software), nil)

	var rd [64]byte
	copy(rd[:], "quote me")
	status, body, header := get(t, ts.URL+"/attest/"+hex.EncodeToString(rd[:]))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, cryptoutils.NativeAttestation.StringID, header.Get("X-Attestation-Type"))

	id, err := cryptoutils.VerifyNativeQuote(body, software.QuotingKey())
	require.NoError(t, err)
	require.Equal(t, rd[:], id.ReportData)

	status, _, _ = get(t, ts.URL+"/attest/abcd")
	require.Equal(t, http.StatusBadRequest, status)

	status, _, _ = get(t, ts.URL+"/attest/"+hex.EncodeToString(rd[:])[:126]+"zz")
	require.Equal(t, http.StatusBadRequest, status)

	status, body, _ = get(t, ts.URL+"/target_info")
	require.Equal(t, http.StatusOK, status)
	var ti interfaces.TargetInfo
	require.NoError(t, ti.UnmarshalBinary(body))
	want, err := software.TargetInfo()
	require.NoError(t, err)
	require.Equal(t, want, ti)

	// admin API is not mounted on a quote service
	status, _, _ = get(t, ts.URL+"/admin/status")
	require.Equal(t, http.StatusNotFound, status)
}

// A platform.Remote talking to the quote endpoint gets quotes from the
// serving platform.
func TestRemotePlatformAgainstQuoteEndpoint(t *testing.T) {
	root := bytes.Repeat([]byte{2}, platform.RootSecretSize)
	host, err := platform.NewSoftware(root, platform.Identity{}, nil)
	require.NoError(t, err)
	defer host.Destroy()

	ts := newTestServer(t, NewQuoteHandler(testLogger(), host), nil)

	guest, err := platform.New(platform.Config{
		Kind:          platform.KindRemote,
		Root:          root,
		QuoteProvider: ts.URL,
		RemoteType:    cryptoutils.NativeAttestation,
	})
	require.NoError(t, err)

	quote, err := guest.Attest([64]byte{9})
	require.NoError(t, err)
	id, err := cryptoutils.VerifyNativeQuote(quote, host.QuotingKey())
	require.NoError(t, err)
	require.Equal(t, byte(9), id.ReportData[0])
}

func TestQuoteEndpointProviderFailure(t *testing.T) {
	ts := newTestServer(t, NewQuoteHandler(testLogger(), failingProvider{}), nil)
	status, _, _ := get(t, ts.URL+"/attest/"+hex.EncodeToString(make([]byte, 64)))
	require.Equal(t, http.StatusInternalServerError, status)

	status, _, _ = get(t, ts.URL+"/target_info")
	require.Equal(t, http.StatusNotImplemented, status)
}

func TestHealthEndpoints(t *testing.T) {
	_, pubKeys := generateAdmins(t, 2)
	ts := newTestServer(t, nil, NewAdminHandler(testLogger(), pubKeys))

	status, body, _ := get(t, ts.URL+"/livez")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"alive"}`, string(body))

	status, _, _ = get(t, ts.URL+"/readyz")
	require.Equal(t, http.StatusOK, status)

	status, body, _ = get(t, ts.URL+"/drain")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"draining"}`, string(body))

	status, body, _ = get(t, ts.URL+"/drain")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"already draining"}`, string(body))

	status, _, _ = get(t, ts.URL+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, status)

	status, body, _ = get(t, ts.URL+"/undrain")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ready"}`, string(body))

	status, _, _ = get(t, ts.URL+"/readyz")
	require.Equal(t, http.StatusOK, status)

	// admin API is mounted, quotes are not
	status, body, _ = get(t, ts.URL+"/admin/status")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"state":"initial"}`, string(body))
	status, _, _ = get(t, ts.URL+"/attest/00")
	require.Equal(t, http.StatusNotFound, status)
}
