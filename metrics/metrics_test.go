package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/tee-kms-core/interfaces"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("ehsm", reg)

	m.ObserveOperation("encrypt", interfaces.StatusSuccess, time.Millisecond)
	m.ObserveOperation("encrypt", interfaces.StatusSuccess, time.Millisecond)
	m.ObserveOperation("encrypt", interfaces.StatusInvalidParameter, time.Microsecond)
	m.ObserveOperation("sign", interfaces.StatusMACMismatch, time.Microsecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("encrypt", "SUCCESS")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("encrypt", "INVALID_PARAMETER")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("sign", "MAC_MISMATCH")))
	require.Equal(t, 3, testutil.CollectAndCount(m.operationsTotal))
	require.Equal(t, 2, testutil.CollectAndCount(m.operationDuration))
}

func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("ehsm", reg)
	m.ObserveOperation("create_key", interfaces.StatusSuccess, time.Millisecond)

	srv := httptest.NewServer(NewServer("", reg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `ehsm_operations_total{operation="create_key",status="SUCCESS"} 1`))
}
