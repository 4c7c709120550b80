package instrument

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSessionCounters(t *testing.T) {
	m := New()
	m.Session("success", 3*time.Millisecond)
	m.Session("success", time.Millisecond)
	m.Session("arithmetic", time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.sessions.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("arithmetic")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Session("success", time.Second)
	m.Verdict("failure")
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Session("failure", time.Millisecond)
	path := filepath.Join(t.TempDir(), "chalresp.prom")
	require.NoError(t, m.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `chalresp_sessions_total{outcome="failure"} 1`)
}

func TestHandler(t *testing.T) {
	m := New()
	m.Verdict("success")
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `chalresp_server_verdicts_total{verdict="success"} 1`)
}
