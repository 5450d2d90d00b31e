package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerHandlerExposesCounters(t *testing.T) {
	RecordsTotal.WithLabelValues("request").Inc()

	srv := NewServer("127.0.0.1:0", "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "flowanalyzer_records_total"))
}

func TestServerHandlerCustomPath(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "/prom")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStopWithoutStart(t *testing.T) {
	srv := NewServer(":0", "/metrics")
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(PacketsTotal.WithLabelValues(StageSkipped))
	PacketsTotal.WithLabelValues(StageSkipped).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PacketsTotal.WithLabelValues(StageSkipped)))
}
