package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()

	c1, err := New(reg)
	require.NoError(t, err)
	c2, err := New(reg)
	require.NoError(t, err)

	c1.Sends.WithLabelValues("red", "delivered").Inc()
	c2.Sends.WithLabelValues("red", "delivered").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(c1.Sends.WithLabelValues("red", "delivered")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)
	c.Broadcasts.WithLabelValues("completed").Inc()

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `agriqnet_broadcasts_total{result="completed"} 1`))
}
