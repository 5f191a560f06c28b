package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLiveness(t *testing.T) {
	hc := NewHealthCheck(zap.NewNop())

	rec := httptest.NewRecorder()
	hc.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestReadinessWithoutProbes(t *testing.T) {
	hc := NewHealthCheck(zap.NewNop())

	rec := httptest.NewRecorder()
	hc.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hc.IsReady())
}

func TestReadinessProbeFailure(t *testing.T) {
	hc := NewHealthCheck(zap.NewNop())
	hc.Register("service", func() bool { return true })
	hc.Register("archive", func() bool { return false })

	rec := httptest.NewRecorder()
	hc.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_ready")
	assert.False(t, hc.IsReady())
}
