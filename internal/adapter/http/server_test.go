package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/meteodk/dmi-preprocess/internal/adapter/http"
	"github.com/meteodk/dmi-preprocess/internal/pipeline"
)

type stubReadiness struct {
	err error
}

func (s *stubReadiness) CheckReadiness(_ context.Context) error { return s.err }

type stubStatus struct {
	stubReadiness
	status pipeline.RunStatus
	ok     bool
}

func (s *stubStatus) LastRun() (pipeline.RunStatus, bool) { return s.status, s.ok }

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &stubReadiness{err: readyErr}, slog.Default())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv := newTestServer(nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ready with last-run details", func(t *testing.T) {
		checker := &stubStatus{
			status: pipeline.RunStatus{
				CompletedAt: time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC),
				Duration:    1500 * time.Millisecond,
				Runs:        3,
			},
			ok: true,
		}
		srv := httpadapter.NewServer(":0", checker, slog.Default())
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ready", body["status"])
		assert.Equal(t, "2024-06-15T10:30:00Z", body["last_completed"])
		assert.Equal(t, "1.5s", body["last_duration"])
		assert.Equal(t, float64(3), body["runs"])
	})

	t.Run("not ready", func(t *testing.T) {
		srv := newTestServer(errors.New("no completed run yet"))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "not ready", body["status"])
		assert.Equal(t, "no completed run yet", body["error"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
