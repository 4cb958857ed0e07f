package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinynotes/internal/config"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *app {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func TestApp_ServesNotesAndPrometheus(t *testing.T) {
	a := newTestApp(t, nil)

	r := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(`{"content":"hi"}`))
	r.Header.Set("X-API-Key", "dev-key")
	r.Header.Set("Idempotency-Key", "abc")
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil)
	r.Header.Set("X-API-Key", "dev-key")
	w = httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `tinynotes_http_request_duration_seconds_count{endpoint="POST /notes"} 1`)
	assert.Contains(t, body, `tinynotes_ratelimit_decisions_total`)
	assert.Contains(t, body, "go_goroutines")

	r = httptest.NewRequest(http.MethodGet, "/metrics/ratelimit", nil)
	r.Header.Set("X-API-Key", "dev-key")
	w = httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":{"allowed":1,"denied":0},"routes":{"POST /notes":{"allowed":1,"denied":0}}}`, w.Body.String())
	assert.EqualValues(t, 1, a.rateStats.Total().Allowed)
}

func TestApp_RateLimitDisabled(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.RateEnabled = false
		c.RateBurst = 1
		c.RateRPS = 0.001
	})

	for i := 0; i < 5; i++ {
		r := httptest.NewRequest(http.MethodGet, "/notes", nil)
		r.Header.Set("X-API-Key", "dev-key")
		w := httptest.NewRecorder()
		a.handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestApp_ReloadUpdatesLimits(t *testing.T) {
	a := newTestApp(t, nil)

	cfg := a.cfg
	cfg.RateRPS = 2
	cfg.RateBurst = 4
	a.reload(cfg)

	assert.Equal(t, 2.0, a.limiter.RPS())
	assert.Equal(t, 4, a.limiter.Burst())
}

func TestConfigCommand_RedactsSecrets(t *testing.T) {
	t.Setenv("API_KEY", "super-secret")
	configPath = ""
	t.Setenv("TINYNOTES_CONFIG", "")

	var out bytes.Buffer
	configCmd.SetOut(&out)
	require.NoError(t, configCmd.RunE(configCmd, nil))

	assert.Contains(t, out.String(), "***")
	assert.NotContains(t, out.String(), "super-secret")
	assert.Contains(t, out.String(), "rate_rps: 10")
}
