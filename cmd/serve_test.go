package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/receipt-ocr/internal/api"
	"github.com/sells-group/receipt-ocr/internal/config"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestServerOptions(t *testing.T) {
	withConfig(t, &config.Config{
		Extraction: config.ExtractionConfig{TimeoutSecs: 60},
		Batch:      config.BatchConfig{Concurrency: 3},
		Server:     config.ServerConfig{AllowedOrigins: []string{"https://ops.example.com"}},
	})

	opts := serverOptions()
	assert.Equal(t, int64(3), opts.MaxConcurrent)
	assert.Equal(t, 90*time.Second, opts.RequestTimeout)
	assert.Equal(t, []string{"https://ops.example.com"}, opts.AllowedOrigins)
}

func TestServerOptions_NoTimeout(t *testing.T) {
	withConfig(t, &config.Config{Batch: config.BatchConfig{Concurrency: 1}})
	assert.Zero(t, serverOptions().RequestTimeout)
}

func TestHealthEndpoint(t *testing.T) {
	withConfig(t, &config.Config{Batch: config.BatchConfig{Concurrency: 1}})
	h := api.NewHandler(nil, nil, serverOptions())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestInitExtract_InvalidConfig(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "mysql"}})

	_, err := initExtract(t.Context(), "extract", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}
