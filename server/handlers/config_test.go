package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nomis52/goinit/config"
)

type fakeConfigProvider struct {
	cfg *config.Config
}

func (f *fakeConfigProvider) Config() *config.Config { return f.cfg }

func TestConfigHandler_ReturnsYAML(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	h := NewConfigHandler(&fakeConfigProvider{cfg: cfg})

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "strategy: comprehensive")
	assert.Contains(t, rec.Body.String(), "max_parallel: 4")
}
