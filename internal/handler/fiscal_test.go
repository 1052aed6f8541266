package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"kioskpos/internal/fiscal"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFiscalRouter() (*gin.Engine, *fiscal.Service) {
	gin.SetMode(gin.TestMode)
	svc := fiscal.NewService(nil)
	h := NewFiscalHandler(svc)
	r := gin.New()
	r.PUT("/v1/fiscal/config", h.Configure)
	r.POST("/v1/fiscal/test", h.Test)
	return r, svc
}

func putConfig(t *testing.T, r *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPut, "/v1/fiscal/config", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validConfigBody() map[string]interface{} {
	return map[string]interface{}{
		"provider":          "caspos",
		"is_active":         true,
		"ip":                "192.168.1.50",
		"port":              8080,
		"operator_code":     "op1",
		"operator_password": "secret",
	}
}

func TestConfigureActivatesProvider(t *testing.T) {
	r, svc := newFiscalRouter()
	w := putConfig(t, r, validConfigBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, svc.Initialized())
}

func TestConfigureRejectsBadConfigs(t *testing.T) {
	r, svc := newFiscalRouter()

	cases := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"unknown provider", func(b map[string]interface{}) { b["provider"] = "fiscalx" }},
		{"inactive", func(b map[string]interface{}) { b["is_active"] = false }},
		{"missing ip", func(b map[string]interface{}) { delete(b, "ip") }},
		{"missing credentials", func(b map[string]interface{}) { delete(b, "operator_password") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validConfigBody()
			tc.mutate(body)
			w := putConfig(t, r, body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
		})
	}
	assert.False(t, svc.Initialized())
}

func TestConnectionTestWithoutConfigConflicts(t *testing.T) {
	r, _ := newFiscalRouter()
	req := httptest.NewRequest(http.MethodPost, "/v1/fiscal/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}
