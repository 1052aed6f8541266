package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"kioskpos/internal/dto"
	"kioskpos/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSendsDeviceInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/register", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		var req dto.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "branch-1", req.BranchID)
		json.NewEncoder(w).Encode(dto.RegisterResponse{ //nolint:errcheck
			DeviceID:             "dev-42",
			HeartbeatIntervalSec: 15,
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "tok", Options{})
	resp, err := c.Register(context.Background(), dto.RegisterRequest{BranchID: "branch-1", DeviceName: "kiosk-3"})
	require.NoError(t, err)
	assert.Equal(t, "dev-42", resp.DeviceID)
	assert.Equal(t, 15, resp.HeartbeatIntervalSec)
}

func TestPullProductsDeltaPassesCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/products/delta", r.URL.Path)
		assert.Equal(t, "cursor-7", r.URL.Query().Get("since"))
		json.NewEncoder(w).Encode(dto.ProductDelta{Cursor: "cursor-8"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", Options{})
	delta, err := c.PullProductsDelta(context.Background(), "cursor-7")
	require.NoError(t, err)
	assert.Equal(t, "cursor-8", delta.Cursor)
}

func TestUploadSalesBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sales/upload", r.URL.Path)
		var body struct {
			Sales []model.Sale `json:"sales"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Sales, 2)
		var out []dto.SaleUploadResult
		for _, s := range body.Sales {
			out = append(out, dto.SaleUploadResult{LocalID: s.LocalID, ServerID: "srv-" + s.LocalID, Status: "accepted"})
		}
		json.NewEncoder(w).Encode(out) //nolint:errcheck
	}))
	defer srv.Close()

	sales := []model.Sale{
		{LocalID: "sale-1", Total: decimal.RequireFromString("10.00")},
		{LocalID: "sale-2", Total: decimal.RequireFromString("5.00")},
	}
	c := newTestClient(srv.URL, "", Options{})
	results, err := c.UploadSalesBatch(context.Background(), sales)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "srv-sale-1", results[0].ServerID)
	assert.Equal(t, "accepted", results[1].Status)
}

func TestSaleStatusEscapesLocalID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sales/status/sale%2F1", r.URL.EscapedPath())
		json.NewEncoder(w).Encode(dto.SaleStatusResponse{LocalID: "sale/1", Exists: true, ServerID: "srv-1"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", Options{})
	st, err := c.SaleStatus(context.Background(), "sale/1")
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.Equal(t, "srv-1", st.ServerID)
}
