package transport

import (
	"context"
	"net/http"
	"net/url"

	"kioskpos/internal/dto"
	"kioskpos/internal/model"
)

// Register announces the device and returns the remote sync configuration.
func (c *Client) Register(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	var out dto.RegisterResponse
	err := c.Execute(ctx, Request{Method: http.MethodPost, Path: "/register", Body: req}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Heartbeat probes upstream liveness. The probe runs under its own short
// deadline — a slow answer is as good as no answer for online/offline
// detection.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.Execute(ctx, Request{
		Method:  http.MethodGet,
		Path:    "/heartbeat",
		Timeout: c.heartbeatTimeout,
	}, nil)
}

// PullProductsDelta fetches product records changed since the cursor.
func (c *Client) PullProductsDelta(ctx context.Context, since string) (*dto.ProductDelta, error) {
	var out dto.ProductDelta
	err := c.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   "/sync/products/delta",
		Query:  url.Values{"since": {since}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PullCustomersDelta fetches customer records changed since the cursor.
func (c *Client) PullCustomersDelta(ctx context.Context, since string) (*dto.CustomerDelta, error) {
	var out dto.CustomerDelta
	err := c.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   "/sync/customers/delta",
		Query:  url.Values{"since": {since}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadSale pushes one sale. The upstream deduplicates on local_id, so a
// replay after an ambiguous failure is safe.
func (c *Client) UploadSale(ctx context.Context, sale *model.Sale) (*dto.SaleUploadResult, error) {
	var out dto.SaleUploadResult
	err := c.Execute(ctx, Request{Method: http.MethodPost, Path: "/sale", Body: sale}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadSalesBatch pushes several sales in one request (queue drain fast path).
func (c *Client) UploadSalesBatch(ctx context.Context, sales []model.Sale) ([]dto.SaleUploadResult, error) {
	var out []dto.SaleUploadResult
	err := c.Execute(ctx, Request{
		Method: http.MethodPost,
		Path:   "/sales/upload",
		Body:   map[string]interface{}{"sales": sales},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaleStatus asks whether the upstream already has a sale with this local id.
// Used to reconcile entries whose upload outcome was ambiguous.
func (c *Client) SaleStatus(ctx context.Context, localID string) (*dto.SaleStatusResponse, error) {
	var out dto.SaleStatusResponse
	err := c.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   "/sales/status/" + url.PathEscape(localID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchProducts proxies a product search to the upstream.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]model.Product, error) {
	var out []model.Product
	err := c.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   "/products/search",
		Query:  url.Values{"q": {query}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SearchCustomers proxies a customer search to the upstream.
func (c *Client) SearchCustomers(ctx context.Context, query string) ([]model.Customer, error) {
	var out []model.Customer
	err := c.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   "/customers/search",
		Query:  url.Values{"q": {query}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
