package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"kioskpos/internal/model"
)

// Provider identifiers.
const (
	ProviderCaspos   = "caspos"
	ProviderOmnitech = "omnitech"
)

// Config selects and configures one fiscal printer provider. Re-initializing
// the service replaces the active provider wholesale — partial configs are
// never merged.
type Config struct {
	Provider string `json:"provider" mapstructure:"provider"`
	IsActive bool   `json:"is_active" mapstructure:"is_active"`
	IP       string `json:"ip" mapstructure:"ip"`
	Port     int    `json:"port" mapstructure:"port"`
	// Operator credentials — both providers require a code/password pair,
	// though they place them differently on the wire.
	OperatorCode     string `json:"operator_code" mapstructure:"operator_code"`
	OperatorPassword string `json:"operator_password" mapstructure:"operator_password"`
}

// Provider is one fiscal printer vendor integration. PrintSale never returns
// an error for device or network failure — every failure mode is a result
// with Success=false and a classified error string. Adding a vendor means
// adding an implementation; orchestration code does not change.
type Provider interface {
	Name() string
	PrintSale(ctx context.Context, sale *model.Sale) *model.FiscalPrintResult
	TestConnection(ctx context.Context) *TestResult
}

// TestResult is the outcome of a reachability probe, independent of printing.
type TestResult struct {
	Success        bool   `json:"success"`
	Provider       string `json:"provider"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Error          string `json:"error,omitempty"`
}

// deviceClient is the HTTP plumbing shared by all providers: POST a JSON
// payload to the device and classify failures into the three subtypes the UI
// distinguishes (unreachable, HTTP error, device business error).
type deviceClient struct {
	baseURL    string
	httpClient *http.Client
}

func newDeviceClient(ip string, port int) *deviceClient {
	return &deviceClient{
		baseURL:    fmt.Sprintf("http://%s:%d", ip, port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// errUnreachable marks connection-refused / timeout failures.
var errUnreachable = errors.New("fiscal device unreachable")

// post sends payload to path and returns the raw response body.
// Returned errors wrap errUnreachable for no-response failures; HTTP-level
// failures carry the status code in the message.
func (d *deviceClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("fiscal: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fiscal: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: timeout", errUnreachable)
		}
		return nil, fmt.Errorf("%w: %v", errUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("fiscal: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fiscal device HTTP %d", resp.StatusCode)
	}
	return data, nil
}

// get probes path, returning round-trip time.
func (d *deviceClient) get(ctx context.Context, path string) (time.Duration, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", errUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return time.Since(start), fmt.Errorf("fiscal device HTTP %d", resp.StatusCode)
	}
	return time.Since(start), nil
}
