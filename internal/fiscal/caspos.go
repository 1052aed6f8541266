package fiscal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kioskpos/internal/model"

	"github.com/rs/zerolog/log"
)

// casposProvider speaks the Caspos device protocol: a single /api/v1/execute
// command endpoint with numeric error codes.
type casposProvider struct {
	dev              *deviceClient
	operatorCode     string
	operatorPassword string
}

func newCasposProvider(cfg Config) *casposProvider {
	return &casposProvider{
		dev:              newDeviceClient(cfg.IP, cfg.Port),
		operatorCode:     cfg.OperatorCode,
		operatorPassword: cfg.OperatorPassword,
	}
}

func (p *casposProvider) Name() string { return ProviderCaspos }

type casposOperator struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

type casposItem struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"` // 3 decimals
	Price    string `json:"price"`    // 2 decimals
	Discount string `json:"discount"` // 2 decimals
}

type casposPayments struct {
	Cash string `json:"cash"`
	Card string `json:"card"`
}

type casposSaleRequest struct {
	Command  string         `json:"command"`
	Operator casposOperator `json:"operator"`
	Items    []casposItem   `json:"items"`
	Payments casposPayments `json:"payments"`
}

type casposResponse struct {
	ErrorCode      int    `json:"errorCode"`
	ErrorMessage   string `json:"errorMessage"`
	DocumentNumber string `json:"documentNumber"`
	DocumentID     string `json:"documentId"`
}

func (p *casposProvider) PrintSale(ctx context.Context, sale *model.Sale) *model.FiscalPrintResult {
	tenders, items, err := reconcilePayments(sale)
	if err != nil {
		return &model.FiscalPrintResult{Provider: p.Name(), Error: err.Error()}
	}

	req := casposSaleRequest{
		Command:  "sale",
		Operator: casposOperator{Code: p.operatorCode, Password: p.operatorPassword},
		Payments: casposPayments{
			Cash: tenders.Cash.StringFixed(2),
			Card: tenders.Card.StringFixed(2),
		},
	}
	for _, it := range items {
		req.Items = append(req.Items, casposItem{
			Name:     it.Name,
			Quantity: it.Quantity.StringFixed(3),
			Price:    it.UnitPrice.StringFixed(2),
			Discount: it.Discount.StringFixed(2),
		})
	}

	start := time.Now()
	raw, err := p.dev.post(ctx, "/api/v1/execute", req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return deviceFailure(p.Name(), err, latency)
	}

	var resp casposResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return &model.FiscalPrintResult{
			Provider:       p.Name(),
			Error:          fmt.Sprintf("invalid device response: %v", err),
			ResponseTimeMs: latency,
		}
	}
	if resp.ErrorCode != 0 {
		// Device-reported business error — message passed through verbatim.
		return &model.FiscalPrintResult{
			Provider:       p.Name(),
			Error:          resp.ErrorMessage,
			ResponseTimeMs: latency,
		}
	}

	log.Info().
		Str("provider", p.Name()).
		Str("document_number", resp.DocumentNumber).
		Str("local_id", sale.LocalID).
		Msg("fiscal: receipt printed")
	return &model.FiscalPrintResult{
		Success:        true,
		DocumentNumber: resp.DocumentNumber,
		DocumentID:     resp.DocumentID,
		Provider:       p.Name(),
		ResponseTimeMs: latency,
	}
}

func (p *casposProvider) TestConnection(ctx context.Context) *TestResult {
	rtt, err := p.dev.get(ctx, "/api/v1/status")
	res := &TestResult{Provider: p.Name(), ResponseTimeMs: rtt.Milliseconds()}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// deviceFailure converts a transport-level device error into a failed print
// result, keeping the unreachable/HTTP distinction in the error string.
func deviceFailure(provider string, err error, latencyMs int64) *model.FiscalPrintResult {
	msg := err.Error()
	if errors.Is(err, errUnreachable) {
		msg = "unreachable: " + msg
	}
	return &model.FiscalPrintResult{
		Provider:       provider,
		Error:          msg,
		ResponseTimeMs: latencyMs,
	}
}
