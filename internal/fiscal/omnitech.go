package fiscal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kioskpos/internal/model"

	"github.com/rs/zerolog/log"
)

// omnitechProvider speaks the Omnitech protocol: a /fiscal operation endpoint
// with nested body/result envelopes and typed payment lines.
type omnitechProvider struct {
	dev      *deviceClient
	operator string
	pin      string
}

func newOmnitechProvider(cfg Config) *omnitechProvider {
	return &omnitechProvider{
		dev:      newDeviceClient(cfg.IP, cfg.Port),
		operator: cfg.OperatorCode,
		pin:      cfg.OperatorPassword,
	}
}

func (p *omnitechProvider) Name() string { return ProviderOmnitech }

// Omnitech payment type codes.
const (
	omnitechTenderCash = 0
	omnitechTenderCard = 1
)

type omnitechAuth struct {
	Operator string `json:"operator"`
	Pin      string `json:"pin"`
}

type omnitechPosition struct {
	Text        string `json:"text"`
	Qty         string `json:"qty"`   // 3 decimals
	Price       string `json:"price"` // 2 decimals
	DiscountSum string `json:"discount_sum"`
}

type omnitechPayment struct {
	Type int    `json:"type"`
	Sum  string `json:"sum"`
}

type omnitechBody struct {
	Positions []omnitechPosition `json:"positions"`
	Payments  []omnitechPayment  `json:"payments"`
}

type omnitechRequest struct {
	Operation string       `json:"operation"`
	Auth      omnitechAuth `json:"auth"`
	Body      omnitechBody `json:"body"`
}

type omnitechResponse struct {
	Result struct {
		Status  string `json:"status"` // "ok" | "error"
		Message string `json:"message"`
		Doc     struct {
			Number string `json:"number"`
			ID     string `json:"id"`
		} `json:"doc"`
	} `json:"result"`
}

func (p *omnitechProvider) PrintSale(ctx context.Context, sale *model.Sale) *model.FiscalPrintResult {
	tenders, items, err := reconcilePayments(sale)
	if err != nil {
		return &model.FiscalPrintResult{Provider: p.Name(), Error: err.Error()}
	}

	req := omnitechRequest{
		Operation: "sale",
		Auth:      omnitechAuth{Operator: p.operator, Pin: p.pin},
	}
	for _, it := range items {
		req.Body.Positions = append(req.Body.Positions, omnitechPosition{
			Text:        it.Name,
			Qty:         it.Quantity.StringFixed(3),
			Price:       it.UnitPrice.StringFixed(2),
			DiscountSum: it.Discount.StringFixed(2),
		})
	}
	// Omnitech rejects zero-sum payment lines, so only non-zero tenders go out.
	if tenders.Cash.IsPositive() {
		req.Body.Payments = append(req.Body.Payments, omnitechPayment{
			Type: omnitechTenderCash, Sum: tenders.Cash.StringFixed(2),
		})
	}
	if tenders.Card.IsPositive() {
		req.Body.Payments = append(req.Body.Payments, omnitechPayment{
			Type: omnitechTenderCard, Sum: tenders.Card.StringFixed(2),
		})
	}

	start := time.Now()
	raw, err := p.dev.post(ctx, "/fiscal", req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return deviceFailure(p.Name(), err, latency)
	}

	var resp omnitechResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return &model.FiscalPrintResult{
			Provider:       p.Name(),
			Error:          fmt.Sprintf("invalid device response: %v", err),
			ResponseTimeMs: latency,
		}
	}
	if resp.Result.Status != "ok" {
		return &model.FiscalPrintResult{
			Provider:       p.Name(),
			Error:          resp.Result.Message,
			ResponseTimeMs: latency,
		}
	}

	log.Info().
		Str("provider", p.Name()).
		Str("document_number", resp.Result.Doc.Number).
		Str("local_id", sale.LocalID).
		Msg("fiscal: receipt printed")
	return &model.FiscalPrintResult{
		Success:        true,
		DocumentNumber: resp.Result.Doc.Number,
		DocumentID:     resp.Result.Doc.ID,
		Provider:       p.Name(),
		ResponseTimeMs: latency,
	}
}

func (p *omnitechProvider) TestConnection(ctx context.Context) *TestResult {
	rtt, err := p.dev.get(ctx, "/ping")
	res := &TestResult{Provider: p.Name(), ResponseTimeMs: rtt.Milliseconds()}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}
