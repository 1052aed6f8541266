package handler

import (
	"errors"
	"net/http"
	"time"

	"kioskpos/internal/apierror"
	"kioskpos/internal/dto"
	"kioskpos/internal/fiscal"
	"kioskpos/internal/model"
	"kioskpos/internal/syncer"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type SalesHandler struct {
	orch      *syncer.Orchestrator
	fiscalSvc *fiscal.Service
	branchID  string
}

func NewSalesHandler(orch *syncer.Orchestrator, fiscalSvc *fiscal.Service, branchID string) *SalesHandler {
	return &SalesHandler{orch: orch, fiscalSvc: fiscalSvc, branchID: branchID}
}

// Create finalizes a sale: it is durably enqueued for upload first, then sent
// to the fiscal printer. Print failures never block completion — the sale
// stays queued and the failed result is returned for the UI to surface.
func (h *SalesHandler) Create(c *gin.Context) {
	var req dto.CreateSaleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	sale := saleFromRequest(&req, h.branchID)

	localID, err := h.orch.EnqueueSale(c.Request.Context(), sale)
	if err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, apierror.New("failed to queue sale"))
		return
	}

	resp := dto.CreateSaleResponse{LocalID: localID, Queued: true}
	if !req.SkipFiscal {
		result, perr := h.fiscalSvc.PrintSaleReceipt(c.Request.Context(), sale)
		switch {
		case errors.Is(perr, fiscal.ErrNotInitialized):
			log.Warn().Str("local_id", localID).Msg("sales: fiscal printer not configured, skipping print")
		case perr != nil:
			c.Error(perr) //nolint:errcheck
		default:
			sale.Fiscal = result
			resp.Fiscal = result
		}
	}

	c.JSON(http.StatusCreated, resp)
}

func saleFromRequest(req *dto.CreateSaleRequest, branchID string) *model.Sale {
	sale := &model.Sale{
		ID:            uuid.New(),
		LocalID:       req.LocalID,
		BranchID:      branchID,
		CustomerID:    req.CustomerID,
		Subtotal:      req.Subtotal,
		DiscountTotal: req.DiscountTotal,
		TaxTotal:      req.TaxTotal,
		Total:         req.Total,
		PaymentStatus: req.PaymentStatus,
		CreatedAt:     time.Now(),
	}
	for _, it := range req.Items {
		sale.Items = append(sale.Items, model.SaleItem{
			ID:        uuid.New(),
			SaleID:    sale.ID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Discount:  it.Discount,
		})
	}
	for _, p := range req.Payments {
		sale.Payments = append(sale.Payments, model.Payment{
			ID:     uuid.New(),
			SaleID: sale.ID,
			Method: p.Method,
			Amount: p.Amount,
		})
	}
	return sale
}
