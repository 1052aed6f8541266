package handler

import (
	"errors"
	"net/http"

	"kioskpos/internal/apierror"
	"kioskpos/internal/fiscal"

	"github.com/gin-gonic/gin"
)

type FiscalHandler struct {
	svc *fiscal.Service
}

func NewFiscalHandler(svc *fiscal.Service) *FiscalHandler {
	return &FiscalHandler{svc: svc}
}

// ConfigRequest mirrors fiscal.Config with validation tags for the admin UI.
type ConfigRequest struct {
	Provider         string `json:"provider" validate:"required,oneof=caspos omnitech"`
	IsActive         bool   `json:"is_active"`
	IP               string `json:"ip" validate:"required"`
	Port             int    `json:"port" validate:"required,min=1,max=65535"`
	OperatorCode     string `json:"operator_code" validate:"required"`
	OperatorPassword string `json:"operator_password" validate:"required"`
}

// Configure replaces the active provider wholesale.
func (h *FiscalHandler) Configure(c *gin.Context) {
	var req ConfigRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.svc.Initialize(fiscal.Config{
		Provider:         req.Provider,
		IsActive:         req.IsActive,
		IP:               req.IP,
		Port:             req.Port,
		OperatorCode:     req.OperatorCode,
		OperatorPassword: req.OperatorPassword,
	})
	switch {
	case errors.Is(err, fiscal.ErrNotActive),
		errors.Is(err, fiscal.ErrMissingEndpoint),
		errors.Is(err, fiscal.ErrProviderMisconfigured),
		errors.Is(err, fiscal.ErrUnknownProvider):
		c.JSON(http.StatusUnprocessableEntity, apierror.New(err.Error()))
		return
	case err != nil:
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, apierror.New("failed to initialize printer"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": req.Provider, "initialized": true})
}

// Test probes the configured printer without printing anything.
func (h *FiscalHandler) Test(c *gin.Context) {
	res, err := h.svc.TestConnection(c.Request.Context())
	if errors.Is(err, fiscal.ErrNotInitialized) {
		c.JSON(http.StatusConflict, apierror.New("fiscal printer not configured"))
		return
	}
	if err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, apierror.New("connection test failed"))
		return
	}
	c.JSON(http.StatusOK, res)
}
