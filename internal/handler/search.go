package handler

import (
	"net/http"

	"kioskpos/internal/apierror"
	"kioskpos/internal/catalog"
	"kioskpos/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SearchHandler proxies catalog searches upstream, falling back to the local
// mirror when the server is unreachable so the cashier can keep selling.
type SearchHandler struct {
	client  *transport.Client
	catalog catalog.Store
}

func NewSearchHandler(client *transport.Client, cat catalog.Store) *SearchHandler {
	return &SearchHandler{client: client, catalog: cat}
}

func (h *SearchHandler) Products(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, apierror.New("missing query parameter q"))
		return
	}

	products, err := h.client.SearchProducts(c.Request.Context(), q)
	if err != nil {
		log.Debug().Err(err).Msg("search: upstream unavailable, using local catalog")
		products, err = h.catalog.SearchProducts(c.Request.Context(), q, 50)
		if err != nil {
			c.Error(err) //nolint:errcheck
			c.JSON(http.StatusInternalServerError, apierror.New("search failed"))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": products})
}

func (h *SearchHandler) Customers(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, apierror.New("missing query parameter q"))
		return
	}

	customers, err := h.client.SearchCustomers(c.Request.Context(), q)
	if err != nil {
		log.Debug().Err(err).Msg("search: upstream unavailable, using local catalog")
		customers, err = h.catalog.SearchCustomers(c.Request.Context(), q, 50)
		if err != nil {
			c.Error(err) //nolint:errcheck
			c.JSON(http.StatusInternalServerError, apierror.New("search failed"))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": customers})
}
