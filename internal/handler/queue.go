package handler

import (
	"errors"
	"net/http"

	"kioskpos/internal/apierror"
	"kioskpos/internal/queue"

	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	store queue.Store
}

func NewQueueHandler(store queue.Store) *QueueHandler {
	return &QueueHandler{store: store}
}

// List returns queue entries, optionally filtered by ?status=.
func (h *QueueHandler) List(c *gin.Context) {
	entries, err := h.store.List(c.Request.Context(), c.Query("status"), 100)
	if err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, apierror.New("failed to list queue"))
		return
	}
	counts, err := h.store.Count(c.Request.Context())
	if err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, apierror.New("failed to count queue"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "counts": counts})
}

// Requeue resets a permanently failed entry to pending (operator action).
func (h *QueueHandler) Requeue(c *gin.Context) {
	localID := c.Param("local_id")
	err := h.store.Requeue(c.Request.Context(), localID)
	if errors.Is(err, queue.ErrNotFound) {
		c.JSON(http.StatusNotFound, apierror.New("no permanently failed entry with that id"))
		return
	}
	if err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, apierror.New("failed to requeue entry"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"local_id": localID, "status": "pending"})
}
