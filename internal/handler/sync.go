package handler

import (
	"net/http"

	"kioskpos/internal/syncer"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	orch *syncer.Orchestrator
}

func NewSyncHandler(orch *syncer.Orchestrator) *SyncHandler {
	return &SyncHandler{orch: orch}
}

// Status returns the derived sync status (always available, even while an
// error is present).
func (h *SyncHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Status(c.Request.Context()))
}

// Trigger runs a full sync cycle and waits for its result. If a cycle is
// already in flight the call joins it instead of starting a second one.
func (h *SyncHandler) Trigger(c *gin.Context) {
	res := <-h.orch.TriggerFullSync()
	body := gin.H{
		"uploaded": res.Uploaded,
		"failed":   res.Failed,
		"status":   h.orch.Status(c.Request.Context()),
	}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}
