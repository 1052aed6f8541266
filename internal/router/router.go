package router

import (
	"time"

	"kioskpos/internal/catalog"
	"kioskpos/internal/config"
	"kioskpos/internal/fiscal"
	"kioskpos/internal/handler"
	"kioskpos/internal/middleware"
	"kioskpos/internal/queue"
	"kioskpos/internal/syncer"
	"kioskpos/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the long-lived components constructed in main. The router only
// wires handlers — lifecycle (Start/Stop) stays with the composition root.
type Deps struct {
	DB        *gorm.DB
	RDB       *redis.Client
	Client    *transport.Client
	Store     queue.Store
	Catalog   catalog.Store
	FiscalSvc *fiscal.Service
	Orch      *syncer.Orchestrator
}

// New returns the configured gin engine for the local kiosk API.
func New(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(600, time.Minute))

	salesH := handler.NewSalesHandler(d.Orch, d.FiscalSvc, cfg.BranchID)
	syncH := handler.NewSyncHandler(d.Orch)
	queueH := handler.NewQueueHandler(d.Store)
	fiscalH := handler.NewFiscalHandler(d.FiscalSvc)
	searchH := handler.NewSearchHandler(d.Client, d.Catalog)

	r.GET("/health", handler.Health(d.DB, d.RDB))

	v1 := r.Group("/v1")
	{
		v1.POST("/sales", salesH.Create)

		v1.GET("/sync/status", syncH.Status)
		v1.POST("/sync/trigger", syncH.Trigger)

		v1.GET("/queue", queueH.List)
		v1.POST("/queue/:local_id/requeue", queueH.Requeue)

		v1.PUT("/fiscal/config", fiscalH.Configure)
		v1.POST("/fiscal/test", fiscalH.Test)

		v1.GET("/products/search", searchH.Products)
		v1.GET("/customers/search", searchH.Customers)
	}

	return r
}
