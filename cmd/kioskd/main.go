package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kioskpos/internal/catalog"
	"kioskpos/internal/config"
	"kioskpos/internal/events"
	"kioskpos/internal/fiscal"
	"kioskpos/internal/infra"
	"kioskpos/internal/queue"
	"kioskpos/internal/router"
	"kioskpos/internal/syncer"
	"kioskpos/internal/transport"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := infra.NewDatabase(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open local store")
	}

	// Redis carries the DLQ and the UI event bridge. Both are best-effort, so
	// a missing Redis degrades features instead of preventing boot.
	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable — DLQ and UI events disabled")
		rdb = nil
	}

	store, err := queue.NewStore(db, cfg.MaxQueueAttempts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open sale queue")
	}
	cursors := queue.NewCursorStore(db)
	catalogStore := catalog.NewStore(db)

	client := transport.NewClient(cfg.ServerBaseURL, cfg.APIToken, transport.Options{
		BaseDelay:        time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		MaxAttempts:      cfg.MaxHTTPAttempts,
		HeartbeatTimeout: time.Duration(cfg.HeartbeatTimeoutSec) * time.Second,
	})

	fiscalSvc := fiscal.NewService(infra.NewCircuitBreaker(infra.DefaultCBConfig()))

	var sink events.Sink = events.NewFanout()
	if rdb != nil {
		sink = events.NewFanout(events.NewRedisSink(rdb))
	}

	orch := syncer.New(client, store, cursors, catalogStore, sink, rdb, syncer.Config{
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalSec) * time.Second,
		DeltaInterval:     time.Duration(cfg.DeltaIntervalSec) * time.Second,
		BranchID:          cfg.BranchID,
		DeviceName:        hostname(),
	})
	orch.Start()
	defer orch.Stop()

	r := router.New(cfg, router.Deps{
		DB:        db,
		RDB:       rdb,
		Client:    client,
		Store:     store,
		Catalog:   catalogStore,
		FiscalSvc: fiscalSvc,
		Orch:      orch,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("kioskpos daemon listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("daemon exited")
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "kiosk"
	}
	return h
}
