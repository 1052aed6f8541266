// Package syncer contains the sync orchestrator: the state machine that keeps
// the kiosk reconciled with the upstream server. It schedules heartbeats and
// delta pulls, drains the durable sale queue in FIFO order, tracks
// online/offline status, and emits lifecycle events for the UI process.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kioskpos/internal/catalog"
	"kioskpos/internal/dto"
	"kioskpos/internal/events"
	"kioskpos/internal/model"
	"kioskpos/internal/queue"
	"kioskpos/internal/transport"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// API is the slice of the transport client the orchestrator consumes.
// Narrowed to an interface so tests can drive cycles without a live server.
type API interface {
	Register(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, error)
	Heartbeat(ctx context.Context) error
	PullProductsDelta(ctx context.Context, since string) (*dto.ProductDelta, error)
	PullCustomersDelta(ctx context.Context, since string) (*dto.CustomerDelta, error)
	UploadSale(ctx context.Context, sale *model.Sale) (*dto.SaleUploadResult, error)
	SaleStatus(ctx context.Context, localID string) (*dto.SaleStatusResponse, error)
}

var _ API = (*transport.Client)(nil)

// Config tunes the orchestrator's timers.
type Config struct {
	HeartbeatInterval time.Duration // default 30s
	DeltaInterval     time.Duration // default 300s
	BranchID          string
	DeviceName        string
}

// Status is the derived sync state, recomputed on demand from the queue store
// and the orchestrator's own flags. It is never persisted.
type Status struct {
	Online          bool       `json:"online"`
	Syncing         bool       `json:"syncing"`
	Queued          int64      `json:"queued"`
	FailedPermanent int64      `json:"failed_permanent"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// Result is the outcome of one full sync cycle. Concurrent triggers during an
// in-flight cycle all receive the same Result.
type Result struct {
	Uploaded int   `json:"uploaded"`
	Failed   int   `json:"failed"`
	Err      error `json:"-"`
}

type promise struct {
	done chan struct{}
	res  *Result
}

// Orchestrator drives all sync activity. Construct with New, then Start/Stop.
// Multiple independent instances are safe — there is no package-level state.
type Orchestrator struct {
	api     API
	store   queue.Store
	cursors queue.CursorStore
	catalog catalog.Store
	sink    events.Sink
	rdb     *redis.Client // dead-letter handoff, may be nil
	cfg     Config

	mu          sync.Mutex
	running     bool
	online      bool
	onlineKnown bool
	inflight    *promise // non-nil while a full sync cycle runs
	lastSyncAt  *time.Time
	lastError   string
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	// drainMu serializes queue drains so no two upload attempts for the
	// same entry can ever overlap.
	drainMu sync.Mutex
}

// New wires an orchestrator. sink may be a Fanout; rdb may be nil (no DLQ).
func New(api API, store queue.Store, cursors queue.CursorStore, cat catalog.Store, sink events.Sink, rdb *redis.Client, cfg Config) *Orchestrator {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.DeltaInterval <= 0 {
		cfg.DeltaInterval = 5 * time.Minute
	}
	return &Orchestrator{
		api:     api,
		store:   store,
		cursors: cursors,
		catalog: cat,
		sink:    sink,
		rdb:     rdb,
		cfg:     cfg,
	}
}

// Start registers the device (best-effort) and begins the heartbeat and
// delta-sync timers. Idempotent — calling Start on a running orchestrator is
// a no-op.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.mu.Unlock()

	o.registerDevice(ctx)

	o.wg.Add(2)
	go o.heartbeatLoop(ctx)
	go o.deltaLoop(ctx)
	log.Info().
		Dur("heartbeat_interval", o.cfg.HeartbeatInterval).
		Dur("delta_interval", o.cfg.DeltaInterval).
		Msg("syncer: started")
}

// Stop cancels the timers. An in-flight cycle is allowed to finish but its
// completion no longer schedules further work. Idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	log.Info().Msg("syncer: stopped")
}

// registerDevice announces the kiosk and applies remote interval overrides.
// A failure falls back to local config — the kiosk must boot offline.
func (o *Orchestrator) registerDevice(ctx context.Context) {
	resp, err := o.api.Register(ctx, dto.RegisterRequest{
		BranchID:   o.cfg.BranchID,
		DeviceName: o.cfg.DeviceName,
	})
	if err != nil {
		log.Warn().Err(err).Msg("syncer: device registration failed, using local config")
		return
	}
	if resp.HeartbeatIntervalSec > 0 {
		o.cfg.HeartbeatInterval = time.Duration(resp.HeartbeatIntervalSec) * time.Second
	}
	if resp.DeltaIntervalSec > 0 {
		o.cfg.DeltaInterval = time.Duration(resp.DeltaIntervalSec) * time.Second
	}
	log.Info().Str("device_id", resp.DeviceID).Msg("syncer: device registered")
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func (o *Orchestrator) heartbeatLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.HeartbeatInterval)
	defer ticker.Stop()

	// Immediate first probe so the UI doesn't wait a full interval for status.
	o.RunHeartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RunHeartbeat(ctx)
		}
	}
}

// RunHeartbeat executes one heartbeat cycle. Failures are expected
// steady-state when offline and never surface as errors — they only update
// status. Only transition edges emit events; an offline→online edge also
// kicks a full sync to reconcile the backlog.
func (o *Orchestrator) RunHeartbeat(ctx context.Context) {
	err := o.api.Heartbeat(ctx)
	if ctx.Err() != nil {
		// Shutdown cut the probe short — not a verdict on the upstream.
		return
	}
	online := err == nil

	o.mu.Lock()
	changed := !o.onlineKnown || o.online != online
	o.online = online
	o.onlineKnown = true
	o.mu.Unlock()

	if !changed {
		return
	}
	// State is applied before the event goes out, so a listener reading
	// Status inside its handler never sees the pre-transition value.
	if online {
		log.Info().Msg("syncer: connection online")
		o.emit(events.Event{Type: events.ConnectionOnline, At: time.Now()})
		go o.awaitFullSync(ctx)
	} else {
		log.Warn().Msg("syncer: connection offline")
		o.emit(events.Event{Type: events.ConnectionOffline, At: time.Now()})
	}
}

// awaitFullSync runs a full cycle and discards the result unless the
// orchestrator is still running.
func (o *Orchestrator) awaitFullSync(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-o.TriggerFullSync():
	}
}

// ── Delta + drain scheduling ─────────────────────────────────────────────────

func (o *Orchestrator) deltaLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.DeltaInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.awaitFullSync(ctx)
		}
	}
}

// TriggerFullSync runs delta sync then queue drain as one logical unit and
// returns a channel that yields the cycle's Result. A trigger while a cycle
// is already in flight does not start a second one — it returns the same
// completion as the running cycle.
func (o *Orchestrator) TriggerFullSync() <-chan *Result {
	o.mu.Lock()
	if o.inflight != nil {
		p := o.inflight
		o.mu.Unlock()
		return promiseChan(p)
	}
	p := &promise{done: make(chan struct{})}
	o.inflight = p
	o.mu.Unlock()

	go func() {
		p.res = o.runFullSync()
		o.mu.Lock()
		o.inflight = nil
		now := time.Now()
		if p.res.Err == nil {
			o.lastSyncAt = &now
			o.lastError = ""
		} else {
			o.lastError = p.res.Err.Error()
		}
		o.mu.Unlock()
		close(p.done)
	}()
	return promiseChan(p)
}

func promiseChan(p *promise) <-chan *Result {
	ch := make(chan *Result, 1)
	go func() {
		<-p.done
		ch <- p.res
	}()
	return ch
}

// runFullSync executes one cycle: product delta (25%), customer delta (50%),
// queue drain (100%). Sub-step failures are collected, never panicked — a
// misbehaving cycle must not stop the timer loops.
func (o *Orchestrator) runFullSync() *Result {
	ctx := context.Background()
	res := &Result{}

	counts, _ := o.store.Count(ctx)
	o.emit(events.Event{Type: events.SyncStarted, At: time.Now(), Queued: counts.Queued()})

	var errs []error
	if err := o.runDeltaCycle(ctx, model.ResourceProducts); err != nil {
		errs = append(errs, err)
	}
	o.emit(events.Event{Type: events.SyncProgress, At: time.Now(), Progress: 25})

	if err := o.runDeltaCycle(ctx, model.ResourceCustomers); err != nil {
		errs = append(errs, err)
	}
	o.emit(events.Event{Type: events.SyncProgress, At: time.Now(), Progress: 50})

	uploaded, failed, err := o.DrainQueue(ctx)
	res.Uploaded = uploaded
	res.Failed = failed
	if err != nil {
		errs = append(errs, err)
	}
	o.emit(events.Event{Type: events.SyncProgress, At: time.Now(), Progress: 100})

	res.Err = errors.Join(errs...)
	counts, _ = o.store.Count(ctx)
	if res.Err != nil {
		log.Error().Err(res.Err).Msg("syncer: full sync cycle failed")
		o.emit(events.Event{Type: events.SyncFailed, At: time.Now(), Error: res.Err.Error(), Queued: counts.Queued()})
	} else {
		o.emit(events.Event{Type: events.SyncCompleted, At: time.Now(), Queued: counts.Queued()})
	}
	return res
}

// runDeltaCycle pulls one resource's delta and applies it. The cursor only
// advances after the catalog application succeeds — if applying fails the
// same window is re-pulled next cycle instead of being lost.
func (o *Orchestrator) runDeltaCycle(ctx context.Context, resource string) error {
	cursor, err := o.cursors.Cursor(ctx, resource)
	if err != nil {
		return err
	}

	var next string
	switch resource {
	case model.ResourceProducts:
		delta, err := o.api.PullProductsDelta(ctx, cursor.Since)
		if err != nil {
			return fmt.Errorf("pull %s delta: %w", resource, err)
		}
		if err := o.catalog.ApplyProductDelta(ctx, delta); err != nil {
			return err
		}
		next = delta.Cursor
	case model.ResourceCustomers:
		delta, err := o.api.PullCustomersDelta(ctx, cursor.Since)
		if err != nil {
			return fmt.Errorf("pull %s delta: %w", resource, err)
		}
		if err := o.catalog.ApplyCustomerDelta(ctx, delta); err != nil {
			return err
		}
		next = delta.Cursor
	default:
		return fmt.Errorf("syncer: unknown resource %q", resource)
	}

	return o.cursors.Advance(ctx, resource, next)
}

// ── Queue drain ──────────────────────────────────────────────────────────────

// DrainQueue uploads pending sales strictly oldest-first, one at a time, to
// preserve server-side ordering and avoid burst load. A failed entry does not
// stop the cycle — later entries are still attempted. Returns the number of
// acknowledged and failed uploads.
func (o *Orchestrator) DrainQueue(ctx context.Context) (uploaded, failed int, err error) {
	o.drainMu.Lock()
	defer o.drainMu.Unlock()

	var afterID int64
	for {
		entry, nerr := o.store.NextPending(ctx, afterID)
		if nerr != nil {
			return uploaded, failed, nerr
		}
		if entry == nil {
			return uploaded, failed, nil
		}
		afterID = entry.ID

		if derr := o.drainOne(ctx, entry); derr != nil {
			failed++
		} else {
			uploaded++
		}
	}
}

// drainOne uploads a single queue entry and settles its state in the store.
func (o *Orchestrator) drainOne(ctx context.Context, entry *model.QueueEntry) error {
	sale, err := entry.Sale()
	if err != nil {
		// Corrupt payload can never succeed — park it for the operator.
		o.settleFailure(ctx, entry, fmt.Sprintf("corrupt payload: %v", err))
		return err
	}

	if err := o.store.MarkInFlight(ctx, entry.LocalID); err != nil {
		return err
	}

	result, upErr := o.api.UploadSale(ctx, sale)
	if upErr == nil {
		log.Info().
			Str("local_id", entry.LocalID).
			Str("server_id", result.ServerID).
			Int("attempts", entry.Attempts+1).
			Msg("syncer: sale uploaded")
		return o.store.MarkSucceeded(ctx, entry.LocalID)
	}

	// An ambiguous outcome (the request may have reached the server before
	// dying) is reconciled against /sales/status before counting the attempt.
	if ambiguousFailure(upErr) {
		if st, serr := o.api.SaleStatus(ctx, entry.LocalID); serr == nil && st.Exists {
			log.Info().
				Str("local_id", entry.LocalID).
				Str("server_id", st.ServerID).
				Msg("syncer: sale already on server, acknowledging")
			return o.store.MarkSucceeded(ctx, entry.LocalID)
		}
	}

	o.settleFailure(ctx, entry, upErr.Error())
	return upErr
}

// settleFailure records a failed attempt; an entry that just exhausted its
// retries is surfaced via event and copied to the dead letter queue.
func (o *Orchestrator) settleFailure(ctx context.Context, entry *model.QueueEntry, cause string) {
	updated, err := o.store.MarkFailed(ctx, entry.LocalID, cause)
	if err != nil {
		log.Error().Err(err).Str("local_id", entry.LocalID).Msg("syncer: failed to record upload failure")
		return
	}
	log.Warn().
		Str("local_id", entry.LocalID).
		Int("attempts", updated.Attempts).
		Str("status", updated.Status).
		Str("cause", cause).
		Msg("syncer: sale upload failed")

	if updated.Status == model.QueueFailedPermanent {
		o.emit(events.Event{
			Type:    events.QueueEntryFailed,
			At:      time.Now(),
			LocalID: entry.LocalID,
			Error:   cause,
		})
		queue.SendToDLQ(ctx, o.rdb, entry.LocalID, entry.Payload, cause, updated.Attempts)
	}
}

// ambiguousFailure reports whether the upload may have reached the server
// despite the error (no response / timeout / 5xx). A clean 4xx is
// unambiguous: the server saw and rejected it.
func ambiguousFailure(err error) bool {
	return transport.IsKind(err, transport.KindNetwork) ||
		transport.IsKind(err, transport.KindTimeout) ||
		transport.IsKind(err, transport.KindServerError)
}

// ── Enqueue path + status ────────────────────────────────────────────────────

// EnqueueSale durably queues a sale for upload and, when online, kicks an
// immediate full sync so the sale lands upstream without waiting for the next
// timer tick. Idempotent on the sale's local id.
func (o *Orchestrator) EnqueueSale(ctx context.Context, sale *model.Sale) (string, error) {
	localID, err := o.store.Enqueue(ctx, sale)
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	online := o.online && o.running
	o.mu.Unlock()
	if online {
		o.TriggerFullSync()
	}
	return localID, nil
}

// Status recomputes the derived sync status from the queue store and the
// orchestrator's flags.
func (o *Orchestrator) Status(ctx context.Context) Status {
	counts, err := o.store.Count(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		Online:          o.online,
		Syncing:         o.inflight != nil,
		Queued:          counts.Queued(),
		FailedPermanent: counts.FailedPermanent,
		LastSyncAt:      o.lastSyncAt,
		LastError:       o.lastError,
	}
	if err != nil && st.LastError == "" {
		st.LastError = err.Error()
	}
	return st
}

func (o *Orchestrator) emit(e events.Event) {
	if o.sink != nil {
		o.sink.Emit(context.Background(), e)
	}
}
