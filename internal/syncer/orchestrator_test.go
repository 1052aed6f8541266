package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"kioskpos/internal/catalog"
	"kioskpos/internal/dto"
	"kioskpos/internal/events"
	"kioskpos/internal/model"
	"kioskpos/internal/queue"
	"kioskpos/internal/transport"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Stubs ────────────────────────────────────────────────────────────────────

type stubAPI struct {
	mu            sync.Mutex
	heartbeatErr  error
	productDelta  *dto.ProductDelta
	productErr    error
	customerDelta *dto.CustomerDelta
	customerErr   error
	uploadFn      func(sale *model.Sale) (*dto.SaleUploadResult, error)
	statusFn      func(localID string) (*dto.SaleStatusResponse, error)
	uploads       []string
}

var _ API = (*stubAPI)(nil)

func newStubAPI() *stubAPI {
	return &stubAPI{
		productDelta:  &dto.ProductDelta{Cursor: "p-next"},
		customerDelta: &dto.CustomerDelta{Cursor: "c-next"},
		uploadFn: func(sale *model.Sale) (*dto.SaleUploadResult, error) {
			return &dto.SaleUploadResult{LocalID: sale.LocalID, ServerID: "srv-" + sale.LocalID, Status: "accepted"}, nil
		},
	}
}

func (a *stubAPI) Register(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	return &dto.RegisterResponse{DeviceID: "dev-1"}, nil
}

func (a *stubAPI) Heartbeat(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.heartbeatErr
}

func (a *stubAPI) setHeartbeatErr(err error) {
	a.mu.Lock()
	a.heartbeatErr = err
	a.mu.Unlock()
}

func (a *stubAPI) PullProductsDelta(ctx context.Context, since string) (*dto.ProductDelta, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.productDelta, a.productErr
}

func (a *stubAPI) PullCustomersDelta(ctx context.Context, since string) (*dto.CustomerDelta, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.customerDelta, a.customerErr
}

func (a *stubAPI) UploadSale(ctx context.Context, sale *model.Sale) (*dto.SaleUploadResult, error) {
	a.mu.Lock()
	a.uploads = append(a.uploads, sale.LocalID)
	fn := a.uploadFn
	a.mu.Unlock()
	return fn(sale)
}

func (a *stubAPI) SaleStatus(ctx context.Context, localID string) (*dto.SaleStatusResponse, error) {
	a.mu.Lock()
	fn := a.statusFn
	a.mu.Unlock()
	if fn == nil {
		return &dto.SaleStatusResponse{LocalID: localID}, nil
	}
	return fn(localID)
}

func (a *stubAPI) uploadCalls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.uploads))
	copy(out, a.uploads)
	return out
}

// memStore is an in-memory queue.Store with the same semantics as the SQLite
// implementation.
type memStore struct {
	mu          sync.Mutex
	seq         int64
	entries     []*model.QueueEntry
	maxAttempts int
}

var _ queue.Store = (*memStore)(nil)

func newMemStore(maxAttempts int) *memStore {
	return &memStore{maxAttempts: maxAttempts}
}

func (s *memStore) push(localID string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries = append(s.entries, &model.QueueEntry{
		ID:      s.seq,
		LocalID: localID,
		Payload: payload,
		Status:  model.QueuePending,
	})
}

func (s *memStore) find(localID string) *model.QueueEntry {
	for _, e := range s.entries {
		if e.LocalID == localID {
			return e
		}
	}
	return nil
}

func (s *memStore) Enqueue(ctx context.Context, sale *model.Sale) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.find(sale.LocalID); e != nil {
		return e.LocalID, nil
	}
	payload, err := json.Marshal(sale)
	if err != nil {
		return "", err
	}
	s.seq++
	s.entries = append(s.entries, &model.QueueEntry{
		ID:      s.seq,
		LocalID: sale.LocalID,
		Payload: payload,
		Status:  model.QueuePending,
	})
	return sale.LocalID, nil
}

func (s *memStore) NextPending(ctx context.Context, afterID int64) (*model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Status == model.QueuePending && e.ID > afterID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) MarkInFlight(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(localID)
	if e == nil || e.Status != model.QueuePending {
		return queue.ErrNotFound
	}
	e.Status = model.QueueInFlight
	return nil
}

func (s *memStore) MarkSucceeded(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.LocalID == localID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return queue.ErrNotFound
}

func (s *memStore) MarkFailed(ctx context.Context, localID string, cause string) (*model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(localID)
	if e == nil {
		return nil, queue.ErrNotFound
	}
	e.Attempts++
	e.LastError = &cause
	if e.Attempts >= s.maxAttempts {
		e.Status = model.QueueFailedPermanent
	} else {
		e.Status = model.QueuePending
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) Requeue(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(localID)
	if e == nil || e.Status != model.QueueFailedPermanent {
		return queue.ErrNotFound
	}
	e.Status = model.QueuePending
	e.Attempts = 0
	e.LastError = nil
	return nil
}

func (s *memStore) Count(ctx context.Context) (queue.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c queue.Counts
	for _, e := range s.entries {
		switch e.Status {
		case model.QueuePending:
			c.Pending++
		case model.QueueInFlight:
			c.InFlight++
		case model.QueueFailedPermanent:
			c.FailedPermanent++
		}
	}
	return c, nil
}

func (s *memStore) List(ctx context.Context, status string, limit int) ([]model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QueueEntry
	for _, e := range s.entries {
		if status == "" || e.Status == status {
			out = append(out, *e)
		}
	}
	return out, nil
}

type memCursors struct {
	mu     sync.Mutex
	since  map[string]string
	errSet map[string]error
}

var _ queue.CursorStore = (*memCursors)(nil)

func newMemCursors() *memCursors {
	return &memCursors{since: make(map[string]string)}
}

func (c *memCursors) Cursor(ctx context.Context, resource string) (*model.SyncCursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &model.SyncCursor{Resource: resource, Since: c.since[resource]}, nil
}

func (c *memCursors) Advance(ctx context.Context, resource string, since string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.since[resource] = since
	return nil
}

func (c *memCursors) get(resource string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.since[resource]
}

type memCatalog struct {
	mu          sync.Mutex
	productErr  error
	customerErr error
	applied     []string
}

var _ catalog.Store = (*memCatalog)(nil)

func (c *memCatalog) ApplyProductDelta(ctx context.Context, delta *dto.ProductDelta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.productErr != nil {
		return c.productErr
	}
	c.applied = append(c.applied, model.ResourceProducts)
	return nil
}

func (c *memCatalog) ApplyCustomerDelta(ctx context.Context, delta *dto.CustomerDelta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.customerErr != nil {
		return c.customerErr
	}
	c.applied = append(c.applied, model.ResourceCustomers)
	return nil
}

func (c *memCatalog) SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error) {
	return nil, nil
}

func (c *memCatalog) SearchCustomers(ctx context.Context, query string, limit int) ([]model.Customer, error) {
	return nil, nil
}

type recordSink struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Sink = (*recordSink)(nil)

func (s *recordSink) Emit(ctx context.Context, e events.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordSink) ofType(t events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// ── Fixtures ─────────────────────────────────────────────────────────────────

type fixture struct {
	api     *stubAPI
	store   *memStore
	cursors *memCursors
	catalog *memCatalog
	sink    *recordSink
	orch    *Orchestrator
}

func newFixture(maxAttempts int) *fixture {
	f := &fixture{
		api:     newStubAPI(),
		store:   newMemStore(maxAttempts),
		cursors: newMemCursors(),
		catalog: &memCatalog{},
		sink:    &recordSink{},
	}
	f.orch = New(f.api, f.store, f.cursors, f.catalog, f.sink, nil, Config{BranchID: "branch-1"})
	return f
}

func (f *fixture) enqueue(t *testing.T, localIDs ...string) {
	t.Helper()
	for _, id := range localIDs {
		sale := &model.Sale{
			LocalID:       id,
			BranchID:      "branch-1",
			Total:         decimal.RequireFromString("10.00"),
			PaymentStatus: "paid",
		}
		_, err := f.store.Enqueue(context.Background(), sale)
		require.NoError(t, err)
	}
}

func clientError(status int) error {
	return &transport.Error{Kind: transport.KindClientError, Status: status, Op: "upload sale", Err: errors.New("rejected")}
}

func serverError() error {
	return &transport.Error{Kind: transport.KindServerError, Status: 503, Op: "upload sale", Err: errors.New("upstream 503")}
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func TestHeartbeatEmitsOnlyOnEdges(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	f.api.setHeartbeatErr(errors.New("connection refused"))
	for i := 0; i < 3; i++ {
		f.orch.RunHeartbeat(ctx)
	}
	assert.Len(t, f.sink.ofType(events.ConnectionOffline), 1, "repeated failures must not re-emit offline")
	assert.Empty(t, f.sink.ofType(events.ConnectionOnline))
	assert.False(t, f.orch.Status(ctx).Online)
}

func TestHeartbeatCancelledProbeChangesNothing(t *testing.T) {
	f := newFixture(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.orch.RunHeartbeat(ctx)

	// A probe cut short by shutdown must not be read as an offline verdict.
	assert.Empty(t, f.sink.ofType(events.ConnectionOffline))
	assert.Empty(t, f.sink.ofType(events.ConnectionOnline))
}

func TestHeartbeatOnlineEdgeKicksFullSync(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.enqueue(t, "sale-1")

	f.api.setHeartbeatErr(errors.New("connection refused"))
	f.orch.RunHeartbeat(ctx)
	f.api.setHeartbeatErr(nil)
	f.orch.RunHeartbeat(ctx)

	assert.Len(t, f.sink.ofType(events.ConnectionOnline), 1)
	assert.True(t, f.orch.Status(ctx).Online)

	// The recovery edge starts a full cycle that drains the backlog.
	require.Eventually(t, func() bool {
		return len(f.sink.ofType(events.SyncCompleted)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"sale-1"}, f.api.uploadCalls())
}

// ── Full sync + dedupe ───────────────────────────────────────────────────────

func TestTriggerFullSyncSharedBetweenConcurrentCallers(t *testing.T) {
	f := newFixture(3)
	f.enqueue(t, "sale-1")

	gate := make(chan struct{})
	f.api.mu.Lock()
	f.api.uploadFn = func(sale *model.Sale) (*dto.SaleUploadResult, error) {
		<-gate
		return &dto.SaleUploadResult{LocalID: sale.LocalID, ServerID: "srv-1", Status: "accepted"}, nil
	}
	f.api.mu.Unlock()

	ch1 := f.orch.TriggerFullSync()
	ch2 := f.orch.TriggerFullSync()
	close(gate)

	r1 := <-ch1
	r2 := <-ch2
	assert.Same(t, r1, r2, "concurrent triggers must share one cycle's result")
	assert.Equal(t, 1, r1.Uploaded)
	assert.Equal(t, []string{"sale-1"}, f.api.uploadCalls(), "only one upload for one entry")

	// A later trigger starts a fresh cycle.
	r3 := <-f.orch.TriggerFullSync()
	assert.NotSame(t, r1, r3)
}

func TestFullSyncEmitsProgressAndCompletion(t *testing.T) {
	f := newFixture(3)
	f.enqueue(t, "sale-1", "sale-2")

	res := <-f.orch.TriggerFullSync()
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Uploaded)
	assert.Equal(t, 0, res.Failed)

	assert.Len(t, f.sink.ofType(events.SyncStarted), 1)
	progress := f.sink.ofType(events.SyncProgress)
	require.Len(t, progress, 3)
	assert.Equal(t, 25, progress[0].Progress)
	assert.Equal(t, 50, progress[1].Progress)
	assert.Equal(t, 100, progress[2].Progress)
	completed := f.sink.ofType(events.SyncCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, int64(0), completed[0].Queued)

	st := f.orch.Status(context.Background())
	assert.NotNil(t, st.LastSyncAt)
	assert.Empty(t, st.LastError)
}

func TestFullSyncCollectsSubStepFailures(t *testing.T) {
	f := newFixture(3)
	f.api.mu.Lock()
	f.api.productErr = errors.New("upstream 500")
	f.api.mu.Unlock()
	f.enqueue(t, "sale-1")

	res := <-f.orch.TriggerFullSync()
	require.Error(t, res.Err)
	// The failed product pull must not prevent the drain.
	assert.Equal(t, 1, res.Uploaded)
	assert.Len(t, f.sink.ofType(events.SyncFailed), 1)
	assert.NotEmpty(t, f.orch.Status(context.Background()).LastError)
}

// ── Delta cycles ─────────────────────────────────────────────────────────────

func TestDeltaCycleAdvancesCursorAfterApply(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	require.NoError(t, f.orch.runDeltaCycle(ctx, model.ResourceProducts))
	assert.Equal(t, "p-next", f.cursors.get(model.ResourceProducts))

	require.NoError(t, f.orch.runDeltaCycle(ctx, model.ResourceCustomers))
	assert.Equal(t, "c-next", f.cursors.get(model.ResourceCustomers))
}

func TestDeltaCycleKeepsCursorWhenApplyFails(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.cursors.since[model.ResourceProducts] = "p-old"
	f.catalog.productErr = errors.New("disk full")

	err := f.orch.runDeltaCycle(ctx, model.ResourceProducts)
	require.Error(t, err)
	assert.Equal(t, "p-old", f.cursors.get(model.ResourceProducts),
		"a failed apply must re-pull the same window next cycle")
}

func TestDeltaCycleKeepsCursorWhenPullFails(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.api.mu.Lock()
	f.api.productErr = errors.New("upstream 500")
	f.api.mu.Unlock()

	require.Error(t, f.orch.runDeltaCycle(ctx, model.ResourceProducts))
	assert.Empty(t, f.cursors.get(model.ResourceProducts))
}

// ── Queue drain ──────────────────────────────────────────────────────────────

func TestDrainContinuesPastFailedEntry(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.enqueue(t, "sale-1", "sale-2", "sale-3")

	f.api.mu.Lock()
	f.api.uploadFn = func(sale *model.Sale) (*dto.SaleUploadResult, error) {
		if sale.LocalID == "sale-2" {
			return nil, clientError(422)
		}
		return &dto.SaleUploadResult{LocalID: sale.LocalID, ServerID: "srv-" + sale.LocalID, Status: "accepted"}, nil
	}
	f.api.mu.Unlock()

	uploaded, failed, err := f.orch.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, uploaded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"sale-1", "sale-2", "sale-3"}, f.api.uploadCalls(),
		"a failed entry must not stop the cycle")

	e := f.store.find("sale-2")
	require.NotNil(t, e)
	assert.Equal(t, model.QueuePending, e.Status)
	assert.Equal(t, 1, e.Attempts)
	assert.Nil(t, f.store.find("sale-1"))
	assert.Nil(t, f.store.find("sale-3"))
}

func TestAmbiguousFailureReconciledAgainstServer(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.enqueue(t, "sale-1")

	f.api.mu.Lock()
	f.api.uploadFn = func(sale *model.Sale) (*dto.SaleUploadResult, error) {
		return nil, serverError()
	}
	f.api.statusFn = func(localID string) (*dto.SaleStatusResponse, error) {
		return &dto.SaleStatusResponse{LocalID: localID, Exists: true, ServerID: "srv-1"}, nil
	}
	f.api.mu.Unlock()

	uploaded, failed, err := f.orch.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, uploaded, "a sale already on the server counts as uploaded")
	assert.Equal(t, 0, failed)
	assert.Nil(t, f.store.find("sale-1"))
}

func TestAmbiguousFailureWithoutServerCopyCountsAttempt(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.enqueue(t, "sale-1")

	f.api.mu.Lock()
	f.api.uploadFn = func(sale *model.Sale) (*dto.SaleUploadResult, error) {
		return nil, serverError()
	}
	f.api.mu.Unlock()

	_, failed, err := f.orch.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	e := f.store.find("sale-1")
	require.NotNil(t, e)
	assert.Equal(t, 1, e.Attempts)
}

func TestUnambiguousRejectionSkipsReconciliation(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.enqueue(t, "sale-1")

	statusCalled := false
	f.api.mu.Lock()
	f.api.uploadFn = func(sale *model.Sale) (*dto.SaleUploadResult, error) {
		return nil, clientError(400)
	}
	f.api.statusFn = func(localID string) (*dto.SaleStatusResponse, error) {
		statusCalled = true
		return &dto.SaleStatusResponse{LocalID: localID}, nil
	}
	f.api.mu.Unlock()

	_, failed, err := f.orch.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.False(t, statusCalled, "a clean 4xx is not ambiguous")
}

func TestExhaustedEntryEmitsFailureEvent(t *testing.T) {
	f := newFixture(1) // single attempt allowed
	ctx := context.Background()
	f.enqueue(t, "sale-1")

	f.api.mu.Lock()
	f.api.uploadFn = func(sale *model.Sale) (*dto.SaleUploadResult, error) {
		return nil, clientError(422)
	}
	f.api.mu.Unlock()

	_, failed, err := f.orch.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	e := f.store.find("sale-1")
	require.NotNil(t, e)
	assert.Equal(t, model.QueueFailedPermanent, e.Status)

	evs := f.sink.ofType(events.QueueEntryFailed)
	require.Len(t, evs, 1)
	assert.Equal(t, "sale-1", evs[0].LocalID)
	assert.NotEmpty(t, evs[0].Error)
}

func TestCorruptPayloadParkedForOperator(t *testing.T) {
	f := newFixture(1)
	ctx := context.Background()
	f.store.push("sale-bad", []byte("{not json"))

	uploaded, failed, err := f.orch.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, uploaded)
	assert.Equal(t, 1, failed)
	assert.Empty(t, f.api.uploadCalls(), "a corrupt payload never reaches the wire")

	e := f.store.find("sale-bad")
	require.NotNil(t, e)
	assert.Equal(t, model.QueueFailedPermanent, e.Status)
	assert.Len(t, f.sink.ofType(events.QueueEntryFailed), 1)
}

// ── Enqueue path ─────────────────────────────────────────────────────────────

func TestEnqueueSaleWhileOfflineOnlyQueues(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	localID, err := f.orch.EnqueueSale(ctx, &model.Sale{
		LocalID:       "sale-1",
		BranchID:      "branch-1",
		Total:         decimal.RequireFromString("10.00"),
		PaymentStatus: "paid",
	})
	require.NoError(t, err)
	assert.Equal(t, "sale-1", localID)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.api.uploadCalls(), "no sync kick while offline")
	assert.Equal(t, int64(1), f.orch.Status(ctx).Queued)
}

func TestStatusReflectsQueueAndFlags(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.enqueue(t, "sale-1", "sale-2")

	st := f.orch.Status(ctx)
	assert.False(t, st.Online)
	assert.False(t, st.Syncing)
	assert.Equal(t, int64(2), st.Queued)
	assert.Equal(t, int64(0), st.FailedPermanent)
	assert.Nil(t, st.LastSyncAt)
}

func TestStartStopIdempotent(t *testing.T) {
	f := newFixture(3)
	f.orch.cfg.HeartbeatInterval = time.Hour
	f.orch.cfg.DeltaInterval = time.Hour

	f.orch.Start()
	f.orch.Start()
	f.orch.Stop()
	f.orch.Stop()

	// Starting again after a stop must work.
	f.orch.Start()
	f.orch.Stop()
	_ = fmt.Sprintf("%v", f.orch.Status(context.Background()))
}
