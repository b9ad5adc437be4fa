package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/fieldsync/internal/bus"
	"github.com/matheus3301/fieldsync/internal/remote"
	"github.com/matheus3301/fieldsync/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Connectivity reports whether the remote is reachable.
type Connectivity interface {
	IsOnline() bool
}

// Recorder receives drain observations.
type Recorder interface {
	ObservePush(outcome string)
	ObserveDrain(d time.Duration)
	SetQueueItems(pending, synced, failed int64)
}

// Push outcomes handed to the Recorder.
const (
	outcomeSynced  = "synced"
	outcomeRetry   = "retry"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

// Config tunes the drain loop.
type Config struct {
	Interval       time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns the stock drain settings.
func DefaultConfig() Config {
	return Config{
		Interval:       2 * time.Minute,
		MaxRetries:     3,
		BackoffBase:    5 * time.Second,
		BackoffMax:     5 * time.Minute,
		RequestTimeout: 30 * time.Second,
	}
}

// Status is the aggregate view handed to UI consumers.
type Status struct {
	store.QueueCounts
	IsOnline   bool      `json:"isOnline"`
	IsRunning  bool      `json:"isRunning"`
	LastSyncAt time.Time `json:"lastSyncAt,omitzero"`
	LastError  string    `json:"lastError,omitempty"`
}

// CycleResult summarises one drain.
type CycleResult struct {
	Forced      bool          `json:"forced"`
	Attempted   int           `json:"attempted"`
	Synced      int           `json:"synced"`
	Retried     int           `json:"retried"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Interrupted bool          `json:"interrupted"`
	Duration    time.Duration `json:"duration"`
}

// ItemFailure is the payload of sync.item_failed events.
type ItemFailure struct {
	ItemID      string `json:"itemId"`
	ObjectStore string `json:"objectStore"`
	RecordID    string `json:"recordId"`
	RetryCount  int    `json:"retryCount"`
	Terminal    bool   `json:"terminal"`
	Error       string `json:"error"`
}

// Engine replays the sync queue against the remote. Drains run on a timer,
// on every offline to online transition and on demand. At most one drain
// runs at a time. Concurrent requests of the same kind share one pass; a
// forced request never joins an automatic pass, it waits for it and then
// runs its own.
type Engine struct {
	db     *store.DB
	pusher remote.Pusher
	net    Connectivity
	bus    *bus.Bus
	rec    Recorder
	logger *zap.Logger
	cfg    Config
	now    func() time.Time

	group   singleflight.Group
	drainMu sync.Mutex
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a sync engine. rec may be nil.
func NewEngine(db *store.DB, pusher remote.Pusher, net Connectivity, b *bus.Bus, rec Recorder, cfg Config, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = max(def.BackoffMax, cfg.BackoffBase)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		pusher: pusher,
		net:    net,
		bus:    b,
		rec:    rec,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start runs the automatic drain loop until Stop or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	var events <-chan bus.Event
	unsub := func() {}
	if e.bus != nil {
		events, unsub = e.bus.Subscribe(bus.KindNetworkOnline, 4)
	}

	go func() {
		defer close(e.done)
		defer unsub()
		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()

		e.runAutomatic(ctx, "startup")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.runAutomatic(ctx, "interval")
			case <-events:
				e.runAutomatic(ctx, "network_online")
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight drain to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (e *Engine) runAutomatic(ctx context.Context, trigger string) {
	res, err := e.RunCycle(ctx)
	if err != nil {
		e.logger.Error("sync cycle failed", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	if res.Attempted > 0 || res.Skipped > 0 {
		e.logger.Info("sync cycle done",
			zap.String("trigger", trigger),
			zap.Int("attempted", res.Attempted),
			zap.Int("synced", res.Synced),
			zap.Int("retried", res.Retried),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
			zap.Duration("duration", res.Duration))
	}
}

// RunCycle performs one automatic drain. It is a no-op while offline, and
// it only sends items whose backoff has elapsed.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	if !e.isOnline() {
		return CycleResult{}, nil
	}
	return e.drain(ctx, false)
}

// ForceSyncNow drains every pending item immediately, ignoring backoff. It
// fails with OfflineError while the remote is unreachable.
func (e *Engine) ForceSyncNow(ctx context.Context) (CycleResult, error) {
	if !e.isOnline() {
		return CycleResult{}, &OfflineError{}
	}
	return e.drain(ctx, true)
}

// GetSyncStatus aggregates the queue and connectivity state. It never
// mutates anything.
func (e *Engine) GetSyncStatus(ctx context.Context) (Status, error) {
	counts, err := e.db.QueueCounts(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("queue counts: %w", err)
	}
	last, err := e.db.LastSyncAt(ctx)
	if err != nil {
		return Status{}, err
	}
	lastErr, _, err := e.db.GetState(ctx, store.StateLastError)
	if err != nil {
		return Status{}, err
	}
	return Status{
		QueueCounts: counts,
		IsOnline:    e.isOnline(),
		IsRunning:   e.running.Load(),
		LastSyncAt:  last,
		LastError:   lastErr,
	}, nil
}

// ClearSyncedItems purges synced queue items and returns how many went.
func (e *Engine) ClearSyncedItems(ctx context.Context) (int64, error) {
	n, err := e.db.ClearSyncedItems(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("cleared synced items", zap.Int64("count", n))
	}
	e.publishStatus(ctx)
	return n, nil
}

// RequeueFailed returns error items to pending. With no ids every error
// item is requeued.
func (e *Engine) RequeueFailed(ctx context.Context, ids ...string) (int64, error) {
	n, err := e.db.RequeueFailed(ctx, ids...)
	if err != nil {
		return 0, err
	}
	e.logger.Info("requeued failed items", zap.Int64("count", n))
	e.publishStatus(ctx)
	return n, nil
}

// ListQueue returns queue items matching the filter.
func (e *Engine) ListQueue(ctx context.Context, f store.QueueFilter) ([]store.QueueItem, error) {
	return e.db.QueueItems(ctx, f)
}

// Identity returns the device and default collector stamped on new records.
func (e *Engine) Identity() (deviceID, collectorID string) {
	return e.db.DeviceID(), e.db.CollectorID()
}

func (e *Engine) isOnline() bool {
	return e.net == nil || e.net.IsOnline()
}

// drain coalesces concurrent callers of the same kind onto one pass and
// serializes passes.
func (e *Engine) drain(ctx context.Context, force bool) (CycleResult, error) {
	key := "auto"
	if force {
		key = "force"
	}
	v, err, _ := e.group.Do(key, func() (any, error) {
		e.drainMu.Lock()
		defer e.drainMu.Unlock()
		return e.drainOnce(ctx, force)
	})
	res, _ := v.(CycleResult)
	return res, err
}

func (e *Engine) drainOnce(ctx context.Context, force bool) (CycleResult, error) {
	start := e.now()
	res := CycleResult{Forced: force}

	e.running.Store(true)
	defer e.running.Store(false)
	e.emit(bus.KindSyncCycleStarted, res)

	items, err := e.db.PendingQueue(ctx)
	if err != nil {
		return res, fmt.Errorf("load queue: %w", err)
	}

	// Per-record FIFO: once a record is blocked, its later items wait.
	blocked := make(map[string]bool)
	var lastErr string

	for _, item := range items {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		key := item.ObjectStore + "/" + item.RecordID
		if blocked[key] {
			if item.SyncStatus == store.StatusPending {
				res.Skipped++
				e.observe(outcomeSkipped)
			}
			continue
		}
		if item.SyncStatus == store.StatusError {
			blocked[key] = true
			continue
		}
		if !force && item.NextAttemptAt.After(e.now()) {
			blocked[key] = true
			res.Skipped++
			e.observe(outcomeSkipped)
			continue
		}
		if !e.isOnline() {
			res.Interrupted = true
			break
		}

		res.Attempted++
		pushErr := e.push(ctx, item)
		if pushErr == nil {
			if err := e.db.MarkItemSynced(ctx, item.ID); err != nil {
				return e.finish(ctx, res, start, lastErr), fmt.Errorf("mark %s synced: %w", item.ID, err)
			}
			res.Synced++
			e.observe(outcomeSynced)
			continue
		}

		blocked[key] = true
		attempt := item.RetryCount + 1
		next := e.now().Add(e.backoff(item.RetryCount))
		updated, err := e.db.MarkItemFailed(ctx, item.ID, pushErr.Error(), e.cfg.MaxRetries, next)
		if err != nil {
			return e.finish(ctx, res, start, lastErr), fmt.Errorf("mark %s failed: %w", item.ID, err)
		}
		lastErr = pushErr.Error()

		failure := ItemFailure{
			ItemID:      item.ID,
			ObjectStore: item.ObjectStore,
			RecordID:    item.RecordID,
			RetryCount:  updated.RetryCount,
			Terminal:    updated.SyncStatus == store.StatusError,
			Error:       pushErr.Error(),
		}
		if failure.Terminal {
			res.Failed++
			e.observe(outcomeFailed)
			terr := &TerminalSyncError{ItemID: item.ID, Retries: updated.RetryCount, Err: pushErr}
			e.logger.Error("sync item failed permanently",
				zap.String("collection", item.ObjectStore),
				zap.String("record_id", item.RecordID),
				zap.Error(terr))
		} else {
			res.Retried++
			e.observe(outcomeRetry)
			terr := &TransientSyncError{ItemID: item.ID, Attempt: attempt, Err: pushErr}
			e.logger.Warn("sync item will retry",
				zap.String("collection", item.ObjectStore),
				zap.String("record_id", item.RecordID),
				zap.Time("next_attempt_at", next),
				zap.Error(terr))
		}
		e.emit(bus.KindSyncItemFailed, failure)
	}

	return e.finish(ctx, res, start, lastErr), nil
}

func (e *Engine) push(ctx context.Context, item store.QueueItem) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	return e.pusher.Push(ctx, remote.FromQueueItem(item))
}

// finish persists the cycle checkpoint and publishes the new status.
func (e *Engine) finish(ctx context.Context, res CycleResult, start time.Time, lastErr string) CycleResult {
	end := e.now()
	res.Duration = end.Sub(start)
	if e.rec != nil {
		e.rec.ObserveDrain(res.Duration)
	}

	// Checkpoints are written even if the caller's context is done.
	wctx := context.WithoutCancel(ctx)
	if !res.Interrupted {
		if err := e.db.SetLastSyncAt(wctx, end); err != nil {
			e.logger.Warn("failed to save last sync time", zap.Error(err))
		}
	}
	if err := e.db.SetState(wctx, store.StateLastError, lastErr); err != nil {
		e.logger.Warn("failed to save last sync error", zap.Error(err))
	}

	e.emit(bus.KindSyncCycleFinished, res)
	e.running.Store(false)
	e.publishStatus(wctx)
	return res
}

func (e *Engine) publishStatus(ctx context.Context) {
	st, err := e.GetSyncStatus(ctx)
	if err != nil {
		e.logger.Warn("failed to read sync status", zap.Error(err))
		return
	}
	if e.rec != nil {
		e.rec.SetQueueItems(st.Pending, st.Synced, st.Failed)
	}
	e.emit(bus.KindSyncStatusChanged, st)
}

// backoff returns the delay before the next automatic attempt after
// retries failed attempts: base, 2*base, 4*base, ... capped at max.
func (e *Engine) backoff(retries int) time.Duration {
	d := e.cfg.BackoffBase
	for range retries {
		d *= 2
		if d >= e.cfg.BackoffMax {
			return e.cfg.BackoffMax
		}
	}
	return min(d, e.cfg.BackoffMax)
}

func (e *Engine) observe(outcome string) {
	if e.rec != nil {
		e.rec.ObservePush(outcome)
	}
}

func (e *Engine) emit(kind string, payload any) {
	if e.bus != nil {
		e.bus.Emit(kind, payload)
	}
}

// Degraded reports whether any item failed during the cycle.
func (r CycleResult) Degraded() bool {
	return r.Failed > 0 || r.Retried > 0
}
