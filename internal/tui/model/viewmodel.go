package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/fieldsync/internal/api"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"github.com/matheus3301/fieldsync/internal/tui/ui"
)

// Daemon is the subset of the control client the TUI needs.
type Daemon interface {
	SyncStatus(ctx context.Context) (intsync.Status, error)
	ForceSync(ctx context.Context) (intsync.CycleResult, error)
	ClearSynced(ctx context.Context) (int64, error)
	ListQueue(ctx context.Context, f store.QueueFilter) ([]store.QueueItem, error)
	Requeue(ctx context.Context, ids ...string) (int64, error)
	NetworkStatus(ctx context.Context) (api.NetworkStatus, error)
	WatchSyncStatus(ctx context.Context) (<-chan intsync.Status, error)
}

// QueueLimit caps how many queue items one load fetches.
const QueueLimit = 200

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	daemon      Daemon
	status      intsync.Status
	network     api.NetworkStatus
	queue       []store.QueueItem
	queueFilter store.QueueFilter

	Flash *ui.FlashModel

	refreshCh chan struct{}
}

// NewViewModel creates a new view model backed by the daemon client.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{
		daemon:      d,
		queueFilter: store.QueueFilter{Limit: QueueLimit},
		Flash:       ui.NewFlashModel(),
		refreshCh:   make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the sync and network status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.daemon.SyncStatus(ctx)
	if err != nil {
		return err
	}
	ns, err := vm.daemon.NetworkStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.network = ns
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadQueue fetches queue items matching the current filter.
func (vm *ViewModel) LoadQueue(ctx context.Context) error {
	vm.mu.RLock()
	f := vm.queueFilter
	vm.mu.RUnlock()

	items, err := vm.daemon.ListQueue(ctx, f)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.queue = items
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SetQueueStatus narrows the queue listing to one status. An empty status
// shows every item.
func (vm *ViewModel) SetQueueStatus(s store.SyncStatus) error {
	if s != "" && !s.Valid() {
		return fmt.Errorf("unknown status %q", s)
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.queueFilter.Statuses = nil
	if s != "" {
		vm.queueFilter.Statuses = []store.SyncStatus{s}
	}
	return nil
}

// QueueStatus returns the status the queue listing is narrowed to.
func (vm *ViewModel) QueueStatus() store.SyncStatus {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if len(vm.queueFilter.Statuses) == 0 {
		return ""
	}
	return vm.queueFilter.Statuses[0]
}

// ForceSync asks the daemon for an immediate drain and reports the outcome
// through Flash.
func (vm *ViewModel) ForceSync(ctx context.Context) error {
	res, err := vm.daemon.ForceSync(ctx)
	if err != nil {
		if intsync.IsOffline(err) {
			vm.Flash.Warn("Cannot sync while offline")
		} else {
			vm.Flash.Err(err)
		}
		return err
	}
	msg := fmt.Sprintf("Synced %d of %d", res.Synced, res.Attempted)
	if res.Failed > 0 || res.Retried > 0 {
		vm.Flash.Warn(fmt.Sprintf("%s, %d retrying, %d failed", msg, res.Retried, res.Failed))
	} else {
		vm.Flash.Info(msg)
	}
	return vm.refreshAll(ctx)
}

// ClearSynced removes synced queue items.
func (vm *ViewModel) ClearSynced(ctx context.Context) error {
	n, err := vm.daemon.ClearSynced(ctx)
	if err != nil {
		vm.Flash.Err(err)
		return err
	}
	vm.Flash.Info(fmt.Sprintf("Cleared %d synced items", n))
	return vm.refreshAll(ctx)
}

// Requeue resets failed items for another attempt. With no ids every
// failed item is requeued.
func (vm *ViewModel) Requeue(ctx context.Context, ids ...string) error {
	n, err := vm.daemon.Requeue(ctx, ids...)
	if err != nil {
		vm.Flash.Err(err)
		return err
	}
	vm.Flash.Info(fmt.Sprintf("Requeued %d items", n))
	return vm.refreshAll(ctx)
}

// Watch applies streamed status updates until ctx is done or the stream
// ends.
func (vm *ViewModel) Watch(ctx context.Context) error {
	ch, err := vm.daemon.WatchSyncStatus(ctx)
	if err != nil {
		return err
	}
	for st := range ch {
		vm.mu.Lock()
		vm.status = st
		vm.network.Network.Online = st.IsOnline
		vm.mu.Unlock()
		vm.signalRefresh()
	}
	return ctx.Err()
}

func (vm *ViewModel) refreshAll(ctx context.Context) error {
	if err := vm.LoadStatus(ctx); err != nil {
		return err
	}
	return vm.LoadQueue(ctx)
}

// Status returns a snapshot of the sync status.
func (vm *ViewModel) Status() intsync.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Network returns a snapshot of the daemon's network status.
func (vm *ViewModel) Network() api.NetworkStatus {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.network
}

// Queue returns a snapshot of the loaded queue items.
func (vm *ViewModel) Queue() []store.QueueItem {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.queue
}

// Profile assembles the header data.
func (vm *ViewModel) Profile() *ui.ProfileData {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return &ui.ProfileData{
		Profile:    vm.network.Profile,
		DeviceID:   vm.network.DeviceID,
		State:      string(vm.network.State),
		Online:     vm.status.IsOnline,
		Pending:    vm.status.Pending,
		Failed:     vm.status.Failed,
		LastSyncAt: vm.status.LastSyncAt,
	}
}
