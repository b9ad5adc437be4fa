package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/fieldsync/internal/api"
	"github.com/matheus3301/fieldsync/internal/netmon"
	"github.com/matheus3301/fieldsync/internal/status"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDaemon struct {
	status     intsync.Status
	network    api.NetworkStatus
	queue      []store.QueueItem
	lastFilter store.QueueFilter
	forceErr   error
	result     intsync.CycleResult
	requeued   []string
	cleared    int
	watch      chan intsync.Status
}

func (f *fakeDaemon) SyncStatus(context.Context) (intsync.Status, error) { return f.status, nil }

func (f *fakeDaemon) ForceSync(context.Context) (intsync.CycleResult, error) {
	return f.result, f.forceErr
}

func (f *fakeDaemon) ClearSynced(context.Context) (int64, error) {
	f.cleared++
	return 2, nil
}

func (f *fakeDaemon) ListQueue(_ context.Context, flt store.QueueFilter) ([]store.QueueItem, error) {
	f.lastFilter = flt
	return f.queue, nil
}

func (f *fakeDaemon) Requeue(_ context.Context, ids ...string) (int64, error) {
	f.requeued = ids
	return int64(len(ids)), nil
}

func (f *fakeDaemon) NetworkStatus(context.Context) (api.NetworkStatus, error) {
	return f.network, nil
}

func (f *fakeDaemon) WatchSyncStatus(context.Context) (<-chan intsync.Status, error) {
	return f.watch, nil
}

func newFake() *fakeDaemon {
	st := intsync.Status{IsOnline: true, LastSyncAt: time.Unix(1_700_000_000, 0)}
	st.Pending = 3
	st.Failed = 1
	return &fakeDaemon{
		status: st,
		network: api.NetworkStatus{
			Profile:  "field",
			DeviceID: "dev-1",
			State:    status.Online,
			Network:  netmon.Status{Online: true},
		},
		queue: []store.QueueItem{{ID: "q1", ObjectStore: "surveys", SyncStatus: store.StatusError}},
	}
}

func TestLoadStatusFillsProfile(t *testing.T) {
	d := newFake()
	vm := NewViewModel(d)

	require.NoError(t, vm.LoadStatus(context.Background()))

	p := vm.Profile()
	assert.Equal(t, "field", p.Profile)
	assert.Equal(t, "dev-1", p.DeviceID)
	assert.Equal(t, "ONLINE", p.State)
	assert.True(t, p.Online)
	assert.EqualValues(t, 3, p.Pending)
	assert.EqualValues(t, 1, p.Failed)

	select {
	case <-vm.RefreshCh():
	default:
		t.Fatal("expected a refresh signal")
	}
}

func TestQueueFilterIsPassedThrough(t *testing.T) {
	d := newFake()
	vm := NewViewModel(d)

	require.NoError(t, vm.SetQueueStatus(store.StatusError))
	require.NoError(t, vm.LoadQueue(context.Background()))
	assert.Equal(t, []store.SyncStatus{store.StatusError}, d.lastFilter.Statuses)
	assert.Equal(t, QueueLimit, d.lastFilter.Limit)
	assert.Len(t, vm.Queue(), 1)
	assert.Equal(t, store.StatusError, vm.QueueStatus())

	require.NoError(t, vm.SetQueueStatus(""))
	require.NoError(t, vm.LoadQueue(context.Background()))
	assert.Empty(t, d.lastFilter.Statuses)

	assert.Error(t, vm.SetQueueStatus("bogus"))
}

func TestForceSyncOfflineWarns(t *testing.T) {
	d := newFake()
	d.forceErr = &intsync.OfflineError{}
	vm := NewViewModel(d)

	err := vm.ForceSync(context.Background())
	require.Error(t, err)
	assert.True(t, intsync.IsOffline(err))
	assert.Equal(t, "Cannot sync while offline", vm.Flash.Get())
}

func TestForceSyncReportsCounts(t *testing.T) {
	d := newFake()
	d.result = intsync.CycleResult{Attempted: 4, Synced: 3, Retried: 1}
	vm := NewViewModel(d)

	require.NoError(t, vm.ForceSync(context.Background()))
	msg := vm.Flash.GetMessage()
	require.NotNil(t, msg)
	assert.Equal(t, "Synced 3 of 4, 1 retrying, 0 failed", msg.Text)
	assert.Len(t, vm.Queue(), 1)
}

func TestForceSyncOtherErrorFlashes(t *testing.T) {
	d := newFake()
	d.forceErr = errors.New("boom")
	vm := NewViewModel(d)

	require.Error(t, vm.ForceSync(context.Background()))
	assert.Equal(t, "boom", vm.Flash.Get())
}

func TestClearAndRequeue(t *testing.T) {
	d := newFake()
	vm := NewViewModel(d)
	ctx := context.Background()

	require.NoError(t, vm.ClearSynced(ctx))
	assert.Equal(t, 1, d.cleared)
	assert.Equal(t, "Cleared 2 synced items", vm.Flash.Get())

	require.NoError(t, vm.Requeue(ctx, "q1"))
	assert.Equal(t, []string{"q1"}, d.requeued)
	assert.Equal(t, "Requeued 1 items", vm.Flash.Get())
}

func TestWatchAppliesUpdates(t *testing.T) {
	d := newFake()
	d.watch = make(chan intsync.Status, 2)
	vm := NewViewModel(d)

	next := intsync.Status{IsOnline: false}
	next.Pending = 9
	d.watch <- next
	close(d.watch)

	require.NoError(t, vm.Watch(context.Background()))
	assert.EqualValues(t, 9, vm.Status().Pending)
	assert.False(t, vm.Network().Network.Online)
}
