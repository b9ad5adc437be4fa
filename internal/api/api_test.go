package api

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/fieldsync/internal/bus"
	"github.com/matheus3301/fieldsync/internal/netmon"
	"github.com/matheus3301/fieldsync/internal/remote"
	"github.com/matheus3301/fieldsync/internal/status"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type fixture struct {
	db      *store.DB
	bus     *bus.Bus
	online  *atomic.Bool
	monitor *netmon.Monitor
	records *RecordService
	sync    *SyncService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "api.db"), store.WithDeviceID("dev-api"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	online := new(atomic.Bool)
	mon := netmon.New(netmon.Config{Platform: online.Load}, b, nil, nil)
	pusher := remote.PusherFunc(func(context.Context, remote.Mutation) error { return nil })
	engine := intsync.NewEngine(db, pusher, mon, b, nil, intsync.Config{}, nil)
	machine := status.NewMachine(b)

	return &fixture{
		db:      db,
		bus:     b,
		online:  online,
		monitor: mon,
		records: NewRecordService(db, b, nil),
		sync:    NewSyncService(engine, mon, machine, b, "test", nil),
	}
}

func (f *fixture) setOnline(t *testing.T, online bool) {
	t.Helper()
	f.online.Store(online)
	if got := f.monitor.CheckNow(context.Background()); got != online {
		t.Fatalf("CheckNow() = %v, want %v", got, online)
	}
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRecordServiceCreateAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	events, unsub := f.bus.Subscribe(bus.KindRecordChanged, 4)
	defer unsub()

	resp, err := f.records.Create(ctx, mustStruct(t, map[string]any{
		"collection": store.Households,
		"record":     map[string]any{"name": "Casa 12", "village": "Nkhata"},
	}))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	var doc store.Document
	if err := FromStruct(resp, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.ID == "" || doc.Version != 1 || doc.SyncStatus != store.StatusPending {
		t.Fatalf("created = %+v", doc.Record)
	}
	if doc.Fields["name"] != "Casa 12" {
		t.Errorf("name = %v", doc.Fields["name"])
	}

	select {
	case evt := <-events:
		change, ok := evt.Payload.(RecordChange)
		if !ok || change.ID != doc.ID || change.Operation != store.OpCreate {
			t.Errorf("event payload = %#v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no record.changed event")
	}

	got, err := f.records.Get(ctx, mustStruct(t, map[string]any{"collection": store.Households, "id": doc.ID}))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.GetFields()["village"].GetStringValue() != "Nkhata" {
		t.Errorf("village = %v", got.GetFields()["village"])
	}
}

func TestRecordServiceUpdateListDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.db.Create(ctx, store.Samples, store.NewDocument(map[string]any{"barcode": "S-1"}))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := f.records.Update(ctx, mustStruct(t, map[string]any{
		"collection": store.Samples,
		"id":         created.ID,
		"fields":     map[string]any{"volume": 2.5},
	}))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if v := resp.GetFields()["version"].GetNumberValue(); v != 2 {
		t.Errorf("version = %v, want 2", v)
	}
	if b := resp.GetFields()["barcode"].GetStringValue(); b != "S-1" {
		t.Errorf("barcode = %q, want merged S-1", b)
	}

	list, err := f.records.List(ctx, mustStruct(t, map[string]any{"collection": store.Samples}))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(list.GetFields()["records"].GetListValue().GetValues()); n != 1 {
		t.Errorf("List() returned %d records, want 1", n)
	}

	if _, err := f.records.Delete(ctx, mustStruct(t, map[string]any{"collection": store.Samples, "id": created.ID})); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	list, err = f.records.List(ctx, mustStruct(t, map[string]any{"collection": store.Samples}))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(list.GetFields()["records"].GetListValue().GetValues()); n != 0 {
		t.Errorf("List() after delete returned %d records", n)
	}
}

func TestRecordServiceErrorCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"unknown collection", func() error {
			_, err := f.records.Create(ctx, mustStruct(t, map[string]any{"collection": "nope"}))
			return err
		}, codes.InvalidArgument},
		{"update missing", func() error {
			_, err := f.records.Update(ctx, mustStruct(t, map[string]any{"collection": store.Surveys, "id": "x"}))
			return err
		}, codes.NotFound},
		{"delete missing", func() error {
			_, err := f.records.Delete(ctx, mustStruct(t, map[string]any{"collection": store.Surveys, "id": "x"}))
			return err
		}, codes.NotFound},
		{"get missing", func() error {
			_, err := f.records.Get(ctx, mustStruct(t, map[string]any{"collection": store.Surveys, "id": "x"}))
			return err
		}, codes.NotFound},
		{"update without id", func() error {
			_, err := f.records.Update(ctx, mustStruct(t, map[string]any{"collection": store.Surveys}))
			return err
		}, codes.InvalidArgument},
		{"duplicate id", func() error {
			req := mustStruct(t, map[string]any{"collection": store.Surveys, "record": map[string]any{"id": "dup"}})
			if _, err := f.records.Create(ctx, req); err != nil {
				return err
			}
			_, err := f.records.Create(ctx, req)
			return err
		}, codes.AlreadyExists},
		{"create with wrong field type", func() error {
			_, err := f.records.Create(ctx, mustStruct(t, map[string]any{
				"collection": store.Households,
				"record":     map[string]any{"code": "HH-9", "members": "many"},
			}))
			return err
		}, codes.InvalidArgument},
		{"update with wrong field type", func() error {
			_, err := f.records.Update(ctx, mustStruct(t, map[string]any{
				"collection": store.Participants,
				"id":         "x",
				"fields":     map[string]any{"consented": "yes"},
			}))
			return err
		}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if got := grpcstatus.Code(err); got != tt.want {
				t.Errorf("code = %v, want %v (err = %v)", got, tt.want, err)
			}
		})
	}
}

func TestForceSyncNowOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.db.Create(ctx, store.Households, nil); err != nil {
		t.Fatal(err)
	}
	_, err := f.sync.ForceSyncNow(ctx, &emptypb.Empty{})
	if got := grpcstatus.Code(err); got != codes.Unavailable {
		t.Fatalf("code = %v, want Unavailable", got)
	}

	resp, err := f.sync.GetSyncStatus(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatal(err)
	}
	var st intsync.Status
	if err := FromStruct(resp, &st); err != nil {
		t.Fatal(err)
	}
	if st.Pending != 1 || st.IsOnline {
		t.Errorf("status = %+v, want 1 pending and offline", st)
	}
}

func TestForceSyncNowOnlineAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setOnline(t, true)

	for range 3 {
		if _, err := f.db.Create(ctx, store.Participants, nil); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := f.sync.ForceSyncNow(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("ForceSyncNow() error = %v", err)
	}
	var res intsync.CycleResult
	if err := FromStruct(resp, &res); err != nil {
		t.Fatal(err)
	}
	if res.Synced != 3 || !res.Forced {
		t.Errorf("result = %+v", res)
	}

	cleared, err := f.sync.ClearSyncedItems(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatal(err)
	}
	if n := cleared.GetFields()["removed"].GetNumberValue(); n != 3 {
		t.Errorf("removed = %v, want 3", n)
	}
}

func TestListQueueFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.db.Create(ctx, store.Households, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.Update(ctx, store.Households, a.ID, map[string]any{"x": 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.Create(ctx, store.Samples, nil); err != nil {
		t.Fatal(err)
	}

	resp, err := f.sync.ListQueue(ctx, mustStruct(t, map[string]any{
		"collection": store.Households,
		"statuses":   []any{"pending"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Items []store.QueueItem `json:"items"`
	}
	if err := FromStruct(resp, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(out.Items))
	}
	if out.Items[0].Operation != store.OpCreate || out.Items[1].Operation != store.OpUpdate {
		t.Errorf("order = %s, %s", out.Items[0].Operation, out.Items[1].Operation)
	}

	resp, err = f.sync.ListQueue(ctx, mustStruct(t, map[string]any{"limit": 1}))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(resp.GetFields()["items"].GetListValue().GetValues()); n != 1 {
		t.Errorf("limit 1 returned %d items", n)
	}
}

func TestGetNetworkStatus(t *testing.T) {
	f := newFixture(t)
	f.setOnline(t, true)

	resp, err := f.sync.GetNetworkStatus(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatal(err)
	}
	var ns NetworkStatus
	if err := FromStruct(resp, &ns); err != nil {
		t.Fatal(err)
	}
	if ns.Profile != "test" || ns.DeviceID != "dev-api" || !ns.Network.Online {
		t.Errorf("network status = %+v", ns)
	}
	if ns.State != status.Booting {
		t.Errorf("state = %s, want BOOTING without a follower", ns.State)
	}
}

func TestToStructRejectsNonObjects(t *testing.T) {
	if _, err := ToStruct([]int{1, 2}); err == nil {
		t.Error("ToStruct(slice) should fail")
	}
}
