package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), path, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2", result.Version)
	}
}

func TestOperationsBeforeInitFail(t *testing.T) {
	db := New(filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()

	if _, err := db.Create(ctx, Households, NewDocument(nil)); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Create err = %v, want ErrNotInitialized", err)
	}
	if _, err := db.QueueCounts(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("QueueCounts err = %v, want ErrNotInitialized", err)
	}
}

func TestInitConcurrentCallersShareOneStore(t *testing.T) {
	db := New(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { _ = db.Close() })

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.Init(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Init: %v", err)
		}
	}
	if db.DeviceID() == "" {
		t.Error("device id should be resolved after Init")
	}
}

func TestDeviceIDPersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	db1, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	first := db1.DeviceID()
	_ = db1.Close()

	db2, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db2.Close() }()
	if db2.DeviceID() != first {
		t.Errorf("device id = %q, want %q", db2.DeviceID(), first)
	}
}

func TestCreateAssignsSystemFieldsAndEnqueues(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := fixedClock(start)
	db := testDB(t, WithClock(clock), WithDeviceID("dev-1"), WithCollectorID("col-1"))
	ctx := context.Background()

	doc, err := db.Create(ctx, Households, NewDocument(map[string]any{"address": "12 Main St", "version": 99}))
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID == "" {
		t.Fatal("id should be generated")
	}
	if doc.Version != 1 {
		t.Errorf("version = %d, want 1", doc.Version)
	}
	if doc.SyncStatus != StatusPending {
		t.Errorf("status = %q, want pending", doc.SyncStatus)
	}
	if !doc.CreatedAt.Equal(start) || !doc.UpdatedAt.Equal(start) {
		t.Errorf("timestamps = %v/%v, want %v", doc.CreatedAt, doc.UpdatedAt, start)
	}
	if doc.DeviceID != "dev-1" || doc.CollectorID != "col-1" {
		t.Errorf("attribution = %q/%q", doc.DeviceID, doc.CollectorID)
	}
	if _, ok := doc.Fields["version"]; ok {
		t.Error("system keys must not leak into domain fields")
	}

	items, err := db.QueueItems(ctx, QueueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("queue items = %d, want 1", len(items))
	}
	item := items[0]
	if item.Operation != OpCreate || item.ObjectStore != Households || item.RecordID != doc.ID {
		t.Errorf("unexpected item: %+v", item)
	}
	if item.SyncStatus != StatusPending || item.RetryCount != 0 {
		t.Errorf("item status = %q retries = %d", item.SyncStatus, item.RetryCount)
	}
	if len(item.Payload) == 0 {
		t.Error("create payload should carry the record")
	}
}

func TestCreateKeepsCallerID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	in := NewDocument(map[string]any{"name": "Ana"})
	in.ID = "p-1"
	doc, err := db.Create(ctx, Participants, in)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID != "p-1" {
		t.Errorf("id = %q, want p-1", doc.ID)
	}

	_, err = db.Create(ctx, Participants, in)
	var dup *DuplicateRecordError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateRecordError", err)
	}
	counts, _ := db.QueueCounts(ctx)
	if counts.Total != 1 {
		t.Errorf("failed create must not enqueue, total = %d", counts.Total)
	}
}

func TestUnknownCollectionRejected(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.Create(ctx, "widgets", NewDocument(nil)); !IsUnknownCollection(err) {
		t.Errorf("Create err = %v, want UnknownCollectionError", err)
	}
	if _, err := db.GetAll(ctx, "widgets"); !IsUnknownCollection(err) {
		t.Errorf("GetAll err = %v, want UnknownCollectionError", err)
	}
	if err := db.Delete(ctx, "widgets", "x"); !IsUnknownCollection(err) {
		t.Errorf("Delete err = %v, want UnknownCollectionError", err)
	}
}

func TestUpdateMergesAndBumpsVersion(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := fixedClock(start)
	db := testDB(t, WithClock(clock))
	ctx := context.Background()

	doc, err := db.Create(ctx, Samples, NewDocument(map[string]any{"barcode": "S-1", "volume": 2.5}))
	if err != nil {
		t.Fatal(err)
	}

	// The clock is frozen, so updatedAt must still move forward.
	updated, err := db.Update(ctx, Samples, doc.ID, map[string]any{"volume": 3.0, "id": "hijack"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ID != doc.ID {
		t.Errorf("id changed to %q", updated.ID)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}
	if !updated.UpdatedAt.After(doc.UpdatedAt) {
		t.Errorf("updatedAt %v should be after %v", updated.UpdatedAt, doc.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(doc.CreatedAt) {
		t.Error("createdAt must not change")
	}

	got, err := db.GetByID(ctx, Samples, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Fields["barcode"] != "S-1" || got.Fields["volume"] != json.Number("3") {
		t.Errorf("fields = %v", got.Fields)
	}
	if got.Version != 2 {
		t.Errorf("stored version = %d, want 2", got.Version)
	}

	items, _ := db.QueueItems(ctx, QueueFilter{RecordID: doc.ID})
	if len(items) != 2 || items[0].Operation != OpCreate || items[1].Operation != OpUpdate {
		t.Fatalf("queue = %+v", items)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	db := testDB(t)
	_, err := db.Update(context.Background(), Surveys, "nope", map[string]any{"a": 1})
	if !IsNotFound(err) {
		t.Errorf("err = %v, want NotFoundError", err)
	}
}

func TestDeleteEnqueuesAfterPendingCreate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	doc, err := db.Create(ctx, LabResults, NewDocument(map[string]any{"result": "negative"}))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Delete(ctx, LabResults, doc.ID); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetByID(ctx, LabResults, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("record should be gone")
	}

	items, _ := db.QueueItems(ctx, QueueFilter{RecordID: doc.ID})
	if len(items) != 2 {
		t.Fatalf("queue items = %d, want 2", len(items))
	}
	if items[0].Operation != OpCreate || items[1].Operation != OpDelete {
		t.Errorf("ops = %s, %s", items[0].Operation, items[1].Operation)
	}

	if err := db.Delete(ctx, LabResults, doc.ID); !IsNotFound(err) {
		t.Errorf("second delete err = %v, want NotFoundError", err)
	}
}

func TestWriteAndEnqueueAreAtomic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.conn.Exec(`
		CREATE TRIGGER fail_enqueue BEFORE INSERT ON sync_queue
		BEGIN SELECT RAISE(ABORT, 'simulated crash'); END`); err != nil {
		t.Fatal(err)
	}

	in := NewDocument(map[string]any{"name": "Team A"})
	in.ID = "t-1"
	if _, err := db.Create(ctx, TeamMembers, in); err == nil {
		t.Fatal("create should fail when enqueue fails")
	}
	got, err := db.GetByID(ctx, TeamMembers, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("record must not persist without its queue item")
	}
	n, _ := db.RecordCount(ctx, TeamMembers)
	if n != 0 {
		t.Errorf("record count = %d, want 0", n)
	}
}

func TestGetAllInsertionOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b"} {
		if _, err := db.Create(ctx, SampleTypes, NewDocument(map[string]any{"name": name})); err != nil {
			t.Fatal(err)
		}
	}
	docs, err := db.GetAll(ctx, SampleTypes)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("len = %d, want 3", len(docs))
	}
	for i, want := range []string{"c", "a", "b"} {
		if docs[i].Fields["name"] != want {
			t.Errorf("docs[%d] = %v, want %s", i, docs[i].Fields["name"], want)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetState(ctx, "missing"); err != nil || ok {
		t.Errorf("missing key: ok=%v err=%v", ok, err)
	}

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	if err := db.SetLastSyncAt(ctx, at); err != nil {
		t.Fatal(err)
	}
	got, err := db.LastSyncAt(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(at) {
		t.Errorf("last sync = %v, want %v", got, at)
	}
}

func TestLargeIntegersSurviveStore(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// 2^53 + 1 has no exact float64 form.
	const barcode = "9007199254740993"
	var body map[string]any
	dec := json.NewDecoder(strings.NewReader(`{"barcode":` + barcode + `}`))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		t.Fatal(err)
	}
	doc, err := db.Create(ctx, Samples, NewDocument(body))
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.GetByID(ctx, Samples, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Fields["barcode"] != json.Number(barcode) {
		t.Errorf("barcode = %v, want %s", got.Fields["barcode"], barcode)
	}

	if _, err := db.Update(ctx, Samples, doc.ID, map[string]any{"note": "relabelled"}); err != nil {
		t.Fatal(err)
	}
	items, err := db.QueueItems(ctx, QueueFilter{RecordID: doc.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if !strings.Contains(string(items[1].Payload), `"barcode":`+barcode) {
		t.Errorf("update payload = %s", items[1].Payload)
	}

	var decoded Document
	if err := json.Unmarshal([]byte(`{"id":"x","barcode":`+barcode+`}`), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Fields["barcode"] != json.Number(barcode) {
		t.Errorf("decoded barcode = %v", decoded.Fields["barcode"])
	}
}
