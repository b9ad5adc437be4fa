package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/fieldsync/internal/bus"
	"github.com/matheus3301/fieldsync/internal/metrics"
	"github.com/matheus3301/fieldsync/internal/netmon"
	"github.com/matheus3301/fieldsync/internal/remote"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	db      *store.DB
	bus     *bus.Bus
	online  *atomic.Bool
	monitor *netmon.Monitor
	hub     *Hub
	ts      *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "http.db"), store.WithDeviceID("dev-http"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	m := metrics.New()
	online := new(atomic.Bool)
	mon := netmon.New(netmon.Config{Platform: online.Load}, b, m, nil)
	pusher := remote.PusherFunc(func(context.Context, remote.Mutation) error { return nil })
	engine := intsync.NewEngine(db, pusher, mon, b, m, intsync.Config{}, nil)

	hub := NewHub(nil)
	followCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	hub.Follow(followCtx, b)

	srv := New("127.0.0.1:0", engine, mon, hub, m.Handler(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &env{db: db, bus: b, online: online, monitor: mon, hub: hub, ts: ts}
}

func (e *env) goOnline(t *testing.T) {
	t.Helper()
	e.online.Store(true)
	require.True(t, e.monitor.CheckNow(context.Background()))
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Head(e.ts.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusAndForceOffline(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.db.Create(ctx, store.Households, nil)
	require.NoError(t, err)

	resp, err := http.Get(e.ts.URL + "/api/sync/status")
	require.NoError(t, err)
	st := decode[intsync.Status](t, resp)
	assert.Equal(t, int64(1), st.Pending)
	assert.False(t, st.IsOnline)

	resp, err = http.Post(e.ts.URL+"/api/sync/force", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Contains(t, body.Error, "offline")
}

func TestForceThenClear(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.goOnline(t)
	for range 2 {
		_, err := e.db.Create(ctx, store.Samples, nil)
		require.NoError(t, err)
	}

	resp, err := http.Post(e.ts.URL+"/api/sync/force", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[intsync.CycleResult](t, resp)
	assert.Equal(t, 2, res.Synced)

	resp, err = http.Post(e.ts.URL+"/api/sync/clear", "application/json", nil)
	require.NoError(t, err)
	cleared := decode[map[string]int64](t, resp)
	assert.Equal(t, int64(2), cleared["removed"])

	resp, err = http.Post(e.ts.URL+"/api/sync/clear", "application/json", nil)
	require.NoError(t, err)
	cleared = decode[map[string]int64](t, resp)
	assert.Equal(t, int64(0), cleared["removed"])
}

func TestQueueListing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.db.Create(ctx, store.Households, nil)
	require.NoError(t, err)
	_, err = e.db.Create(ctx, store.Surveys, nil)
	require.NoError(t, err)

	resp, err := http.Get(e.ts.URL + "/api/sync/queue?status=pending&collection=surveys")
	require.NoError(t, err)
	out := decode[struct {
		Items []store.QueueItem `json:"items"`
	}](t, resp)
	require.Len(t, out.Items, 1)
	assert.Equal(t, store.Surveys, out.Items[0].ObjectStore)

	resp, err = http.Get(e.ts.URL + "/api/sync/queue?status=bogus")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequeueBody(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Post(e.ts.URL+"/api/sync/requeue", "application/json", strings.NewReader(`{"ids":["nope"]}`))
	require.NoError(t, err)
	out := decode[map[string]int64](t, resp)
	assert.Equal(t, int64(0), out["requeued"])

	resp, err = http.Post(e.ts.URL+"/api/sync/requeue", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	e.goOnline(t)

	resp, err := http.Get(e.ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fieldsync_network_online 1")
}

func TestWebsocketPushesStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/sync/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Envelope
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, bus.KindSyncStatusChanged, first.Type)

	require.Eventually(t, func() bool { return e.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	e.goOnline(t)
	_, err = e.db.Create(ctx, store.Households, nil)
	require.NoError(t, err)
	resp, err := http.Post(e.ts.URL+"/api/sync/force", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()

	seen := map[string]bool{}
	for !seen[bus.KindSyncCycleFinished] || !seen[bus.KindNetworkOnline] {
		var env Envelope
		require.NoError(t, conn.ReadJSON(&env))
		seen[env.Type] = true
	}
	assert.True(t, seen[bus.KindSyncCycleStarted])
}
