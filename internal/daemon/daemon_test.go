package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/fieldsync/internal/api"
	"github.com/matheus3301/fieldsync/internal/bus"
	"github.com/matheus3301/fieldsync/internal/config"
	"github.com/matheus3301/fieldsync/internal/lock"
	"github.com/matheus3301/fieldsync/internal/metrics"
	"github.com/matheus3301/fieldsync/internal/netmon"
	"github.com/matheus3301/fieldsync/internal/profile"
	"github.com/matheus3301/fieldsync/internal/remote"
	"github.com/matheus3301/fieldsync/internal/status"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"github.com/matheus3301/fieldsync/internal/tui/client"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

// shortHome points FIELDSYNC_HOME at a /tmp dir to stay under the 104-char
// Unix socket limit on macOS.
func shortHome(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "fs-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(profile.HomeEnv, dir)
	return dir
}

// fakeBackend accepts every mutation and remembers them.
type fakeBackend struct {
	mu        sync.Mutex
	mutations []remote.Mutation
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		w.WriteHeader(http.StatusOK)
	case "/sync":
		var m remote.Mutation
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.mutations = append(b.mutations, m)
		b.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mutations)
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.DeviceID = "dev-daemon"
	cfg.Remote.BaseURL = baseURL
	cfg.Network.ProbeInterval = config.Duration{Duration: time.Hour}
	cfg.Sync.Interval = config.Duration{Duration: time.Hour}
	cfg.HTTP.Addr = "127.0.0.1:0"
	return cfg
}

func TestDaemonLifecycle(t *testing.T) {
	shortHome(t)
	backend := &fakeBackend{}
	ts := httptest.NewServer(backend)
	defer ts.Close()

	app := fxtest.New(t,
		Module(Params{ProfileName: "test", Config: testConfig(ts.URL)}),
		fx.NopLogger,
	)
	app.RequireStart()

	c, err := client.New(profile.SocketPath("test"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ns, err := c.NetworkStatus(ctx)
	if err != nil {
		t.Fatalf("NetworkStatus() error = %v", err)
	}
	if ns.Profile != "test" {
		t.Errorf("profile = %q, want test", ns.Profile)
	}
	if !ns.Network.Online {
		t.Errorf("network = %+v, want online against the fake backend", ns.Network)
	}

	doc, err := c.Create(ctx, store.Households, store.NewDocument(map[string]any{"name": "Casa 1"}))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if doc.DeviceID != "dev-daemon" {
		t.Errorf("deviceId = %q, want dev-daemon", doc.DeviceID)
	}

	res, err := c.ForceSync(ctx)
	if err != nil {
		t.Fatalf("ForceSync() error = %v", err)
	}
	if res.Synced != 1 {
		t.Errorf("synced = %d, want 1", res.Synced)
	}
	if backend.count() != 1 {
		t.Errorf("backend received %d mutations, want 1", backend.count())
	}

	st, err := c.SyncStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Pending != 0 || st.Synced != 1 {
		t.Errorf("status = %+v", st)
	}

	app.RequireStop()

	if _, err := os.Stat(profile.SocketPath("test")); !os.IsNotExist(err) {
		t.Errorf("socket still present after stop: %v", err)
	}
	if owner, held := lock.Holder(profile.Dir("test")); held {
		t.Errorf("lock still held by pid %d after stop", owner.PID)
	}
}

func TestDaemonBootsOfflineWhenProbeFails(t *testing.T) {
	shortHome(t)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer backend.Close()

	var machine *status.Machine
	app := fxtest.New(t,
		Module(Params{ProfileName: "off", Config: testConfig(backend.URL)}),
		fx.Populate(&machine),
		fx.NopLogger,
	)
	app.RequireStart()
	defer app.RequireStop()

	if got := machine.Current(); got != status.Offline {
		t.Errorf("state = %s, want OFFLINE", got)
	}

	c, err := client.New(profile.SocketPath("off"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.ForceSync(ctx); !intsync.IsOffline(err) {
		t.Errorf("ForceSync() error = %v, want offline", err)
	}
}

func TestSecondDaemonIsRejected(t *testing.T) {
	shortHome(t)
	ts := httptest.NewServer(&fakeBackend{})
	defer ts.Close()

	first := fxtest.New(t,
		Module(Params{ProfileName: "dup", Config: testConfig(ts.URL)}),
		fx.NopLogger,
	)
	first.RequireStart()
	defer first.RequireStop()

	second := fx.New(
		Module(Params{ProfileName: "dup", Config: testConfig(ts.URL), SocketPath: filepath.Join(profile.Dir("dup"), "d2.sock")}),
		fx.NopLogger,
	)
	if err := second.Err(); err == nil {
		t.Fatal("second daemon on the same profile should fail to build")
	}
}

func TestStartFailsWhenHTTPAddrTaken(t *testing.T) {
	shortHome(t)
	ts := httptest.NewServer(&fakeBackend{})
	defer ts.Close()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = busy.Close() }()

	cfg := testConfig(ts.URL)
	cfg.HTTP.Addr = busy.Addr().String()
	app := fx.New(Module(Params{ProfileName: "busy", Config: cfg}), fx.NopLogger)
	if err := app.Err(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err == nil {
		_ = app.Stop(ctx)
		t.Fatal("Start() should fail when the http address is taken")
	}

	if owner, held := lock.Holder(profile.Dir("busy")); held {
		t.Errorf("lock still held by pid %d after failed start", owner.PID)
	}
	if _, err := os.Stat(profile.SocketPath("busy")); !os.IsNotExist(err) {
		t.Errorf("socket left behind after failed start: %v", err)
	}
}

// TestFxModuleWiring verifies NewServer resolves with Params rather than a
// bare string, which fx cannot provide.
func TestFxModuleWiring(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "fs-fx-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")
	b := bus.New()
	mon := netmon.New(netmon.Config{Platform: func() bool { return false }}, b, nil, nil)
	engine := intsync.NewEngine(nil, nil, mon, b, nil, intsync.Config{}, nil)

	srv, err := NewServer(
		Params{ProfileName: "fxtest", SocketPath: socketPath},
		zap.NewNop(),
		metrics.New(),
		api.NewRecordService(nil, b, nil),
		api.NewSyncService(engine, mon, status.NewMachine(nil), b, "fxtest", nil),
	)
	if err != nil {
		t.Fatalf("NewServer() with Params failed: %v", err)
	}

	if _, statErr := os.Stat(socketPath); statErr != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, statErr)
	}

	srv.Stop(context.Background())
}
