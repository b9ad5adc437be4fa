package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/fieldsync/internal/api"
	"github.com/matheus3301/fieldsync/internal/bus"
	"github.com/matheus3301/fieldsync/internal/config"
	"github.com/matheus3301/fieldsync/internal/httpapi"
	"github.com/matheus3301/fieldsync/internal/lock"
	"github.com/matheus3301/fieldsync/internal/logging"
	"github.com/matheus3301/fieldsync/internal/metrics"
	"github.com/matheus3301/fieldsync/internal/netmon"
	"github.com/matheus3301/fieldsync/internal/profile"
	"github.com/matheus3301/fieldsync/internal/remote"
	"github.com/matheus3301/fieldsync/internal/status"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load from the profile base dir
	Stderr      bool           // mirror logs to stderr
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideMetrics,
			providePusher,
			provideMonitor,
			provideSyncEngine,
			provideRecordService,
			provideSyncService,
			provideHTTPServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.LoadOrDefault(profile.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, logging.Options{
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Stderr:     p.Stderr,
	})
}

func provideBus(m *metrics.Metrics) *bus.Bus {
	return bus.New(bus.WithDropHook(m.ObserveBusDrop))
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName), cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.Int("pid", l.Owner().PID))
	return l, nil
}

// provideStore takes the lock so the store is only opened by its owner.
func provideStore(p Params, cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	path := profile.StorePath(p.ProfileName)
	db, err := store.Open(context.Background(), path,
		store.WithLogger(logger),
		store.WithDeviceID(cfg.DeviceID),
		store.WithCollectorID(cfg.CollectorID),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", path), zap.String("device_id", db.DeviceID()))
	return db, nil
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func providePusher(cfg *config.Config) (remote.Pusher, error) {
	var opts []remote.HTTPOption
	if d := cfg.Remote.RequestTimeout.Duration; d > 0 {
		opts = append(opts, remote.WithTimeout(d))
	}
	return remote.New(context.Background(), remote.Config{
		Driver:  cfg.Remote.Driver,
		BaseURL: cfg.Remote.BaseURL,
		S3: remote.S3Config{
			Bucket:          cfg.Remote.S3.Bucket,
			Region:          cfg.Remote.S3.Region,
			Endpoint:        cfg.Remote.S3.Endpoint,
			Prefix:          cfg.Remote.S3.Prefix,
			PathStyle:       cfg.Remote.S3.PathStyle,
			AccessKeyID:     cfg.Remote.S3.AccessKeyID,
			SecretAccessKey: cfg.Remote.S3.SecretAccessKey,
		},
	}, opts...)
}

func provideMonitor(cfg *config.Config, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *netmon.Monitor {
	return netmon.New(netmon.Config{
		ProbeURL:      cfg.ProbeURL(),
		ProbeInterval: cfg.Network.ProbeInterval.Duration,
		ProbeTimeout:  cfg.Network.ProbeTimeout.Duration,
	}, b, m, logger.Named("netmon"))
}

func provideSyncEngine(cfg *config.Config, db *store.DB, pusher remote.Pusher, mon *netmon.Monitor, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, pusher, mon, b, m, intsync.Config{
		Interval:       cfg.Sync.Interval.Duration,
		MaxRetries:     cfg.Sync.MaxRetries,
		BackoffBase:    cfg.Sync.BackoffBase.Duration,
		BackoffMax:     cfg.Sync.BackoffMax.Duration,
		RequestTimeout: cfg.Remote.RequestTimeout.Duration,
	}, logger.Named("sync"))
}

func provideRecordService(db *store.DB, b *bus.Bus, logger *zap.Logger) *api.RecordService {
	return api.NewRecordService(db, b, logger)
}

func provideSyncService(p Params, engine *intsync.Engine, mon *netmon.Monitor, m *status.Machine, b *bus.Bus, logger *zap.Logger) *api.SyncService {
	return api.NewSyncService(engine, mon, m, b, p.ProfileName, logger)
}

// provideHTTPServer returns nil when http.addr is empty.
func provideHTTPServer(cfg *config.Config, engine *intsync.Engine, mon *netmon.Monitor, m *metrics.Metrics, logger *zap.Logger) *httpapi.Server {
	if cfg.HTTP.Addr == "" {
		return nil
	}
	l := logger.Named("http")
	return httpapi.New(cfg.HTTP.Addr, engine, mon, httpapi.NewHub(l), m.Handler(), l)
}

type lifecycleDeps struct {
	fx.In

	Server  *Server
	HTTP    *httpapi.Server
	Lock    *lock.Lock
	DB      *store.DB
	Monitor *netmon.Monitor
	Engine  *intsync.Engine
	Machine *status.Machine
	Bus     *bus.Bus
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			// The HTTP surface binds first: failing to bind aborts the start
			// before anything else runs.
			if d.HTTP != nil {
				if err := d.HTTP.Start(ctx, d.Bus); err != nil {
					cancel()
					d.Server.Stop(startCtx)
					release(d)
					return fmt.Errorf("start http server: %w", err)
				}
			}

			d.Machine.Follow(ctx, d.Bus)

			// The first verdict decides whether the daemon boots online.
			d.Machine.Settle(d.Monitor.CheckNow(startCtx))
			d.Monitor.Start(ctx)
			d.Engine.Start(ctx)

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			d.Logger.Info("daemon started",
				zap.String("state", string(d.Machine.Current())),
				zap.String("device_id", d.DB.DeviceID()))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			if d.HTTP != nil {
				if err := d.HTTP.Stop(stopCtx); err != nil {
					d.Logger.Warn("error stopping http server", zap.Error(err))
				}
			}
			d.Server.Stop(stopCtx)
			d.Engine.Stop()
			d.Monitor.Stop()
			_ = d.Machine.Transition(status.Stopped)
			cancel()

			release(d)
			d.Logger.Info("daemon stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}

// release closes the store and then gives up the profile lock.
func release(d lifecycleDeps) {
	if err := d.DB.Close(); err != nil {
		d.Logger.Warn("error closing store", zap.Error(err))
	}
	if err := d.Lock.Release(); err != nil {
		d.Logger.Warn("error releasing lock", zap.Error(err))
	}
}
