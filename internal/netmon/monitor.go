// Package netmon decides whether the remote backend is reachable. The
// platform signal alone is never trusted: the device is online only while
// the platform reports a usable link and the last HTTP probe succeeded.
package netmon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/matheus3301/fieldsync/internal/bus"
	"go.uber.org/zap"
)

// PlatformSignal reports whether the operating system sees a usable link.
type PlatformSignal func() bool

// InterfacesUp reports whether any non-loopback interface is up.
func InterfacesUp() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}

// Recorder receives connectivity observations.
type Recorder interface {
	SetOnline(online bool)
	ObserveProbe(ok bool)
}

// Config controls probing. An empty ProbeURL leaves the platform signal as
// the only input.
type Config struct {
	ProbeURL      string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	Platform      PlatformSignal
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Online         bool      `json:"online"`
	PlatformOnline bool      `json:"platformOnline"`
	ProbeURL       string    `json:"probeUrl,omitempty"`
	LastProbeAt    time.Time `json:"lastProbeAt,omitzero"`
	LastProbeOK    bool      `json:"lastProbeOk"`
	LastError      string    `json:"lastError,omitempty"`
	ChangedAt      time.Time `json:"changedAt,omitzero"`
}

// Monitor tracks connectivity and publishes network.online and
// network.offline on every transition.
type Monitor struct {
	cfg    Config
	client *http.Client
	bus    *bus.Bus
	rec    Recorder
	logger *zap.Logger

	mu       sync.RWMutex
	status   Status
	override *bool

	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a monitor that starts offline.
func New(cfg Config, b *bus.Bus, rec Recorder, logger *zap.Logger) *Monitor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 10 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.Platform == nil {
		cfg.Platform = InterfacesUp
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.ProbeTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		bus:     b,
		rec:     rec,
		logger:  logger,
		status:  Status{ProbeURL: cfg.ProbeURL},
		trigger: make(chan struct{}, 1),
	}
}

// Start runs a check immediately and then one per probe interval.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.ProbeInterval)
		defer ticker.Stop()

		m.CheckNow(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			case <-m.trigger:
				m.CheckNow(ctx)
			}
		}
	}()
}

// Stop halts probing and waits for the loop to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

// IsOnline reports the current verdict.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Online
}

// Snapshot returns the current status.
func (m *Monitor) Snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SetPlatformOnline overrides the platform signal with an externally
// supplied one. Going offline takes effect immediately; going online
// schedules a probe.
func (m *Monitor) SetPlatformOnline(online bool) {
	m.mu.Lock()
	m.override = &online
	m.mu.Unlock()

	if !online {
		m.apply(false, m.Snapshot().LastProbeOK, "platform offline", false)
		return
	}
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// CheckNow samples the platform signal and, when it reports a link, probes
// the remote. It returns the resulting verdict.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	if !m.platformOnline() {
		m.apply(false, false, "platform offline", false)
		return false
	}
	if m.cfg.ProbeURL == "" {
		m.apply(true, true, "", false)
		return true
	}

	err := m.probe(ctx)
	if m.rec != nil {
		m.rec.ObserveProbe(err == nil)
	}
	// The platform may have dropped while the probe was in flight.
	platform := m.platformOnline()
	if err != nil {
		m.apply(platform, false, err.Error(), true)
		return false
	}
	m.apply(platform, true, "", true)
	return platform
}

func (m *Monitor) platformOnline() bool {
	m.mu.RLock()
	override := m.override
	m.mu.RUnlock()
	if override != nil {
		return *override
	}
	return m.cfg.Platform()
}

func (m *Monitor) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.cfg.ProbeURL, nil)
	if err != nil {
		return fmt.Errorf("build probe: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", m.cfg.ProbeURL, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe %s: status %d", m.cfg.ProbeURL, resp.StatusCode)
	}
	return nil
}

// apply records a check result. Events are published under the lock so
// subscribers observe transitions in order; Publish never blocks.
func (m *Monitor) apply(platform, probeOK bool, reason string, probed bool) {
	online := platform && probeOK
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.status.Online
	m.status.Online = online
	m.status.PlatformOnline = platform
	m.status.LastProbeOK = probeOK
	m.status.LastError = reason
	if probed {
		m.status.LastProbeAt = now
	}
	if m.rec != nil {
		m.rec.SetOnline(online)
	}
	if prev == online {
		return
	}
	m.status.ChangedAt = now

	kind := bus.KindNetworkOffline
	if online {
		kind = bus.KindNetworkOnline
		m.logger.Info("network online", zap.String("probe_url", m.cfg.ProbeURL))
	} else {
		m.logger.Warn("network offline", zap.String("reason", reason))
	}
	if m.bus != nil {
		m.bus.Emit(kind, m.status)
	}
}
