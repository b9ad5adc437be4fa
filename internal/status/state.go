package status

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/fieldsync/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting  State = "BOOTING"
	Offline  State = "OFFLINE"
	Online   State = "ONLINE"
	Syncing  State = "SYNCING"
	Degraded State = "DEGRADED"
	Stopped  State = "STOPPED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Offline, Online, Stopped},
	Offline:  {Online, Stopped},
	Online:   {Syncing, Offline, Degraded, Stopped},
	Syncing:  {Online, Degraded, Offline, Stopped},
	Degraded: {Syncing, Online, Offline, Stopped},
	Stopped:  {},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	if m.bus != nil {
		m.bus.Emit(bus.KindDaemonState, StatusChange{From: from, To: to})
	}
	return nil
}

// transitionFrom moves to `to` only when the current state is one of from.
func (m *Machine) transitionFrom(to State, from ...State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Contains(from, m.current) {
		_ = m.transitionLocked(to)
	}
}

// Settle leaves Booting for Online or Offline once the first connectivity
// check is in. It does nothing after the machine has left Booting.
func (m *Machine) Settle(online bool) {
	to := Offline
	if online {
		to = Online
	}
	m.transitionFrom(to, Booting)
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}

// degrader is implemented by cycle results that carry failures.
type degrader interface {
	Degraded() bool
}

// Follow drives the machine from connectivity and drain events until ctx
// is done.
func (m *Machine) Follow(ctx context.Context, b *bus.Bus) {
	netCh, unsubNet := b.Subscribe("network.", 16)
	syncCh, unsubSync := b.Subscribe("sync.cycle_", 16)

	go func() {
		defer unsubNet()
		defer unsubSync()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-netCh:
				switch evt.Kind {
				case bus.KindNetworkOnline:
					m.transitionFrom(Online, Booting, Offline)
				case bus.KindNetworkOffline:
					m.transitionFrom(Offline, Booting, Online, Syncing, Degraded)
				}
			case evt := <-syncCh:
				switch evt.Kind {
				case bus.KindSyncCycleStarted:
					m.transitionFrom(Syncing, Online, Degraded)
				case bus.KindSyncCycleFinished:
					to := Online
					if d, ok := evt.Payload.(degrader); ok && d.Degraded() {
						to = Degraded
					}
					m.transitionFrom(to, Syncing)
				}
			}
		}
	}()
}
