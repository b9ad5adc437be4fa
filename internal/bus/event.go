package bus

import "time"

// Event kinds published inside the daemon. Subscribers filter by prefix,
// so "network." receives both connectivity transitions.
const (
	KindNetworkOnline     = "network.online"
	KindNetworkOffline    = "network.offline"
	KindSyncStatusChanged = "sync.status_changed"
	KindSyncCycleStarted  = "sync.cycle_started"
	KindSyncCycleFinished = "sync.cycle_finished"
	KindSyncItemFailed    = "sync.item_failed"
	KindRecordChanged     = "record.changed"
	KindDaemonState       = "daemon.state_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
