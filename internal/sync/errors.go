package sync

import (
	"errors"
	"fmt"
)

// OfflineError is returned by ForceSyncNow when the monitor reports the
// remote as unreachable. Nothing in the queue changes.
type OfflineError struct{}

func (e *OfflineError) Error() string { return "sync: device is offline" }

// TransientSyncError wraps a failed push that will be retried.
type TransientSyncError struct {
	ItemID  string
	Attempt int
	Err     error
}

func (e *TransientSyncError) Error() string {
	return fmt.Sprintf("sync: item %s attempt %d: %v", e.ItemID, e.Attempt, e.Err)
}

func (e *TransientSyncError) Unwrap() error { return e.Err }

// TerminalSyncError wraps a push failure that exhausted the retry budget.
// The item stays in the queue as error until requeued.
type TerminalSyncError struct {
	ItemID  string
	Retries int
	Err     error
}

func (e *TerminalSyncError) Error() string {
	return fmt.Sprintf("sync: item %s failed after %d attempts: %v", e.ItemID, e.Retries, e.Err)
}

func (e *TerminalSyncError) Unwrap() error { return e.Err }

// IsOffline reports whether err is, or wraps, an OfflineError.
func IsOffline(err error) bool {
	var oe *OfflineError
	return errors.As(err, &oe)
}
