// Package lock keeps a profile's store single-writer: only the daemon
// holding the profile lock may open it.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// FileName is the lock file inside a profile directory.
const FileName = "fieldsyncd.lock"

// Owner describes the daemon holding a profile lock.
type Owner struct {
	PID       int       `json:"pid"`
	DeviceID  string    `json:"deviceId,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// HeldError is returned when another daemon holds the profile lock.
type HeldError struct {
	Owner Owner
	Path  string
}

func (e *HeldError) Error() string {
	if e.Owner.PID == 0 {
		return fmt.Sprintf("profile locked (%s)", e.Path)
	}
	return fmt.Sprintf("profile locked by fieldsyncd pid %d since %s (%s)",
		e.Owner.PID, e.Owner.StartedAt.Format(time.RFC3339), e.Path)
}

// Lock is an acquired profile lock.
type Lock struct {
	file  *os.File
	path  string
	owner Owner
}

// Acquire takes the profile lock for this process, creating dir if needed.
func Acquire(dir, deviceID string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		owner, _ := readOwner(path)
		_ = f.Close()
		return nil, &HeldError{Owner: owner, Path: path}
	}

	l := &Lock{
		file:  f,
		path:  path,
		owner: Owner{PID: os.Getpid(), DeviceID: deviceID, StartedAt: time.Now().UTC()},
	}
	if err := l.writeOwner(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock owner: %w", err)
	}
	return l, nil
}

func (l *Lock) writeOwner() error {
	data, err := json.Marshal(l.owner)
	if err != nil {
		return err
	}
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	_, err = l.file.WriteAt(append(data, '\n'), 0)
	return err
}

// Owner returns what this lock advertises.
func (l *Lock) Owner() Owner { return l.owner }

// Holder reports the daemon holding the lock in dir. ok is false when the
// profile is free.
func Holder(dir string) (owner Owner, ok bool) {
	path := filepath.Join(dir, FileName)
	f, err := os.Open(path)
	if err != nil {
		return Owner{}, false
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return Owner{}, false
	}
	owner, _ = readOwner(path)
	return owner, true
}

func readOwner(path string) (Owner, error) {
	var owner Owner
	data, err := os.ReadFile(path)
	if err != nil {
		return owner, err
	}
	err = json.Unmarshal(data, &owner)
	return owner, err
}

// Release drops the lock and removes the file. Safe on a nil receiver and
// safe to call twice.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}
