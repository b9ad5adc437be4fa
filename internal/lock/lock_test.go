package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireWritesOwner(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, "dev-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = l.Release() }()

	owner, err := readOwner(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("readOwner: %v", err)
	}
	if owner.PID != os.Getpid() || owner.DeviceID != "dev-1" || owner.StartedAt.IsZero() {
		t.Errorf("owner = %+v", owner)
	}
	if owner != l.Owner() {
		t.Errorf("file owner %+v != lock owner %+v", owner, l.Owner())
	}
}

func TestSecondAcquireReportsOwner(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir, "dev-1")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(dir, "dev-2")
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("second Acquire() error = %v, want *HeldError", err)
	}
	if held.Owner.PID != os.Getpid() || held.Owner.DeviceID != "dev-1" {
		t.Errorf("held.Owner = %+v", held.Owner)
	}
}

func TestReleaseNilAndTwice(t *testing.T) {
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}

	l, err := Acquire(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestHolder(t *testing.T) {
	dir := t.TempDir()

	if _, ok := Holder(dir); ok {
		t.Error("Holder() on free dir reported a holder")
	}

	l, err := Acquire(dir, "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	owner, ok := Holder(dir)
	if !ok || owner.PID != os.Getpid() {
		t.Errorf("Holder() = %+v, %v", owner, ok)
	}

	_ = l.Release()
	if _, ok := Holder(dir); ok {
		t.Error("Holder() after release reported a holder")
	}
}
