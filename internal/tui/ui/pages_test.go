package ui

import (
	"slices"
	"testing"

	"github.com/rivo/tview"
)

type stubView struct {
	*tview.Box
	name string
}

func (s stubView) Name() string      { return s.name }
func (s stubView) Hints() []MenuHint { return nil }

func newStubPages(names ...string) *Pages {
	p := NewPages()
	for _, n := range names {
		p.Register(n, stubView{Box: tview.NewBox(), name: n})
	}
	return p
}

func TestPagesPushUnwindsToExisting(t *testing.T) {
	p := newStubPages("sync", "queue", "help")
	var changes int
	p.SetOnChange(func([]string) { changes++ })

	p.Reset("sync")
	p.Push("queue")
	p.Push("help")
	p.Push("queue")

	if got := p.Stack(); !slices.Equal(got, []string{"sync", "queue"}) {
		t.Errorf("Stack() = %v", got)
	}
	if changes != 4 {
		t.Errorf("onChange fired %d times, want 4", changes)
	}
	if p.CurrentComponent().Name() != "queue" {
		t.Errorf("CurrentComponent() = %q", p.CurrentComponent().Name())
	}
}

func TestPagesPopKeepsRoot(t *testing.T) {
	p := newStubPages("sync", "device")
	p.Reset("sync")
	p.Push("device")

	if got := p.Pop(); got != "device" {
		t.Errorf("Pop() = %q, want device", got)
	}
	if got := p.Pop(); got != "" {
		t.Errorf("Pop() at root = %q, want empty", got)
	}
	if p.Current() != "sync" || p.Depth() != 1 {
		t.Errorf("Current() = %q depth %d", p.Current(), p.Depth())
	}
}

func TestPagesIgnoreUnknown(t *testing.T) {
	p := newStubPages("sync")
	p.Reset("sync")
	p.Push("nope")
	p.Reset("nope")
	if p.Current() != "sync" {
		t.Errorf("Current() = %q, want sync", p.Current())
	}
}
