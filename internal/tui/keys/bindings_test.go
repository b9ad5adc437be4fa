package keys

import (
	"slices"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestViewBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var hit string
	r.AddGlobal("refresh", &Action{Key: tcell.KeyRune, Rune: 'r', Handler: func() { hit = "global" }})
	r.AddView("queue", "requeue", &Action{Key: tcell.KeyRune, Rune: 'r', Handler: func() { hit = "queue" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)
	if !r.HandleEvent("queue", ev) || hit != "queue" {
		t.Errorf("queue view: hit = %q, want queue", hit)
	}
	if !r.HandleEvent("status", ev) || hit != "global" {
		t.Errorf("status view: hit = %q, want global", hit)
	}
}

func TestNamesKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("quit", &Action{Rune: 'q'})
	r.AddGlobal("force", &Action{Rune: 'f'})
	r.AddView("queue", "requeue", &Action{Rune: 'r'})
	r.AddGlobal("quit", &Action{Rune: 'x'})

	got := r.Names("queue")
	want := []string{"requeue", "quit", "force"}
	if !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	var hit bool
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'x', Handler: func() { hit = true }})
	if !r.HandleEvent("sync", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) || !hit {
		t.Error("replaced binding should handle x")
	}
}

func TestSpecialKeyMatch(t *testing.T) {
	a := &Action{Key: tcell.KeyEscape}
	if !a.Matches(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)) {
		t.Error("Esc should match")
	}
	if a.Matches(tcell.NewEventKey(tcell.KeyRune, 'e', tcell.ModNone)) {
		t.Error("rune should not match a special key")
	}
}
