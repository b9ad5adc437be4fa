package ui

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestTagRoundTrips(t *testing.T) {
	for _, c := range []tcell.Color{tcell.ColorOliveDrab, tcell.ColorOrangeRed, tcell.NewRGBColor(0x12, 0x34, 0x56)} {
		if got := tcell.GetColor(Tag(c)); got != c {
			t.Errorf("GetColor(Tag(%v)) = %v (tag %q)", c, got, Tag(c))
		}
	}
	if got := Tag(tcell.NewRGBColor(0x12, 0x34, 0x56)); got != "#123456" {
		t.Errorf("Tag(rgb) = %q, want #123456", got)
	}
}

func TestFlashColor(t *testing.T) {
	th := DefaultTheme()
	tests := map[FlashLevel]tcell.Color{FlashInfo: th.Info, FlashWarn: th.Busy, FlashErr: th.Bad}
	for level, want := range tests {
		if got := th.FlashColor(level); got != want {
			t.Errorf("FlashColor(%d) = %v, want %v", level, got, want)
		}
	}
}

func TestCrumbsTrail(t *testing.T) {
	c := NewCrumbs(DefaultTheme())

	c.Update("field-a", []string{"sync", "queue"})
	got := c.GetText(true)
	if !strings.HasPrefix(got, "@field-a") {
		t.Errorf("text = %q, want the profile first", got)
	}
	if i, j := strings.Index(got, "sync status"), strings.Index(got, "sync queue"); i < 0 || j < i {
		t.Errorf("text = %q, want sync status before sync queue", got)
	}

	c.Update("", []string{"custom"})
	if got := strings.TrimSpace(c.GetText(true)); got != "custom" {
		t.Errorf("unlabelled page = %q, want custom", got)
	}

	c.Update("field-a", nil)
	if got := c.GetText(true); got != "" {
		t.Errorf("empty stack text = %q", got)
	}
}
