package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/fieldsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpEntry is one line of the help screen.
type HelpEntry struct {
	Key         string
	Description string
}

// HelpSection groups entries under a heading.
type HelpSection struct {
	Title   string
	Entries []HelpEntry
}

// HelpSections is the reference shown by the help view.
var HelpSections = []HelpSection{
	{"Global Keys", []HelpEntry{
		{":", "Command mode"},
		{"?", "Help"},
		{"f", "Force a sync now"},
		{"c", "Clear synced queue items"},
		{"d", "Device identity and enrolment code"},
		{"l", "Sync queue"},
		{"Esc", "Back"},
		{"q", "Quit"},
	}},
	{"Queue", []HelpEntry{
		{"r", "Requeue the selected failed item"},
		{"R", "Requeue every failed item"},
		{"0-3", "Show all / pending / failed / synced"},
		{"j/k", "Move down / up"},
	}},
	{"Commands", []HelpEntry{
		{":status", "Sync status"},
		{":queue [status]", "Queue, optionally filtered"},
		{":force", "Force a sync now"},
		{":clear", "Clear synced items"},
		{":requeue [id...]", "Requeue failed items"},
		{":device", "Device identity"},
		{":help", "This screen"},
		{":quit", "Quit"},
	}},
}

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.Border)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetTextColor(theme.Fg)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.Title)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	_, _ = fmt.Fprint(hv, renderHelp(HelpSections, ui.Tag(theme.KeyHint)))
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func renderHelp(sections []HelpSection, keyColor string) string {
	width := 0
	for _, s := range sections {
		for _, e := range s.Entries {
			width = max(width, len(e.Key))
		}
	}
	var sb strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&sb, "\n  [::b]%s[-:-:-]\n\n", s.Title)
		for _, e := range s.Entries {
			pad := strings.Repeat(" ", width-len(e.Key)+2)
			fmt.Fprintf(&sb, "  [%s]%s[-:-:-]%s%s\n", keyColor, tview.Escape(e.Key), pad, e.Description)
		}
	}
	return sb.String()
}
