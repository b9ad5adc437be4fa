package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/fieldsync/internal/api"
	"github.com/matheus3301/fieldsync/internal/status"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"github.com/matheus3301/fieldsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// SyncPanel is the landing view: queue counts, connectivity and the last
// drain outcome.
type SyncPanel struct {
	*tview.TextView
	theme *ui.Theme
}

// NewSyncPanel creates the status panel.
func NewSyncPanel(theme *ui.Theme) *SyncPanel {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.Border)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetTextColor(theme.Fg)
	tv.SetTitle(" Sync ")
	tv.SetTitleColor(theme.Title)
	tv.SetBorderPadding(1, 0, 2, 2)

	return &SyncPanel{TextView: tv, theme: theme}
}

// Name implements Component.
func (sp *SyncPanel) Name() string { return "Sync" }

// Hints implements Component.
func (sp *SyncPanel) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "f", Description: "Force sync"},
		{Key: "c", Description: "Clear synced"},
		{Key: "r", Description: "Requeue failed"},
		{Key: "l", Description: "Queue"},
		{Key: "d", Description: "Device"},
	}
}

// Update redraws the panel.
func (sp *SyncPanel) Update(st intsync.Status, ns api.NetworkStatus) {
	sp.Clear()

	label := ui.Tag(sp.theme.Fg)
	stateColor := ui.Tag(sp.stateColor(ns.State))

	_, _ = fmt.Fprintf(sp, "[%s::b]State[-:-:-]      [%s::b]%s[-:-:-]  since %s\n",
		label, stateColor, ns.State, ui.FormatAgo(ns.StateSince, time.Now()))

	net := "offline"
	if st.IsOnline {
		net = "online"
	}
	_, _ = fmt.Fprintf(sp, "[%s::b]Network[-:-:-]    %s", label, net)
	if !ns.Network.PlatformOnline {
		_, _ = fmt.Fprint(sp, " (no link)")
	} else if ns.Network.ProbeURL != "" && !ns.Network.LastProbeOK {
		_, _ = fmt.Fprint(sp, " (probe failing)")
	}
	_, _ = fmt.Fprint(sp, "\n")
	if ns.Network.LastError != "" {
		_, _ = fmt.Fprintf(sp, "             [%s]%s[-]\n", ui.Tag(sp.theme.Bad), cellText(ns.Network.LastError, 80))
	}

	_, _ = fmt.Fprintf(sp, "\n[%s::b]Queue[-:-:-]      total %d   pending %d   synced %d   ",
		label, st.Total, st.Pending, st.Synced)
	failed := ui.Tag(sp.theme.Muted)
	if st.Failed > 0 {
		failed = ui.Tag(sp.theme.Bad)
	}
	_, _ = fmt.Fprintf(sp, "[%s]failed %d[-]\n", failed, st.Failed)

	running := "idle"
	if st.IsRunning {
		running = "draining"
	}
	_, _ = fmt.Fprintf(sp, "[%s::b]Engine[-:-:-]     %s\n", label, running)
	_, _ = fmt.Fprintf(sp, "[%s::b]Last sync[-:-:-]  %s\n", label, ui.FormatAgo(st.LastSyncAt, time.Now()))
	if st.LastError != "" {
		_, _ = fmt.Fprintf(sp, "[%s::b]Last error[-:-:-] [%s]%s[-]\n", label, ui.Tag(sp.theme.Bad), cellText(st.LastError, 80))
	}
}

func (sp *SyncPanel) stateColor(s status.State) tcell.Color {
	switch s {
	case status.Online:
		return sp.theme.OK
	case status.Syncing, status.Booting:
		return sp.theme.Busy
	case status.Offline, status.Degraded, status.Stopped:
		return sp.theme.Bad
	}
	return sp.theme.Fg
}
