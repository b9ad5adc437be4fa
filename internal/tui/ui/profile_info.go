package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// ProfileData holds what the header shows about the connected daemon.
type ProfileData struct {
	Profile    string
	DeviceID   string
	State      string
	Online     bool
	Pending    int64
	Failed     int64
	LastSyncAt time.Time
}

// ProfileInfo displays profile metadata in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates a new profile info panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the profile info.
func (pi *ProfileInfo) Update(data *ProfileData) {
	pi.Clear()
	if data == nil {
		return
	}

	fg := Tag(pi.theme.Fg)
	counter := Tag(pi.theme.Muted)

	net, netColor := "offline", Tag(pi.theme.Bad)
	if data.Online {
		net, netColor = "online", Tag(pi.theme.OK)
	}
	failedColor := counter
	if data.Failed > 0 {
		failedColor = Tag(pi.theme.Bad)
	}

	_, _ = fmt.Fprintf(pi,
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Device:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]State:[-:-:-]   [%s]%s[-] [%s](%s)[-]\n"+
			"[%s::b]Pending:[-:-:-] [%s]%d[-]  [%s::b]Failed:[-:-:-] [%s]%d[-]\n"+
			"[%s::b]Synced:[-:-:-]  [%s]%s[-]",
		fg, counter, data.Profile,
		fg, counter, shortID(data.DeviceID),
		fg, counter, data.State, netColor, net,
		fg, counter, data.Pending, fg, failedColor, data.Failed,
		fg, counter, FormatAgo(data.LastSyncAt, time.Now()),
	)
}

// FormatAgo renders t relative to now, or "never" for the zero time.
func FormatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm ago", int(d.Hours()), int(d.Minutes())%60)
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

func shortID(id string) string {
	if len(id) <= 13 {
		return id
	}
	return id[:8] + "…" + id[len(id)-4:]
}
