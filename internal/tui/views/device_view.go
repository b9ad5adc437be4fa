package views

import (
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/matheus3301/fieldsync/internal/api"
	"github.com/matheus3301/fieldsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// DeviceView shows the device identity and an enrolment QR code that a
// coordinator scans to register the device.
type DeviceView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewDeviceView creates a new device view.
func NewDeviceView(theme *ui.Theme) *DeviceView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.Border)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetTextColor(theme.Fg)
	tv.SetTitle(" Device ")
	tv.SetTitleColor(theme.Title)

	return &DeviceView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (dv *DeviceView) Name() string { return "Device" }

// Hints implements Component.
func (dv *DeviceView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders the identity block and the enrolment code.
func (dv *DeviceView) Update(ns api.NetworkStatus) {
	dv.Clear()
	if ns.DeviceID == "" {
		_, _ = fmt.Fprint(dv, "\n\nDevice identity not loaded yet")
		return
	}
	collector := ns.CollectorID
	if collector == "" {
		collector = "(unassigned)"
	}
	_, _ = fmt.Fprintf(dv, "\n  Profile: %s   Device: %s   Collector: %s\n\n%s\n  [::d]Scan to enrol this device",
		tview.Escape(ns.Profile), tview.Escape(ns.DeviceID), tview.Escape(collector),
		RenderQR(EnrolmentURI(ns.Profile, ns.DeviceID, ns.CollectorID)))
}

// EnrolmentURI builds the payload encoded in the enrolment QR code.
func EnrolmentURI(profile, deviceID, collectorID string) string {
	q := url.Values{}
	q.Set("device", deviceID)
	if profile != "" {
		q.Set("profile", profile)
	}
	if collectorID != "" {
		q.Set("collector", collectorID)
	}
	return (&url.URL{Scheme: "fieldsync", Host: "enrol", RawQuery: q.Encode()}).String()
}

// RenderQR converts content to a compact QR code drawn with Unicode
// half-block characters, two bitmap rows per text line.
func RenderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
