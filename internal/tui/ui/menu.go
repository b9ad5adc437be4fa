package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu lays keyboard hints out in columns of at most rows entries.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a hint panel that fills columns top to bottom.
func NewMenu(theme *Theme, rows int) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
		rows:     max(rows, 1),
	}
}

// Update renders hints.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, m.layout(hints))
}

func (m *Menu) layout(hints []MenuHint) string {
	keyWidth := 0
	for _, h := range hints {
		keyWidth = max(keyWidth, len(h.Key))
	}
	descWidth := 0
	for _, h := range hints {
		descWidth = max(descWidth, len(h.Description))
	}

	lines := make([]strings.Builder, min(len(hints), m.rows))
	for i, h := range hints {
		kc := Tag(m.theme.KeyHint)
		if h.Numeric {
			kc = Tag(m.theme.NumericKeyHint)
		}
		line := &lines[i%m.rows]
		pad := strings.Repeat(" ", keyWidth-len(h.Key))
		fmt.Fprintf(line, "[%s::b]<%s>[-:-:-]%s %-*s  ", kc, tview.Escape(h.Key), pad, descWidth, h.Description)
	}

	var sb strings.Builder
	for i := range lines {
		sb.WriteString(strings.TrimRight(lines[i].String(), " "))
		sb.WriteByte('\n')
	}
	return sb.String()
}
