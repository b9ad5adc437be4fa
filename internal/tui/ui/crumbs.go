package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// crumbLabels names pages whose id reads poorly on its own.
var crumbLabels = map[string]string{
	"sync":   "sync status",
	"queue":  "sync queue",
	"device": "device",
	"help":   "keys",
}

// Crumbs shows the profile and the page trail, current page highlighted.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.Bg)
	return &Crumbs{TextView: tv, theme: theme}
}

// Update redraws the bar for profile and the page stack, root first.
func (c *Crumbs) Update(profile string, stack []string) {
	c.Clear()
	if len(stack) == 0 {
		return
	}

	var sb strings.Builder
	if profile != "" {
		fmt.Fprintf(&sb, "[%s::d]@%s[-:-:-]  ", Tag(c.theme.Muted), tview.Escape(profile))
	}
	trail := make([]string, 0, len(stack))
	for _, page := range stack[:len(stack)-1] {
		trail = append(trail, fmt.Sprintf("[%s]%s[-]", Tag(c.theme.CrumbTrailFg), crumbLabel(page)))
	}
	trail = append(trail, fmt.Sprintf("[%s:%s:b] %s [-:-:-]",
		Tag(c.theme.CrumbFg), Tag(c.theme.CrumbBg), crumbLabel(stack[len(stack)-1])))
	sb.WriteString(strings.Join(trail, " › "))
	_, _ = fmt.Fprint(c, sb.String())
}

func crumbLabel(page string) string {
	if l, ok := crumbLabels[page]; ok {
		return l
	}
	return page
}
