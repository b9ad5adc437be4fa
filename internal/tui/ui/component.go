package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // filter shortcuts, drawn in a different color
}

// Component is a full-screen view managed by Pages.
type Component interface {
	tview.Primitive
	Name() string
	Hints() []MenuHint
}
