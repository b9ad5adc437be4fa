package ui

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// Theme is the fieldtui palette. OK, Busy and Bad color anything with a
// health reading: daemon state, queue item status, connectivity.
type Theme struct {
	Bg    tcell.Color
	Fg    tcell.Color
	Muted tcell.Color

	Border       tcell.Color
	Title        tcell.Color
	PromptBorder tcell.Color

	HeaderFg tcell.Color
	HeaderBg tcell.Color
	CursorFg tcell.Color
	CursorBg tcell.Color

	CrumbFg      tcell.Color
	CrumbBg      tcell.Color
	CrumbTrailFg tcell.Color

	KeyHint        tcell.Color
	NumericKeyHint tcell.Color

	OK   tcell.Color
	Busy tcell.Color
	Bad  tcell.Color
	Info tcell.Color
}

// DefaultTheme returns the olive/khaki palette used outdoors on dim
// terminals.
func DefaultTheme() *Theme {
	return &Theme{
		Bg:    tcell.ColorBlack,
		Fg:    tcell.ColorWheat,
		Muted: tcell.ColorDarkKhaki,

		Border:       tcell.ColorOliveDrab,
		Title:        tcell.ColorYellowGreen,
		PromptBorder: tcell.ColorGoldenrod,

		HeaderFg: tcell.ColorBlack,
		HeaderBg: tcell.ColorDarkKhaki,
		CursorFg: tcell.ColorBlack,
		CursorBg: tcell.ColorYellowGreen,

		CrumbFg:      tcell.ColorBlack,
		CrumbBg:      tcell.ColorGoldenrod,
		CrumbTrailFg: tcell.ColorDarkKhaki,

		KeyHint:        tcell.ColorYellowGreen,
		NumericKeyHint: tcell.ColorSandyBrown,

		OK:   tcell.ColorLimeGreen,
		Busy: tcell.ColorGold,
		Bad:  tcell.ColorOrangeRed,
		Info: tcell.ColorWheat,
	}
}

// FlashColor maps a flash level onto the health colors.
func (t *Theme) FlashColor(level FlashLevel) tcell.Color {
	switch level {
	case FlashWarn:
		return t.Busy
	case FlashErr:
		return t.Bad
	default:
		return t.Info
	}
}

var colorTags = sync.OnceValue(func() map[tcell.Color]string {
	m := make(map[tcell.Color]string, len(tcell.ColorNames))
	for name, c := range tcell.ColorNames {
		if prev, ok := m[c]; !ok || name < prev {
			m[c] = name
		}
	}
	return m
})

// Tag renders c for a tview style tag: a named color when tcell knows one,
// #rrggbb otherwise.
func Tag(c tcell.Color) string {
	if name, ok := colorTags()[c]; ok {
		return name
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
