package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages is a navigation stack of components over tview.Pages. The bottom
// entry is the root view and is never popped.
type Pages struct {
	*tview.Pages
	components map[string]Component
	stack      []string
	onChange   func(stack []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{
		Pages:      tview.NewPages(),
		components: make(map[string]Component),
	}
}

// Register adds a component under its page name, hidden.
func (p *Pages) Register(name string, c Component) {
	p.components[name] = c
	p.AddPage(name, c, true, false)
}

// SetOnChange sets a callback that fires when the stack changes.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows a page on top of the stack. A page already on the stack is
// brought back by unwinding to it rather than stacked twice.
func (p *Pages) Push(name string) {
	if _, ok := p.components[name]; !ok {
		return
	}
	if i := slices.Index(p.stack, name); i >= 0 {
		for _, n := range p.stack[i+1:] {
			p.HidePage(n)
		}
		p.stack = p.stack[:i+1]
	} else {
		if top := p.Current(); top != "" {
			p.HidePage(top)
		}
		p.stack = append(p.stack, name)
	}
	p.show(name)
}

// Pop returns to the previous page. It returns the popped name, or "" when
// only the root is left.
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.show(p.Current())
	return top
}

// Current returns the name of the top page.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// CurrentComponent returns the component on top of the stack.
func (p *Pages) CurrentComponent() Component {
	return p.components[p.Current()]
}

// Stack returns a copy of the current page stack.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Depth returns the current stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Reset makes name the only page on the stack.
func (p *Pages) Reset(name string) {
	if _, ok := p.components[name]; !ok {
		return
	}
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.show(name)
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
