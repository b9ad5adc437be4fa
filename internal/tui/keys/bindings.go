package keys

import (
	"slices"

	"github.com/gdamore/tcell/v2"
)

// Action represents a keybinding action.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Handler func()
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

type binding struct {
	name   string
	action *Action
}

// Registry holds keybindings organized by scope, in registration order.
// Registering a name again replaces the earlier action in place.
type Registry struct {
	global []binding
	views  map[string][]binding
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]binding)}
}

// AddGlobal registers a global keybinding.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global = upsert(r.global, name, action)
}

// AddView registers a view-specific keybinding.
func (r *Registry) AddView(view, name string, action *Action) {
	r.views[view] = upsert(r.views[view], name, action)
}

// Names returns the binding names active in a view, view bindings first.
func (r *Registry) Names(view string) []string {
	var names []string
	for _, b := range slices.Concat(r.views[view], r.global) {
		names = append(names, b.name)
	}
	return names
}

// HandleEvent dispatches a key event to the first matching action, view
// bindings before global ones. Returns true if a handler ran.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	for _, b := range slices.Concat(r.views[view], r.global) {
		if b.action.Matches(ev) {
			b.action.Handler()
			return true
		}
	}
	return false
}

func upsert(list []binding, name string, action *Action) []binding {
	if i := slices.IndexFunc(list, func(b binding) bool { return b.name == name }); i >= 0 {
		list[i].action = action
		return list
	}
	return append(list, binding{name: name, action: action})
}
