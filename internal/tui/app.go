package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/fieldsync/internal/store"
	"github.com/matheus3301/fieldsync/internal/tui/keys"
	"github.com/matheus3301/fieldsync/internal/tui/model"
	"github.com/matheus3301/fieldsync/internal/tui/ui"
	"github.com/matheus3301/fieldsync/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageSync   = "sync"
	pageQueue  = "queue"
	pageDevice = "device"
	pageHelp   = "help"

	refreshInterval = 5 * time.Second
	callTimeout     = 30 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	vm       *model.ViewModel
	registry *keys.Registry

	profile  *ui.ProfileInfo
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	flash    *ui.FlashBar
	prompt   *ui.Prompt
	body     *tview.Flex
	syncView *views.SyncPanel
	queue    *views.QueueTable
	device   *views.DeviceView
	help     *views.HelpView

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application over a daemon connection.
func NewApp(d model.Daemon) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		vm:       model.NewViewModel(d),
		registry: keys.NewRegistry(),
		profile:  ui.NewProfileInfo(theme),
		menu:     ui.NewMenu(theme, 5),
		crumbs:   ui.NewCrumbs(theme),
		flash:    ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),
		syncView: views.NewSyncPanel(theme),
		queue:    views.NewQueueTable(theme),
		device:   views.NewDeviceView(theme),
		help:     views.NewHelpView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.pages.Register(pageSync, a.syncView)
	a.pages.Register(pageQueue, a.queue)
	a.pages.Register(pageDevice, a.device)
	a.pages.Register(pageHelp, a.help)

	a.setupBindings()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	key := func(r rune, fn func()) *keys.Action {
		return &keys.Action{Key: tcell.KeyRune, Rune: r, Handler: fn}
	}

	a.registry.AddGlobal("quit", key('q', a.Stop))
	a.registry.AddGlobal("help", key('?', func() { a.open(pageHelp) }))
	a.registry.AddGlobal("command", key(':', func() { a.showPrompt() }))
	a.registry.AddGlobal("force", key('f', func() { a.async(a.vm.ForceSync) }))
	a.registry.AddGlobal("clear", key('c', func() { a.async(a.vm.ClearSynced) }))
	a.registry.AddGlobal("queue", key('l', func() { a.open(pageQueue) }))
	a.registry.AddGlobal("device", key('d', func() { a.open(pageDevice) }))
	a.registry.AddGlobal("requeue", key('r', func() { a.requeue() }))
	a.registry.AddGlobal("back", &keys.Action{Key: tcell.KeyEscape, Handler: a.back})

	a.registry.AddView(pageQueue, "requeue", key('r', func() {
		if it := a.queue.SelectedItem(); it != nil {
			if it.SyncStatus != store.StatusError {
				a.vm.Flash.Warn("Only failed items can be requeued")
				a.redraw()
				return
			}
			a.requeue(it.ID)
		}
	}))
	a.registry.AddView(pageQueue, "requeue-all", key('R', func() { a.requeue() }))
	for r, st := range map[rune]store.SyncStatus{
		'0': "",
		'1': store.StatusPending,
		'2': store.StatusError,
		'3': store.StatusSynced,
	} {
		a.registry.AddView(pageQueue, "filter-"+string(r), key(r, func() { a.filterQueue(st) }))
	}
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		AddItem(ui.NewLogo(a.theme), 16, 0, false).
		AddItem(a.profile, 0, 1, false).
		AddItem(a.menu, 0, 1, false)

	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(a.vm.Network().Profile, stack)
		if c := a.pages.CurrentComponent(); c != nil {
			a.menu.Update(c.Hints())
			a.app.SetFocus(c)
		}
	})

	a.prompt.SetOnSubmit(func(text string) {
		a.hidePrompt()
		a.runCommand(text)
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flash, 1, 0, false)
	a.app.SetRoot(a.body, true)

	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if a.prompt.HasFocus() {
			return ev
		}
		if a.registry.HandleEvent(a.pages.Current(), ev) {
			return nil
		}
		return ev
	})

	a.pages.Reset(pageSync)
}

func (a *App) open(page string) {
	if a.pages.Current() == page {
		return
	}
	if page == pageQueue {
		a.async(a.vm.LoadQueue)
	}
	a.pages.Push(page)
	a.render()
}

func (a *App) back() {
	if a.pages.Depth() > 1 {
		a.pages.Pop()
	}
}

func (a *App) showPrompt() {
	a.prompt.Activate()
	a.body.AddItem(a.prompt, 3, 0, false)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.body.RemoveItem(a.prompt)
	if c := a.pages.CurrentComponent(); c != nil {
		a.app.SetFocus(c)
	}
}

func (a *App) runCommand(text string) {
	cmd, err := ParseCommand(text)
	if err != nil {
		a.vm.Flash.Err(err)
		a.redraw()
		return
	}
	switch cmd.Name {
	case "status":
		a.pages.Reset(pageSync)
	case "queue":
		st := store.SyncStatus("")
		if len(cmd.Args) == 1 {
			st, _ = queueStatusArg(cmd.Args[0])
		}
		a.filterQueue(st)
		a.open(pageQueue)
	case "force":
		a.async(a.vm.ForceSync)
	case "clear":
		a.async(a.vm.ClearSynced)
	case "requeue":
		a.requeue(cmd.Args...)
	case "device":
		a.open(pageDevice)
	case "help":
		a.open(pageHelp)
	case "quit":
		a.Stop()
	}
}

func (a *App) filterQueue(st store.SyncStatus) {
	if err := a.vm.SetQueueStatus(st); err != nil {
		a.vm.Flash.Err(err)
		return
	}
	a.queue.SetFilterTitle(st)
	a.async(a.vm.LoadQueue)
}

func (a *App) requeue(ids ...string) {
	a.async(func(ctx context.Context) error { return a.vm.Requeue(ctx, ids...) })
}

// async runs fn off the UI goroutine and redraws when it returns. Errors
// surface through the flash bar.
func (a *App) async(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := fn(ctx); err != nil && a.vm.Flash.Get() == "" {
			a.vm.Flash.Err(err)
		}
		a.redraw()
	}()
}

func (a *App) redraw() {
	a.app.QueueUpdateDraw(a.render)
}

// render copies the view model into every widget. Must run on the UI
// goroutine.
func (a *App) render() {
	st, ns := a.vm.Status(), a.vm.Network()
	a.profile.Update(a.vm.Profile())
	a.syncView.Update(st, ns)
	a.device.Update(ns)
	if a.pages.Current() == pageQueue {
		a.queue.Update(a.vm.Queue())
	}
	a.crumbs.Update(ns.Profile, a.pages.Stack())
	a.flash.Update(a.vm.Flash.GetMessage())
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		if err := a.vm.LoadStatus(ctx); err != nil {
			a.vm.Flash.Err(err)
		}
		cancel()
		a.redraw()

		go a.watch()
		a.refreshLoop()
	}()
	return a.app.Run()
}

// watch follows the daemon's status stream, reconnecting after a pause
// when it breaks.
func (a *App) watch() {
	for a.ctx.Err() == nil {
		if err := a.vm.Watch(a.ctx); err != nil && a.ctx.Err() == nil {
			a.vm.Flash.Warn("Status stream lost: " + err.Error())
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(refreshInterval):
		}
	}
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.vm.RefreshCh():
			a.redraw()
		case <-a.vm.Flash.Watch():
			a.redraw()
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			_ = a.vm.LoadStatus(ctx)
			_ = a.vm.LoadQueue(ctx)
			cancel()
			a.redraw()
		}
	}
}

// Stop shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
