package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/fieldsync/internal/store"
	"github.com/matheus3301/fieldsync/internal/tui/ui"
	"github.com/rivo/tview"
)

var queueColumns = []string{"SEQ", "STATUS", "OP", "COLLECTION", "RECORD", "RETRIES", "AGE", "NEXT", "ERROR"}

// QueueTable lists sync queue items, oldest first.
type QueueTable struct {
	*tview.Table
	theme *ui.Theme
	items []store.QueueItem
	now   func() time.Time
}

// NewQueueTable creates the queue table.
func NewQueueTable(theme *ui.Theme) *QueueTable {
	t := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	t.SetBorder(true)
	t.SetBorderColor(theme.Border)
	t.SetBackgroundColor(theme.Bg)
	t.SetTitleColor(theme.Title)
	t.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.CursorFg).
		Background(theme.CursorBg))

	qt := &QueueTable{Table: t, theme: theme, now: time.Now}
	qt.SetFilterTitle("")
	return qt
}

// Name implements Component.
func (qt *QueueTable) Name() string { return "Queue" }

// Hints implements Component.
func (qt *QueueTable) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "r", Description: "Requeue selected"},
		{Key: "0", Description: "All", Numeric: true},
		{Key: "1", Description: "Pending", Numeric: true},
		{Key: "2", Description: "Failed", Numeric: true},
		{Key: "3", Description: "Synced", Numeric: true},
		{Key: "Esc", Description: "Back"},
	}
}

// SetFilterTitle shows the active status filter in the border title.
func (qt *QueueTable) SetFilterTitle(status store.SyncStatus) {
	if status == "" {
		qt.SetTitle(" Queue ")
		return
	}
	qt.SetTitle(fmt.Sprintf(" Queue (%s) ", status))
}

// Update replaces the rows, keeping the selection on the same item when it
// is still listed.
func (qt *QueueTable) Update(items []store.QueueItem) {
	selected := qt.Selected()

	qt.Clear()
	for col, h := range queueColumns {
		qt.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(qt.theme.HeaderFg).
			SetBackgroundColor(qt.theme.HeaderBg).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold))
	}

	now := qt.now()
	row := 1
	for i := range items {
		it := &items[i]
		next := "-"
		if it.SyncStatus == store.StatusPending && it.NextAttemptAt.After(now) {
			next = "in " + it.NextAttemptAt.Sub(now).Truncate(time.Second).String()
		}
		cells := []string{
			fmt.Sprintf("%d", it.Seq),
			string(it.SyncStatus),
			string(it.Operation),
			cellText(it.ObjectStore, 20),
			cellText(it.RecordID, 24),
			fmt.Sprintf("%d", it.RetryCount),
			ui.FormatAgo(it.CreatedAt, now),
			next,
			cellText(it.ErrorMessage, 60),
		}
		for col, text := range cells {
			cell := tview.NewTableCell(text).SetTextColor(qt.theme.Fg)
			if col == 1 {
				cell.SetTextColor(qt.statusColor(it.SyncStatus))
			}
			if col == len(cells)-1 {
				cell.SetExpansion(1)
			}
			qt.SetCell(row, col, cell)
		}
		row++
	}
	qt.items = items

	qt.Select(1, 0)
	for i := range items {
		if items[i].ID == selected {
			qt.Select(i+1, 0)
			break
		}
	}
}

// Selected returns the id of the highlighted item, or "".
func (qt *QueueTable) Selected() string {
	row, _ := qt.GetSelection()
	if row < 1 || row > len(qt.items) {
		return ""
	}
	return qt.items[row-1].ID
}

// SelectedItem returns the highlighted item, or nil.
func (qt *QueueTable) SelectedItem() *store.QueueItem {
	row, _ := qt.GetSelection()
	if row < 1 || row > len(qt.items) {
		return nil
	}
	it := qt.items[row-1]
	return &it
}

func (qt *QueueTable) statusColor(s store.SyncStatus) tcell.Color {
	switch s {
	case store.StatusSynced:
		return qt.theme.OK
	case store.StatusError:
		return qt.theme.Bad
	default:
		return qt.theme.Busy
	}
}
