// Package tui renders the dashboard in the terminal with tview.
//
// Session callbacks only record what changed; a flusher goroutine applies the
// pending changes to the widgets through QueueUpdateDraw so a slow terminal
// never stalls message routing.
package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/router"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/session"
)

const (
	DefaultFlushInterval = 200 * time.Millisecond
	DefaultLogLines      = 200
	valueWidth           = 30
)

// Actions are invoked from the UI goroutine in response to key presses.
type Actions struct {
	Quit             func()
	ToggleConnection func()
	SaveLayout       func() error
}

type Options struct {
	FlushInterval time.Duration
	LogLines      int
	Actions       Actions
}

type Dashboard struct {
	app        *tview.Application
	statusView *tview.TextView
	table      *tview.Table
	logView    *tview.TextView
	logger     zerolog.Logger
	opts       Options
	now        func() time.Time

	// UI goroutine only
	rows    map[string]int
	updates map[string]live.Update
	logSize int

	mu      sync.Mutex
	pending batch
}

// change is a state update or, when removed is set, the removal of
// update.Pattern. Order is preserved so a re-added pattern survives.
type change struct {
	update  live.Update
	removed bool
}

type batch struct {
	changes []change
	logs    []router.LogEntry
	status  *session.Status
}

var (
	_ router.Notifier        = (*Dashboard)(nil)
	_ session.StatusListener = (*Dashboard)(nil)
)

func New(opts Options, logger zerolog.Logger) *Dashboard {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.LogLines <= 0 {
		opts.LogLines = DefaultLogLines
	}

	statusView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)

	table := tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(" Subscriptions ").SetTitleAlign(tview.AlignLeft)
	for col, title := range []string{"Pattern", "Kind", "Value", "Updated"} {
		table.SetCell(0, col, tview.NewTableCell(title).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1))
	}

	logView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	logView.SetBorder(true).SetTitle(" Messages ").SetTitleAlign(tview.AlignLeft)

	help := tview.NewTextView().SetDynamicColors(true).
		SetText("[grey]q[-] quit  [grey]c[-] connect/disconnect  [grey]s[-] save layout")

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(statusView, 1, 0, false).
		AddItem(table, 0, 2, true).
		AddItem(logView, 0, 1, false).
		AddItem(help, 1, 0, false)

	d := &Dashboard{
		app:        tview.NewApplication().SetRoot(root, true),
		statusView: statusView,
		table:      table,
		logView:    logView,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		rows:       make(map[string]int),
		updates:    make(map[string]live.Update),
	}
	d.app.SetInputCapture(d.handleKey)
	return d
}

func (d *Dashboard) StateChanged(update live.Update) {
	d.mu.Lock()
	d.pending.changes = append(d.pending.changes, change{update: update})
	d.mu.Unlock()
}

func (d *Dashboard) MessageLogged(entry router.LogEntry) {
	d.mu.Lock()
	d.pending.logs = append(d.pending.logs, entry)
	if over := len(d.pending.logs) - d.opts.LogLines; over > 0 {
		d.pending.logs = d.pending.logs[over:]
	}
	d.mu.Unlock()
}

func (d *Dashboard) StatusChanged(status session.Status) {
	d.mu.Lock()
	d.pending.status = &status
	d.mu.Unlock()
}

func (d *Dashboard) SubscriptionRemoved(pattern string) {
	d.mu.Lock()
	d.pending.changes = append(d.pending.changes, change{update: live.Update{Pattern: pattern}, removed: true})
	d.mu.Unlock()
}

// Run shows the dashboard until ctx is cancelled or the user quits.
func (d *Dashboard) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.flushLoop(ctx)
	go func() {
		<-ctx.Done()
		d.app.Stop()
	}()

	if err := d.app.Run(); err != nil {
		return fmt.Errorf("terminal display error: %w", err)
	}
	return nil
}

func (d *Dashboard) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(d.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b := d.take()
			now := d.now()
			d.app.QueueUpdateDraw(func() { d.apply(b, now) })
		}
	}
}

func (d *Dashboard) take() batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.pending
	d.pending = batch{}
	return b
}

// apply runs on the UI goroutine. It also refreshes every row so the
// relative ages keep moving between messages.
func (d *Dashboard) apply(b batch, now time.Time) {
	for _, c := range b.changes {
		if c.removed {
			d.removeRow(c.update.Pattern)
			continue
		}
		d.updates[c.update.Pattern] = c.update
		if _, ok := d.rows[c.update.Pattern]; !ok {
			row := d.table.GetRowCount()
			d.rows[c.update.Pattern] = row
			d.renderRow(row, c.update, now)
		}
	}
	for pattern, row := range d.rows {
		d.renderRow(row, d.updates[pattern], now)
	}

	if b.status != nil {
		d.statusView.SetText(StatusLine(*b.status))
	}

	if len(b.logs) > 0 {
		if d.logSize+len(b.logs) > d.opts.LogLines {
			d.logView.Clear()
			d.logSize = 0
		}
		for _, entry := range b.logs {
			fmt.Fprintf(d.logView, "[grey]%s[-] %s %s\n",
				entry.Time.Format("15:04:05"), tview.Escape(entry.Topic), tview.Escape(singleLine(entry.Payload)))
			d.logSize++
		}
		d.logView.ScrollToEnd()
	}
}

func (d *Dashboard) renderRow(row int, u live.Update, now time.Time) {
	cells := []string{
		tview.Escape(u.Pattern),
		u.Kind.String(),
		tview.Escape(FormatValue(u, valueWidth)),
		Age(u.LastUpdate, now),
	}
	for col, text := range cells {
		d.table.SetCell(row, col, tview.NewTableCell(text).SetExpansion(1))
	}
}

func (d *Dashboard) removeRow(pattern string) {
	row, ok := d.rows[pattern]
	if !ok {
		return
	}
	d.table.RemoveRow(row)
	delete(d.rows, pattern)
	delete(d.updates, pattern)
	for p, r := range d.rows {
		if r > row {
			d.rows[p] = r - 1
		}
	}
}

func (d *Dashboard) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() != tcell.KeyRune {
		return event
	}

	switch event.Rune() {
	case 'q':
		if d.opts.Actions.Quit != nil {
			d.opts.Actions.Quit()
		}
		d.app.Stop()
		return nil
	case 'c':
		if d.opts.Actions.ToggleConnection != nil {
			go d.opts.Actions.ToggleConnection()
		}
		return nil
	case 's':
		if d.opts.Actions.SaveLayout != nil {
			go func() {
				if err := d.opts.Actions.SaveLayout(); err != nil {
					d.logger.Error().Err(err).Msg("Failed to save layout")
				}
			}()
		}
		return nil
	}
	return event
}
