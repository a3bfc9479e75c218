package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/rkill/internal/cliutil"
	"github.com/Paintersrp/rkill/internal/proctree"
)

const (
	tableTitle     = "Targets"
	detailsTitle   = "Details"
	filterPageName = "filter"
	helpText       = "[y] kill  [n/q/Esc] abort  [space] spare/unspare  [a] unspare all  [/] filter  [Enter] details"
)

// ErrAborted is returned when the user leaves the screen without confirming.
var ErrAborted = errors.New("aborted by user")

// Option configures a Screen.
type Option func(*Screen)

// WithScreen runs the application on the given terminal screen.
func WithScreen(screen tcell.Screen) Option {
	return func(s *Screen) {
		if screen != nil {
			s.app.SetScreen(screen)
		}
	}
}

// WithClock sets the reference time used for process ages.
func WithClock(now func() time.Time) Option {
	return func(s *Screen) {
		if now != nil {
			s.now = now
		}
	}
}

// Screen lets the user review the resolved targets, spare some of them and
// confirm or abort the kill.
type Screen struct {
	app     *tview.Application
	pages   *tview.Pages
	table   *tview.Table
	details *tview.TextView
	status  *tview.TextView

	targets    []proctree.Record
	spared     map[int]bool
	visible    []int
	filter     string
	filterExpr *regexp.Regexp
	focusInfo  bool
	confirmed  bool
	now        func() time.Time

	mu       sync.Mutex
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a Screen for targets.
func New(targets []proctree.Record, opts ...Option) *Screen {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	details := tview.NewTextView().SetDynamicColors(false).SetWrap(true)
	details.SetBorder(true).SetTitle(detailsTitle)

	status := tview.NewTextView().SetText(helpText)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 3, true).
		AddItem(details, 0, 1, false).
		AddItem(status, 1, 0, false)

	pages := tview.NewPages().AddPage("main", flex, true, true)

	s := &Screen{
		app:     app,
		pages:   pages,
		table:   table,
		details: details,
		status:  status,
		targets: targets,
		spared:  make(map[int]bool),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Selection changes fire on the event loop and from refreshTableLocked,
	// which already holds mu.
	table.SetSelectionChangedFunc(func(row, column int) {
		s.renderDetailsLocked(row)
	})

	app.SetRoot(pages, true)
	app.SetInputCapture(s.handleKey)

	s.mu.Lock()
	s.refreshTableLocked()
	s.mu.Unlock()
	return s
}

// Filter returns a proctree.Filter that shows a Screen for every batch.
func Filter(opts ...Option) proctree.Filter {
	return func(ctx context.Context, targets []proctree.Record) ([]proctree.Record, error) {
		return New(targets, opts...).Run(ctx)
	}
}

// Run shows the screen until the user decides or ctx is cancelled. It
// returns the targets that were not spared, in their original order.
func (s *Screen) Run(ctx context.Context) ([]proctree.Record, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	err := s.app.Run()
	s.Stop()
	if err != nil {
		return nil, fmt.Errorf("run confirmation screen: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !s.Confirmed() {
		return nil, ctxErr
	}
	return s.Result()
}

// Stop terminates the application loop.
func (s *Screen) Stop() {
	s.stopOnce.Do(func() {
		s.app.Stop()
		close(s.done)
	})
}

// Done is closed once the screen stops.
func (s *Screen) Done() <-chan struct{} {
	return s.done
}

// Confirmed reports whether the user accepted the kill.
func (s *Screen) Confirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

// Result returns the kept targets after a confirmation, or ErrAborted.
func (s *Screen) Result() ([]proctree.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.confirmed {
		return nil, ErrAborted
	}
	kept := make([]proctree.Record, 0, len(s.targets))
	for _, rec := range s.targets {
		if !s.spared[rec.PID] {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

func (s *Screen) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if s.pages.HasPage(filterPageName) {
		return event
	}
	switch event.Key() {
	case tcell.KeyEscape:
		s.decide(false)
		return nil
	case tcell.KeyEnter:
		s.toggleFocus()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'y', 'Y':
			s.decide(true)
			return nil
		case 'n', 'N', 'q', 'Q':
			s.decide(false)
			return nil
		case ' ':
			s.toggleSelected()
			return nil
		case 'a', 'A':
			s.unspareAll()
			return nil
		case '/':
			s.showFilterPrompt()
			return nil
		}
	}
	return event
}

func (s *Screen) decide(confirm bool) {
	s.mu.Lock()
	s.confirmed = confirm
	s.mu.Unlock()
	go s.Stop()
}

func (s *Screen) toggleFocus() {
	if s.focusInfo {
		s.app.SetFocus(s.table)
	} else {
		s.app.SetFocus(s.details)
	}
	s.focusInfo = !s.focusInfo
}

func (s *Screen) toggleSelected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, _ := s.table.GetSelection()
	pid, ok := s.pidAtLocked(row)
	if !ok {
		return
	}
	if s.spared[pid] {
		delete(s.spared, pid)
	} else {
		s.spared[pid] = true
	}
	s.refreshTableLocked()
}

func (s *Screen) unspareAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spared = make(map[int]bool)
	s.refreshTableLocked()
}

func (s *Screen) showFilterPrompt() {
	s.mu.Lock()
	current := s.filter
	s.mu.Unlock()

	input := tview.NewInputField().
		SetLabel("Regex filter: ").
		SetText(current).
		SetFieldWidth(40)

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Apply", func() {
			s.applyFilter(input.GetText())
		}).
		AddButton("Cancel", func() {
			s.closeOverlay()
		})
	form.SetBorder(true).SetTitle("Filter Targets")

	grid := tview.NewGrid().
		SetColumns(0, 60, 0).
		SetRows(0, 7, 0).
		AddItem(form, 1, 1, 1, 1, 0, 0, true)

	s.pages.AddPage(filterPageName, grid, true, true)
	s.app.SetFocus(input)
}

func (s *Screen) applyFilter(expr string) {
	expr = strings.TrimSpace(expr)
	var re *regexp.Regexp
	if expr != "" {
		compiled, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			s.showErrorModal(fmt.Sprintf("Invalid filter: %v", err))
			return
		}
		re = compiled
	}

	s.mu.Lock()
	s.filter = expr
	s.filterExpr = re
	s.refreshTableLocked()
	s.mu.Unlock()
	s.closeOverlay()
}

func (s *Screen) closeOverlay() {
	s.pages.RemovePage(filterPageName)
	s.app.SetFocus(s.table)
	s.focusInfo = false
}

func (s *Screen) showErrorModal(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			s.closeOverlay()
		})

	s.pages.RemovePage(filterPageName)
	s.pages.AddPage(filterPageName, modal, true, true)
}

func (s *Screen) pidAtLocked(row int) (int, bool) {
	idx := row - 1
	if idx < 0 || idx >= len(s.visible) {
		return 0, false
	}
	return s.visible[idx], true
}

func (s *Screen) recordLocked(pid int) (proctree.Record, bool) {
	for _, rec := range s.targets {
		if rec.PID == pid {
			return rec, true
		}
	}
	return proctree.Record{}, false
}

func (s *Screen) refreshTableLocked() {
	row, _ := s.table.GetSelection()
	selectedPID, hadSelection := s.pidAtLocked(row)

	s.table.Clear()
	headers := []string{"KILL", "PID", "PPID", "NAME", "OWNER", "AGE", "COMMAND"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		s.table.SetCell(0, col, cell)
	}

	s.visible = s.visible[:0]
	for _, rec := range s.targets {
		if s.filterExpr != nil && !s.filterExpr.MatchString(rec.Name) && !s.filterExpr.MatchString(rec.CommandLine()) {
			continue
		}
		s.visible = append(s.visible, rec.PID)
	}

	kept := 0
	for _, rec := range s.targets {
		if !s.spared[rec.PID] {
			kept++
		}
	}
	title := fmt.Sprintf("%s (%d of %d)", tableTitle, kept, len(s.targets))
	if s.filter != "" {
		title += fmt.Sprintf(" /%s/", s.filter)
	}
	s.table.SetTitle(title)

	for i, pid := range s.visible {
		rec, _ := s.recordLocked(pid)
		mark := "yes"
		color := tcell.ColorDefault
		if s.spared[pid] {
			mark = "spare"
			color = tcell.ColorGray
		}
		ppid := "-"
		if rec.PPID > 0 {
			ppid = strconv.Itoa(rec.PPID)
		}
		values := []string{
			mark,
			strconv.Itoa(rec.PID),
			ppid,
			rec.Name,
			rec.Owner,
			cliutil.Age(rec.CreatedAt, s.now()),
			cliutil.RedactCommand(rec.Cmdline),
		}
		for col, value := range values {
			cell := tview.NewTableCell(value).SetTextColor(color)
			if col == 1 {
				cell = cell.SetReference(pid)
			}
			if col == len(values)-1 {
				cell = cell.SetMaxWidth(80)
			}
			s.table.SetCell(i+1, col, cell)
		}
	}

	target := 1
	if hadSelection {
		for i, pid := range s.visible {
			if pid == selectedPID {
				target = i + 1
				break
			}
		}
	}
	if len(s.visible) > 0 {
		s.table.Select(target, 0)
	}
	s.renderDetailsLocked(target)
}

func (s *Screen) renderDetailsLocked(row int) {
	pid, ok := s.pidAtLocked(row)
	if !ok {
		s.details.SetText("")
		return
	}
	rec, _ := s.recordLocked(pid)
	var b strings.Builder
	fmt.Fprintf(&b, "pid:     %d\n", rec.PID)
	fmt.Fprintf(&b, "parent:  %s (%d)\n", rec.ParentName, rec.PPID)
	fmt.Fprintf(&b, "created: %s\n", cliutil.Created(rec.CreatedAt, s.now()))
	fmt.Fprintf(&b, "exe:     %s\n", rec.Exe)
	fmt.Fprintf(&b, "cwd:     %s\n", rec.Cwd)
	fmt.Fprintf(&b, "command: %s", cliutil.RedactCommand(rec.Cmdline))
	s.details.SetText(b.String())
}
