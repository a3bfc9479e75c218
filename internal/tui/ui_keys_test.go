package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/rivo/tview"

	"github.com/Paintersrp/rkill/internal/proctree"
)

var screenNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScreen(t *testing.T) *Screen {
	t.Helper()
	targets := []proctree.Record{
		{PID: 13, PPID: 12, Name: "sleep", Cmdline: []string{"sleep", "30"}, CreatedAt: screenNow.Add(-time.Second)},
		{PID: 12, PPID: 10, Name: "sh", Cmdline: []string{"sh", "-c", "sleep 30"}, CreatedAt: screenNow.Add(-time.Minute)},
		{PID: 10, PPID: 1, Name: "server", Cmdline: []string{"server", "--password=hunter2"}, CreatedAt: screenNow.Add(-time.Hour)},
	}
	return New(targets, WithClock(func() time.Time { return screenNow }))
}

func keyRune(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func waitDone(t *testing.T, s *Screen) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the screen to stop")
	}
}

func TestConfirmKeepsUnsparedTargets(t *testing.T) {
	s := newTestScreen(t)

	s.table.Select(2, 0)
	if res := s.handleKey(keyRune(' ')); res != nil {
		t.Fatalf("expected space to be consumed")
	}
	if !s.spared[12] {
		t.Fatalf("expected pid 12 to be spared")
	}

	if res := s.handleKey(keyRune('y')); res != nil {
		t.Fatalf("expected y to be consumed")
	}
	waitDone(t, s)

	kept, err := s.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if diff := cmp.Diff([]int{13, 10}, proctree.PIDs(kept)); diff != "" {
		t.Fatalf("unexpected kept targets (-want +got):\n%s", diff)
	}
}

func TestSpaceTogglesAndUnspareAll(t *testing.T) {
	s := newTestScreen(t)

	s.table.Select(1, 0)
	s.handleKey(keyRune(' '))
	s.handleKey(keyRune(' '))
	if s.spared[13] {
		t.Fatalf("expected second space to unspare pid 13")
	}

	s.handleKey(keyRune(' '))
	s.table.Select(3, 0)
	s.handleKey(keyRune(' '))
	if len(s.spared) != 2 {
		t.Fatalf("expected two spared targets, got %v", s.spared)
	}
	if got := s.table.GetTitle(); got != "Targets (1 of 3)" {
		t.Fatalf("unexpected title %q", got)
	}

	s.handleKey(keyRune('a'))
	if len(s.spared) != 0 {
		t.Fatalf("expected unspare all to clear spared targets, got %v", s.spared)
	}
}

func TestAbortKeys(t *testing.T) {
	cases := []struct {
		name  string
		event *tcell.EventKey
	}{
		{name: "n", event: keyRune('n')},
		{name: "q", event: keyRune('q')},
		{name: "escape", event: tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestScreen(t)
			if res := s.handleKey(tc.event); res != nil {
				t.Fatalf("expected abort key to be consumed")
			}
			waitDone(t, s)
			if _, err := s.Result(); !errors.Is(err, ErrAborted) {
				t.Fatalf("expected ErrAborted, got %v", err)
			}
			if s.Confirmed() {
				t.Fatalf("expected screen not to be confirmed")
			}
		})
	}
}

func TestFilterNarrowsVisibleRows(t *testing.T) {
	s := newTestScreen(t)

	if res := s.handleKey(keyRune('/')); res != nil {
		t.Fatalf("expected filter shortcut to be consumed")
	}
	if _, ok := s.app.GetFocus().(*tview.InputField); !ok {
		t.Fatalf("expected filter input to have focus, got %T", s.app.GetFocus())
	}

	y := keyRune('y')
	if res := s.handleKey(y); res != y {
		t.Fatalf("expected keys to bypass the screen while the overlay is open")
	}
	if s.Confirmed() {
		t.Fatalf("expected y typed into the filter not to confirm")
	}

	s.applyFilter("SLEEP")
	if s.pages.HasPage(filterPageName) {
		t.Fatalf("expected filter overlay to close")
	}
	if diff := cmp.Diff([]int{13, 12}, s.visible); diff != "" {
		t.Fatalf("unexpected visible rows (-want +got):\n%s", diff)
	}

	s.applyFilter("")
	if len(s.visible) != 3 {
		t.Fatalf("expected clearing the filter to show every target, got %v", s.visible)
	}
}

func TestInvalidFilterShowsError(t *testing.T) {
	s := newTestScreen(t)
	s.applyFilter("(")
	if !s.pages.HasPage(filterPageName) {
		t.Fatalf("expected error modal to be shown")
	}
	if len(s.visible) != 3 {
		t.Fatalf("expected rows to be unchanged, got %v", s.visible)
	}
}

func TestDetailsRedactSecrets(t *testing.T) {
	s := newTestScreen(t)
	s.table.Select(3, 0)
	text := s.details.GetText(false)
	if want := "--password=[redacted]"; !strings.Contains(text, want) {
		t.Fatalf("expected details to contain %q, got %q", want, text)
	}
	if strings.Contains(text, "hunter2") {
		t.Fatalf("expected secret to be hidden, got %q", text)
	}
}

func TestEnterTogglesFocus(t *testing.T) {
	s := newTestScreen(t)
	s.app.SetFocus(s.table)

	s.handleKey(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
	if s.app.GetFocus() != s.details {
		t.Fatalf("expected details to have focus")
	}
	s.handleKey(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
	if s.app.GetFocus() != s.table {
		t.Fatalf("expected table to have focus")
	}
}

func TestAgesShareReportFormat(t *testing.T) {
	s := newTestScreen(t)

	if got := s.table.GetCell(1, 5).Text; got != "1 second ago" {
		t.Fatalf("unexpected age cell %q", got)
	}
	s.table.Select(3, 0)
	want := "created: 2024-03-01 11:00:00 (About an hour ago)"
	if text := s.details.GetText(false); !strings.Contains(text, want) {
		t.Fatalf("expected details to contain %q, got %q", want, text)
	}
}
