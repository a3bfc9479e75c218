package proctree

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeProc is one entry of a synthetic process table.
type fakeProc struct {
	pid     int
	ppid    int
	name    string
	exe     string
	cmdline []string
	owner   string
	created time.Time

	exited     bool
	ignoreTerm bool
	denyTerm   bool
	denyKill   bool
	denyAttrs  bool

	terminates int
	kills      int
}

type fakeTable struct {
	mu    sync.Mutex
	self  int
	procs []*fakeProc
	scans int
	// onScan runs before every full scan, letting tests mutate the table
	// between rounds.
	onScan func(scan int, t *fakeTable)
}

func newFakeTable(self int, procs ...*fakeProc) *fakeTable {
	return &fakeTable{self: self, procs: procs}
}

func (t *fakeTable) add(p *fakeProc) {
	t.procs = append(t.procs, p)
}

func (t *fakeTable) find(pid int) *fakeProc {
	for _, p := range t.procs {
		if p.pid == pid && !p.exited {
			return p
		}
	}
	return nil
}

func (t *fakeTable) Processes(ctx context.Context) ([]Handle, error) {
	t.mu.Lock()
	t.scans++
	scan := t.scans
	hook := t.onScan
	t.mu.Unlock()
	if hook != nil {
		hook(scan, t)
	}

	var out []Handle
	for _, p := range t.procs {
		if p.exited {
			continue
		}
		out = append(out, &fakeHandle{table: t, proc: p})
	}
	return out, nil
}

func (t *fakeTable) Process(ctx context.Context, pid int) (Handle, error) {
	p := t.find(pid)
	if p == nil {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrNotFound)
	}
	return &fakeHandle{table: t, proc: p}, nil
}

func (t *fakeTable) Self() int {
	return t.self
}

type fakeHandle struct {
	table *fakeTable
	proc  *fakeProc
}

func (h *fakeHandle) attr() error {
	if h.proc.exited {
		return ErrNotFound
	}
	if h.proc.denyAttrs {
		return ErrAccessDenied
	}
	return nil
}

func (h *fakeHandle) PID() int { return h.proc.pid }

func (h *fakeHandle) PPID(ctx context.Context) (int, error) {
	if h.proc.exited {
		return 0, ErrNotFound
	}
	return h.proc.ppid, nil
}

func (h *fakeHandle) Name(ctx context.Context) (string, error) {
	if h.proc.exited {
		return "", ErrNotFound
	}
	return h.proc.name, nil
}

func (h *fakeHandle) Exe(ctx context.Context) (string, error) {
	if err := h.attr(); err != nil {
		return "", err
	}
	return h.proc.exe, nil
}

func (h *fakeHandle) Cwd(ctx context.Context) (string, error) {
	if err := h.attr(); err != nil {
		return "", err
	}
	return "/", nil
}

func (h *fakeHandle) Cmdline(ctx context.Context) ([]string, error) {
	if err := h.attr(); err != nil {
		return nil, err
	}
	return h.proc.cmdline, nil
}

func (h *fakeHandle) Username(ctx context.Context) (string, error) {
	if err := h.attr(); err != nil {
		return "", err
	}
	return h.proc.owner, nil
}

func (h *fakeHandle) CreateTime(ctx context.Context) (time.Time, error) {
	if h.proc.exited {
		return time.Time{}, ErrNotFound
	}
	return h.proc.created, nil
}

func (h *fakeHandle) ParentName(ctx context.Context) (string, error) {
	if h.proc.exited {
		return "", ErrNotFound
	}
	if parent := h.table.find(h.proc.ppid); parent != nil {
		return parent.name, nil
	}
	return "", nil
}

func (h *fakeHandle) IsRunning(ctx context.Context) (bool, error) {
	return !h.proc.exited, nil
}

func (h *fakeHandle) Terminate(ctx context.Context) error {
	h.proc.terminates++
	if h.proc.exited {
		return ErrNotFound
	}
	if h.proc.denyTerm {
		return ErrAccessDenied
	}
	if !h.proc.ignoreTerm {
		h.proc.exited = true
	}
	return nil
}

func (h *fakeHandle) Kill(ctx context.Context) error {
	h.proc.kills++
	if h.proc.exited {
		return ErrNotFound
	}
	if h.proc.denyKill {
		return ErrAccessDenied
	}
	h.proc.exited = true
	return nil
}

func (h *fakeHandle) Wait(ctx context.Context, timeout time.Duration) error {
	if h.proc.exited {
		return nil
	}
	return ErrTimeout
}

// mockHandle records calls on the process-control surface.
type mockHandle struct {
	mock.Mock
	pid int
}

func (m *mockHandle) PID() int { return m.pid }

func (m *mockHandle) PPID(ctx context.Context) (int, error) { return 0, ErrAccessDenied }
func (m *mockHandle) Name(ctx context.Context) (string, error) { return "", ErrAccessDenied }
func (m *mockHandle) Exe(ctx context.Context) (string, error) { return "", ErrAccessDenied }
func (m *mockHandle) Cwd(ctx context.Context) (string, error) { return "", ErrAccessDenied }
func (m *mockHandle) Cmdline(ctx context.Context) ([]string, error) { return nil, ErrAccessDenied }
func (m *mockHandle) Username(ctx context.Context) (string, error) { return "", ErrAccessDenied }
func (m *mockHandle) ParentName(ctx context.Context) (string, error) { return "", ErrAccessDenied }

func (m *mockHandle) CreateTime(ctx context.Context) (time.Time, error) {
	return time.Time{}, ErrAccessDenied
}

func (m *mockHandle) IsRunning(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockHandle) Terminate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockHandle) Kill(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockHandle) Wait(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

// mockTable serves mock handles by pid and counts lookups.
type mockTable struct {
	fake    *fakeTable
	handles map[int]*mockHandle
}

func (t *mockTable) Processes(ctx context.Context) ([]Handle, error) {
	return t.fake.Processes(ctx)
}

func (t *mockTable) Process(ctx context.Context, pid int) (Handle, error) {
	if h, ok := t.handles[pid]; ok {
		return h, nil
	}
	return nil, ErrNotFound
}

func (t *mockTable) Self() int { return t.fake.Self() }
