package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"

	"github.com/Paintersrp/rkill/internal/proctree"
)

// DefaultPollInterval is how often Wait re-checks a process.
const DefaultPollInterval = 100 * time.Millisecond

// Option configures a Table.
type Option func(*Table)

// WithPollInterval sets how often Wait polls for process exit.
func WithPollInterval(d time.Duration) Option {
	return func(t *Table) {
		if d > 0 {
			t.poll = d
		}
	}
}

// Table is the host process table.
type Table struct {
	poll time.Duration
	self int
}

var _ proctree.Table = (*Table)(nil)

// New constructs a Table for the local host.
func New(opts ...Option) *Table {
	t := &Table{poll: DefaultPollInterval, self: os.Getpid()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Self returns the pid of the running process.
func (t *Table) Self() int {
	return t.self
}

// Processes lists every process visible to the caller.
func (t *Table) Processes(ctx context.Context) ([]proctree.Handle, error) {
	procs, err := gops.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	out := make([]proctree.Handle, 0, len(procs))
	for _, p := range procs {
		out = append(out, &handle{proc: p, poll: t.poll})
	}
	return out, nil
}

// Process opens pid.
func (t *Table) Process(ctx context.Context, pid int) (proctree.Handle, error) {
	p, err := gops.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		h := &handle{proc: &gops.Process{Pid: int32(pid)}, poll: t.poll}
		return nil, fmt.Errorf("open pid %d: %w", pid, h.translate(ctx, err))
	}
	return &handle{proc: p, poll: t.poll}, nil
}

type handle struct {
	proc *gops.Process
	poll time.Duration
}

func (h *handle) PID() int {
	return int(h.proc.Pid)
}

func (h *handle) PPID(ctx context.Context) (int, error) {
	ppid, err := h.proc.PpidWithContext(ctx)
	if err != nil {
		return 0, h.translate(ctx, err)
	}
	return int(ppid), nil
}

func (h *handle) Name(ctx context.Context) (string, error) {
	name, err := h.proc.NameWithContext(ctx)
	if err != nil {
		return "", h.translate(ctx, err)
	}
	return name, nil
}

func (h *handle) Exe(ctx context.Context) (string, error) {
	exe, err := h.proc.ExeWithContext(ctx)
	if err != nil {
		return "", h.translate(ctx, err)
	}
	return exe, nil
}

func (h *handle) Cwd(ctx context.Context) (string, error) {
	cwd, err := h.proc.CwdWithContext(ctx)
	if err != nil {
		return "", h.translate(ctx, err)
	}
	return cwd, nil
}

func (h *handle) Cmdline(ctx context.Context) ([]string, error) {
	args, err := h.proc.CmdlineSliceWithContext(ctx)
	if err != nil {
		return nil, h.translate(ctx, err)
	}
	return args, nil
}

func (h *handle) Username(ctx context.Context) (string, error) {
	user, err := h.proc.UsernameWithContext(ctx)
	if err != nil {
		return "", h.translate(ctx, err)
	}
	return user, nil
}

func (h *handle) CreateTime(ctx context.Context) (time.Time, error) {
	ms, err := h.proc.CreateTimeWithContext(ctx)
	if err != nil {
		return time.Time{}, h.translate(ctx, err)
	}
	if ms <= 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// ParentName returns the name of the parent process, or an empty string when
// the parent is unknown or has already exited.
func (h *handle) ParentName(ctx context.Context) (string, error) {
	ppid, err := h.PPID(ctx)
	if err != nil {
		return "", err
	}
	if ppid <= 0 {
		return "", nil
	}
	parent, err := gops.NewProcessWithContext(ctx, int32(ppid))
	if err != nil {
		return "", nil
	}
	name, err := parent.NameWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("parent %d: %w", ppid, proctree.ErrAccessDenied)
	}
	return name, nil
}

// IsRunning reports whether the process is alive. A zombie has exited even
// though it still holds its pid.
func (h *handle) IsRunning(ctx context.Context) (bool, error) {
	running, err := h.proc.IsRunningWithContext(ctx)
	if err != nil {
		err = h.translate(ctx, err)
		if errors.Is(err, proctree.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !running {
		return false, nil
	}
	status, err := h.proc.StatusWithContext(ctx)
	if err != nil {
		return true, nil
	}
	for _, s := range status {
		if s == gops.Zombie {
			return false, nil
		}
	}
	return true, nil
}

func (h *handle) Terminate(ctx context.Context) error {
	if err := terminate(ctx, h.proc); err != nil {
		return fmt.Errorf("terminate pid %d: %w", h.proc.Pid, h.translate(ctx, err))
	}
	return nil
}

func (h *handle) Kill(ctx context.Context) error {
	if err := h.proc.KillWithContext(ctx); err != nil {
		return fmt.Errorf("kill pid %d: %w", h.proc.Pid, h.translate(ctx, err))
	}
	return nil
}

// Wait polls until the process is gone or timeout elapses.
func (h *handle) Wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	for {
		running, err := h.IsRunning(ctx)
		if err != nil && !errors.Is(err, proctree.ErrAccessDenied) {
			return err
		}
		if err == nil && !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("pid %d after %s: %w", h.proc.Pid, timeout, proctree.ErrTimeout)
		case <-ticker.C:
		}
	}
}

// translate maps gopsutil and syscall errors onto the proctree sentinels. A
// missing /proc entry only means the process is gone when its pid is free.
func (h *handle) translate(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gops.ErrorProcessNotRunning),
		errors.Is(err, os.ErrProcessDone),
		errors.Is(err, syscall.ESRCH):
		return fmt.Errorf("%w: %v", proctree.ErrNotFound, err)
	case errors.Is(err, gops.ErrorNotPermitted),
		errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", proctree.ErrAccessDenied, err)
	case errors.Is(err, fs.ErrNotExist):
		if exists, perr := gops.PidExistsWithContext(ctx, h.proc.Pid); perr == nil && !exists {
			return fmt.Errorf("%w: %v", proctree.ErrNotFound, err)
		}
		return fmt.Errorf("%w: %v", proctree.ErrAccessDenied, err)
	default:
		return err
	}
}
