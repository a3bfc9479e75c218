package proctree

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports that a process does not exist (any more).
	ErrNotFound = errors.New("no such process")
	// ErrAccessDenied reports that the OS refused an attribute read or a signal.
	ErrAccessDenied = errors.New("access denied")
	// ErrTimeout reports that a process was still running when a wait expired.
	ErrTimeout = errors.New("timed out waiting for process exit")
	// ErrInvalidQuery reports malformed lookup input.
	ErrInvalidQuery = errors.New("invalid process query")
)

// Handle is a live process as seen through the OS process table. Every
// attribute getter may fail on its own; implementations wrap ErrNotFound when
// the process has exited and ErrAccessDenied when the OS refuses the read.
type Handle interface {
	PID() int
	PPID(ctx context.Context) (int, error)
	Name(ctx context.Context) (string, error)
	Exe(ctx context.Context) (string, error)
	Cwd(ctx context.Context) (string, error)
	Cmdline(ctx context.Context) ([]string, error)
	Username(ctx context.Context) (string, error)
	CreateTime(ctx context.Context) (time.Time, error)
	ParentName(ctx context.Context) (string, error)

	// IsRunning reports whether the process is alive. Zombies count as exited.
	IsRunning(ctx context.Context) (bool, error)
	// Terminate asks the process to exit gracefully.
	Terminate(ctx context.Context) error
	// Kill forces the process to exit.
	Kill(ctx context.Context) error
	// Wait blocks until the process exits or timeout elapses, in which case
	// it returns an error wrapping ErrTimeout.
	Wait(ctx context.Context, timeout time.Duration) error
}

// Table enumerates live processes.
type Table interface {
	// Processes returns a handle for every process visible at call time.
	Processes(ctx context.Context) ([]Handle, error)
	// Process returns the handle for pid or an error wrapping ErrNotFound.
	Process(ctx context.Context, pid int) (Handle, error)
	// Self returns the pid of the calling process.
	Self() int
}

// Outcome is the result of a single stop step or of a whole stop attempt.
type Outcome int

const (
	// OutcomeFailed means the process may still be running.
	OutcomeFailed Outcome = iota
	// OutcomeStopped means the signal was delivered and the exit confirmed.
	OutcomeStopped
	// OutcomeGone means the process did not exist when it was addressed.
	OutcomeGone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStopped:
		return "stopped"
	case OutcomeGone:
		return "gone"
	default:
		return "failed"
	}
}

// Succeeded reports whether the process is known not to be running.
func (o Outcome) Succeeded() bool {
	return o == OutcomeStopped || o == OutcomeGone
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeStopped
	case errors.Is(err, ErrNotFound):
		return OutcomeGone
	default:
		return OutcomeFailed
	}
}
