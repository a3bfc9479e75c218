package proctree

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Record is a point-in-time snapshot of a process. Fields the OS refused to
// report, or that could not be read before the process exited, are left at
// their zero value.
type Record struct {
	PID        int
	PPID       int
	Name       string
	ParentName string
	Exe        string
	Cwd        string
	Cmdline    []string
	Owner      string
	CreatedAt  time.Time
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r.Cmdline != nil {
		r.Cmdline = append([]string(nil), r.Cmdline...)
	}
	return r
}

// Empty reports whether nothing besides the pid is known about the process.
func (r Record) Empty() bool {
	return r.PPID == 0 &&
		r.Name == "" &&
		r.ParentName == "" &&
		r.Exe == "" &&
		r.Cwd == "" &&
		len(r.Cmdline) == 0 &&
		r.Owner == "" &&
		r.CreatedAt.IsZero()
}

// CommandLine joins the invocation arguments with spaces.
func (r Record) CommandLine() string {
	return strings.Join(r.Cmdline, " ")
}

// Snapshot reads every attribute of h into a Record. It returns false when the
// process exited during the read or when no attribute could be resolved.
func Snapshot(ctx context.Context, h Handle) (Record, bool) {
	if h == nil {
		return Record{}, false
	}

	gone := false
	ok := func(err error) bool {
		if err == nil {
			return true
		}
		if errors.Is(err, ErrNotFound) {
			gone = true
		}
		return false
	}

	rec := Record{PID: h.PID()}
	if v, err := h.PPID(ctx); ok(err) {
		rec.PPID = v
	}
	if v, err := h.Name(ctx); ok(err) {
		rec.Name = v
	}
	if v, err := h.ParentName(ctx); ok(err) {
		rec.ParentName = v
	}
	if v, err := h.Exe(ctx); ok(err) {
		rec.Exe = v
	}
	if v, err := h.Cwd(ctx); ok(err) {
		rec.Cwd = v
	}
	if v, err := h.Cmdline(ctx); ok(err) && len(v) > 0 {
		rec.Cmdline = append([]string(nil), v...)
	}
	if v, err := h.Username(ctx); ok(err) {
		rec.Owner = v
	}
	if v, err := h.CreateTime(ctx); ok(err) {
		rec.CreatedAt = v
	}

	if gone || rec.Empty() {
		return Record{}, false
	}
	return rec, true
}

// PIDs returns the pids of records in order.
func PIDs(records []Record) []int {
	out := make([]int, len(records))
	for i, rec := range records {
		out[i] = rec.PID
	}
	return out
}
