package proctree

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Query selects seed processes. Every non-empty selector contributes matches;
// the union is de-duplicated by pid.
type Query struct {
	PIDs    []int
	Name    string
	Pattern string
}

// Empty reports whether the query selects nothing.
func (q Query) Empty() bool {
	return len(q.PIDs) == 0 && strings.TrimSpace(q.Name) == "" && strings.TrimSpace(q.Pattern) == ""
}

// Validate rejects malformed selectors before any process is touched.
func (q Query) Validate() error {
	for _, pid := range q.PIDs {
		if pid < 1 {
			return fmt.Errorf("%w: pid must be a positive integer, got %d", ErrInvalidQuery, pid)
		}
	}
	if q.Name != "" && strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("%w: name must not be blank", ErrInvalidQuery)
	}
	if q.Pattern != "" {
		if strings.TrimSpace(q.Pattern) == "" {
			return fmt.Errorf("%w: pattern must not be blank", ErrInvalidQuery)
		}
		if _, err := compilePattern(q.Pattern); err != nil {
			return err
		}
	}
	return nil
}

// Find runs every selector of q against the live table.
func Find(ctx context.Context, table Table, q Query) ([]Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var out []Record
	seen := make(map[int]struct{})
	collect := func(records []Record) {
		for _, rec := range records {
			if _, dup := seen[rec.PID]; dup {
				continue
			}
			seen[rec.PID] = struct{}{}
			out = append(out, rec)
		}
	}

	for _, pid := range q.PIDs {
		rec, ok, err := LookupPID(ctx, table, pid)
		if err != nil {
			return nil, err
		}
		if ok {
			collect([]Record{rec})
		}
	}
	if name := strings.TrimSpace(q.Name); name != "" {
		records, err := LookupName(ctx, table, name)
		if err != nil {
			return nil, err
		}
		collect(records)
	}
	if strings.TrimSpace(q.Pattern) != "" {
		records, err := LookupPattern(ctx, table, q.Pattern)
		if err != nil {
			return nil, err
		}
		collect(records)
	}
	return out, nil
}

// LookupPID returns the snapshot of pid. The boolean is false when no such
// process exists or nothing could be read from it.
func LookupPID(ctx context.Context, table Table, pid int) (Record, bool, error) {
	if pid < 1 {
		return Record{}, false, fmt.Errorf("%w: pid must be a positive integer, got %d", ErrInvalidQuery, pid)
	}
	h, err := table.Process(ctx, pid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("lookup pid %d: %w", pid, err)
	}
	rec, ok := Snapshot(ctx, h)
	return rec, ok, nil
}

// LookupName returns processes whose name, executable base name or first
// command-line token equals name, ignoring case and surrounding whitespace.
func LookupName(ctx context.Context, table Table, name string) ([]Record, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be blank", ErrInvalidQuery)
	}
	return scan(ctx, table, func(candidate string) bool {
		return strings.ToLower(candidate) == name
	})
}

// LookupPattern returns processes where the case-insensitive regular
// expression is found anywhere in the name, executable base name or first
// command-line token.
func LookupPattern(ctx context.Context, table Table, pattern string) ([]Record, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	return scan(ctx, table, re.MatchString)
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w: pattern must not be blank", ErrInvalidQuery)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidQuery, pattern, err)
	}
	return re, nil
}

func scan(ctx context.Context, table Table, match func(string) bool) ([]Record, error) {
	handles, err := table.Processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan process table: %w", err)
	}

	var out []Record
	for _, h := range handles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !matchesAny(candidates(ctx, h), match) {
			continue
		}
		if rec, ok := Snapshot(ctx, h); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// candidates returns the strings a lookup is matched against.
func candidates(ctx context.Context, h Handle) []string {
	var out []string
	if name, err := h.Name(ctx); err == nil {
		out = append(out, name)
	}
	if exe, err := h.Exe(ctx); err == nil && exe != "" {
		out = append(out, filepath.Base(exe))
	}
	if cmdline, err := h.Cmdline(ctx); err == nil && len(cmdline) > 0 {
		first := cmdline[0]
		out = append(out, first)
		if base := filepath.Base(first); base != first {
			out = append(out, base)
		}
	}
	return out
}

func recordCandidates(rec Record) []string {
	out := []string{rec.Name}
	if rec.Exe != "" {
		out = append(out, filepath.Base(rec.Exe))
	}
	if len(rec.Cmdline) > 0 {
		out = append(out, rec.Cmdline[0], filepath.Base(rec.Cmdline[0]))
	}
	return out
}

func matchesAny(values []string, match func(string) bool) bool {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && match(v) {
			return true
		}
	}
	return false
}
