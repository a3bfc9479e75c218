package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	units "github.com/docker/go-units"
	"golang.org/x/term"

	"github.com/Paintersrp/rkill/internal/proctree"
)

// Output formats.
const (
	FormatTable = "table"
	FormatTree  = "tree"
	FormatJSON  = "json"
)

// Report section titles.
const (
	SectionTargets   = "Targets"
	SectionStopped   = "Stopped"
	SectionSurvivors = "Could not be stopped"
	SectionMatches   = "Matches"
)

// SortKeys lists the columns a table can be ordered by.
var SortKeys = []string{"owner", "created", "parent", "ppid", "pid", "name", "exe", "cwd", "command"}

// ValidateFormat rejects unknown output formats.
func ValidateFormat(format string) error {
	switch format {
	case FormatTable, FormatTree, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, tree or json)", format)
	}
}

// ValidateSortKey rejects unknown sort columns. An empty key keeps closure order.
func ValidateSortKey(key string) error {
	if key == "" {
		return nil
	}
	for _, candidate := range SortKeys {
		if key == candidate {
			return nil
		}
	}
	return fmt.Errorf("unknown sort key %q (want one of %s)", key, strings.Join(SortKeys, ", "))
}

// Renderer writes process reports.
type Renderer struct {
	Format string
	// SortBy orders table rows by a column; empty keeps the given order.
	SortBy string
	// Width is the line width the command column is truncated to fit;
	// zero disables truncation.
	Width int
	// Now is the reference time for ages; nil means time.Now.
	Now func() time.Time
}

// Render writes records under the given section title.
func (r *Renderer) Render(w io.Writer, section string, records []proctree.Record) error {
	switch r.Format {
	case "", FormatTable:
		return r.renderTable(w, section, records)
	case FormatTree:
		return r.renderTree(w, section, records)
	case FormatJSON:
		return r.renderJSON(w, section, records)
	default:
		return ValidateFormat(r.Format)
	}
}

func (r *Renderer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

const (
	columnPadding   = 2
	minCommandWidth = 16
)

func (r *Renderer) renderTable(out io.Writer, section string, records []proctree.Record) error {
	rows := SortRecords(records, r.SortBy)
	now := r.now()

	header := []string{"OWNER", "CREATED", "PARENT", "PPID", "PID", "NAME", "EXE", "CWD"}
	widths := make([]int, len(header))
	cells := make([][]string, len(rows))
	for i, rec := range rows {
		cells[i] = []string{
			orDash(rec.Owner),
			Created(rec.CreatedAt, now),
			orDash(rec.ParentName),
			formatPPID(rec.PPID),
			strconv.Itoa(rec.PID),
			orDash(rec.Name),
			orDash(rec.Exe),
			orDash(rec.Cwd),
		}
	}
	for col, title := range header {
		widths[col] = utf8.RuneCountInString(title)
		for _, row := range cells {
			widths[col] = max(widths[col], utf8.RuneCountInString(row[col]))
		}
	}
	commandWidth := 0
	if r.Width > 0 {
		used := 0
		for _, w := range widths {
			used += w + columnPadding
		}
		commandWidth = max(r.Width-used, minCommandWidth)
	}

	fmt.Fprintf(out, "%s:\n", section)
	w := tabwriter.NewWriter(out, 0, 4, columnPadding, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t")+"\tCOMMAND")
	for i, rec := range rows {
		command := orDash(truncate(RedactCommand(rec.Cmdline), commandWidth))
		fmt.Fprintln(w, strings.Join(cells[i], "\t")+"\t"+command)
	}
	return w.Flush()
}

// Created renders a creation time with its age relative to now, or "-" when
// unknown.
func Created(created, now time.Time) string {
	if created.IsZero() {
		return "-"
	}
	return created.Format(time.DateTime) + " (" + Age(created, now) + ")"
}

// Age renders how long before now a process was created.
func Age(created, now time.Time) string {
	if created.IsZero() {
		return "-"
	}
	d := now.Sub(created)
	if d < 0 {
		d = 0
	}
	return units.HumanDuration(d) + " ago"
}

func (r *Renderer) renderTree(out io.Writer, section string, records []proctree.Record) error {
	present := make(map[int]bool, len(records))
	for _, rec := range records {
		present[rec.PID] = true
	}
	children := make(map[int][]proctree.Record)
	var roots []proctree.Record
	for _, rec := range oldestFirst(records) {
		if rec.PPID != rec.PID && present[rec.PPID] {
			children[rec.PPID] = append(children[rec.PPID], rec)
			continue
		}
		roots = append(roots, rec)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", section)
	visited := make(map[int]bool, len(records))
	for _, root := range roots {
		r.renderNode(&b, root, children, "", false, true, visited)
	}
	// Records only reachable through a parent cycle have no root.
	for _, rec := range oldestFirst(records) {
		if !visited[rec.PID] {
			r.renderNode(&b, rec, children, "", false, true, visited)
		}
	}
	_, err := io.WriteString(out, b.String())
	return err
}

func (r *Renderer) renderNode(b *strings.Builder, rec proctree.Record, children map[int][]proctree.Record, prefix string, nested, isLast bool, visited map[int]bool) {
	linePrefix := prefix
	if nested {
		if isLast {
			linePrefix += "└─ "
		} else {
			linePrefix += "├─ "
		}
	}

	label := fmt.Sprintf("%d %s", rec.PID, orDash(rec.Name))
	commandWidth := 0
	if r.Width > 0 {
		commandWidth = max(r.Width-utf8.RuneCountInString(linePrefix+label)-3, minCommandWidth)
	}
	if cmd := truncate(RedactCommand(rec.Cmdline), commandWidth); cmd != "" {
		label += " (" + cmd + ")"
	}
	fmt.Fprintf(b, "%s%s\n", linePrefix, label)

	if visited[rec.PID] {
		return
	}
	visited[rec.PID] = true

	kids := children[rec.PID]
	nextPrefix := prefix
	if nested {
		if isLast {
			nextPrefix += "   "
		} else {
			nextPrefix += "│  "
		}
	}
	for i, child := range kids {
		if visited[child.PID] {
			continue
		}
		r.renderNode(b, child, children, nextPrefix, true, i == len(kids)-1, visited)
	}
}

// JSONRecord is the line format of --output json.
type JSONRecord struct {
	Section    string     `json:"section"`
	PID        int        `json:"pid"`
	PPID       int        `json:"ppid,omitempty"`
	Name       string     `json:"name,omitempty"`
	ParentName string     `json:"parent,omitempty"`
	Exe        string     `json:"exe,omitempty"`
	Cwd        string     `json:"cwd,omitempty"`
	Cmdline    []string   `json:"cmdline,omitempty"`
	Owner      string     `json:"owner,omitempty"`
	CreatedAt  *time.Time `json:"created,omitempty"`
}

// NewJSONRecord converts a process record, redacting its command line.
func NewJSONRecord(section string, rec proctree.Record) JSONRecord {
	out := JSONRecord{
		Section:    section,
		PID:        rec.PID,
		PPID:       rec.PPID,
		Name:       rec.Name,
		ParentName: rec.ParentName,
		Exe:        rec.Exe,
		Cwd:        rec.Cwd,
		Cmdline:    RedactArgs(rec.Cmdline),
		Owner:      rec.Owner,
	}
	if !rec.CreatedAt.IsZero() {
		created := rec.CreatedAt.UTC()
		out.CreatedAt = &created
	}
	return out
}

func (r *Renderer) renderJSON(w io.Writer, section string, records []proctree.Record) error {
	enc := json.NewEncoder(w)
	for _, rec := range SortRecords(records, r.SortBy) {
		record := NewJSONRecord(section, rec)
		if err := enc.Encode(&record); err != nil {
			return fmt.Errorf("encode record %d: %w", rec.PID, err)
		}
	}
	return nil
}

// SortRecords returns a copy of records ordered ascending by key. Unknown or
// empty keys keep the input order.
func SortRecords(records []proctree.Record, key string) []proctree.Record {
	out := append([]proctree.Record(nil), records...)
	less := sortLess(key)
	if less == nil {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func sortLess(key string) func(a, b proctree.Record) bool {
	switch key {
	case "owner":
		return func(a, b proctree.Record) bool { return a.Owner < b.Owner }
	case "created":
		return func(a, b proctree.Record) bool { return olderThan(a.CreatedAt, b.CreatedAt) }
	case "parent":
		return func(a, b proctree.Record) bool { return a.ParentName < b.ParentName }
	case "ppid":
		return func(a, b proctree.Record) bool { return a.PPID < b.PPID }
	case "pid":
		return func(a, b proctree.Record) bool { return a.PID < b.PID }
	case "name":
		return func(a, b proctree.Record) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case "exe":
		return func(a, b proctree.Record) bool { return a.Exe < b.Exe }
	case "cwd":
		return func(a, b proctree.Record) bool { return a.Cwd < b.Cwd }
	case "command":
		return func(a, b proctree.Record) bool { return a.CommandLine() < b.CommandLine() }
	default:
		return nil
	}
}

// olderThan orders known times ascending and unknown times last.
func olderThan(a, b time.Time) bool {
	switch {
	case a.IsZero():
		return false
	case b.IsZero():
		return true
	default:
		return a.Before(b)
	}
}

func oldestFirst(records []proctree.Record) []proctree.Record {
	out := append([]proctree.Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].PID < out[j].PID
		}
		return olderThan(out[i].CreatedAt, out[j].CreatedAt)
	})
	return out
}

// TerminalWidth returns the column count of w when it is a terminal, or zero.
func TerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	runes := []rune(s)
	return string(runes[:width-1]) + "…"
}

func formatPPID(ppid int) string {
	if ppid <= 0 {
		return "-"
	}
	return strconv.Itoa(ppid)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
