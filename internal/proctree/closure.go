package proctree

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Resolver expands seed records into their descendant closure.
type Resolver struct {
	Table Table
	// Protect lists process names that are never targeted. Descendants of a
	// protected process are only reached through other targets.
	Protect []string
	Log     logrus.FieldLogger
}

// Resolve computes the descendant closure of seeds against table.
func Resolve(ctx context.Context, table Table, seeds []Record) ([]Record, error) {
	r := &Resolver{Table: table}
	return r.Resolve(ctx, seeds)
}

// Resolve returns seeds plus every live descendant, newest-created-first. The
// calling process is never part of the result.
//
// The table is re-scanned until a scan adds no process. Only pids that are not
// yet in the closure are ever added, so the loop ends even when the reported
// parent links form a cycle.
func (r *Resolver) Resolve(ctx context.Context, seeds []Record) ([]Record, error) {
	log := r.logger()
	self := r.Table.Self()

	closure := make(map[int]Record, len(seeds))
	var order []int
	add := func(rec Record) bool {
		if rec.PID == self {
			log.WithField("pid", rec.PID).Debug("skipping own process")
			return false
		}
		if _, seen := closure[rec.PID]; seen {
			return false
		}
		if r.protected(rec) {
			log.WithFields(logrus.Fields{"pid": rec.PID, "name": rec.Name}).Info("skipping protected process")
			return false
		}
		closure[rec.PID] = rec.Clone()
		order = append(order, rec.PID)
		return true
	}

	for _, seed := range seeds {
		add(seed)
	}
	if len(closure) == 0 {
		return nil, nil
	}

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		handles, err := r.Table.Processes(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan process table: %w", err)
		}

		children := make(map[int][]Handle)
		for _, h := range handles {
			pid := h.PID()
			if pid == self {
				continue
			}
			if _, seen := closure[pid]; seen {
				continue
			}
			ppid, err := h.PPID(ctx)
			if err != nil || ppid == 0 {
				continue
			}
			children[ppid] = append(children[ppid], h)
		}

		added := 0
		queue := append([]int(nil), order...)
		for len(queue) > 0 {
			parent := queue[0]
			queue = queue[1:]
			for _, h := range children[parent] {
				if _, seen := closure[h.PID()]; seen {
					continue
				}
				rec, ok := Snapshot(ctx, h)
				if !ok || !add(rec) {
					continue
				}
				added++
				queue = append(queue, rec.PID)
			}
		}

		log.WithFields(logrus.Fields{"round": round, "added": added, "total": len(closure)}).Debug("scanned process table")
		if added == 0 {
			break
		}
	}

	out := make([]Record, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		out = append(out, closure[order[i]])
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *Resolver) protected(rec Record) bool {
	if len(r.Protect) == 0 {
		return false
	}
	return matchesAny(recordCandidates(rec), func(candidate string) bool {
		for _, name := range r.Protect {
			if strings.EqualFold(strings.TrimSpace(name), candidate) {
				return true
			}
		}
		return false
	})
}

func (r *Resolver) logger() logrus.FieldLogger {
	if r.Log == nil {
		return discardLogger()
	}
	return r.Log
}

// sortNewestFirst orders records by creation time, most recent first. Records
// with an unknown creation time go last; ties keep their relative order.
func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].CreatedAt, records[j].CreatedAt
		switch {
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		default:
			return a.After(b)
		}
	})
}
