package proctree

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Paintersrp/rkill/internal/metrics"
)

// Result partitions the targets of a run. After a non-dry run every target is
// in exactly one of Victims and Survivors.
type Result struct {
	Targets   []Record
	Victims   []Record
	Survivors []Record
}

// Filter reviews the resolved targets before anything is signalled. It returns
// the targets to keep, or an error to abort the run.
type Filter func(ctx context.Context, targets []Record) ([]Record, error)

// Option configures a Reaper.
type Option func(*Reaper)

// WithGracePeriod sets how long each stop step waits for the process to exit.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.stopper.GracePeriod = d
		}
	}
}

// WithLogger routes progress logging to log.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Reaper) {
		if log != nil {
			r.log = log
		}
	}
}

// WithProtected excludes processes with the given names from every closure.
func WithProtected(names ...string) Option {
	return func(r *Reaper) {
		r.resolver.Protect = append(r.resolver.Protect, names...)
	}
}

// WithFilter installs a review step between resolution and termination.
func WithFilter(f Filter) Option {
	return func(r *Reaper) {
		r.filter = f
	}
}

// Reaper recursively stops processes and their descendants.
type Reaper struct {
	table    Table
	resolver *Resolver
	stopper  *Stopper
	filter   Filter
	log      logrus.FieldLogger
}

// NewReaper constructs a Reaper operating on table.
func NewReaper(table Table, opts ...Option) *Reaper {
	r := &Reaper{
		table:    table,
		resolver: &Resolver{Table: table},
		stopper:  &Stopper{GracePeriod: DefaultGracePeriod},
		log:      discardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.resolver.Log = r.log
	r.stopper.Log = r.log
	return r
}

// Reap resolves the descendant closure of seeds and, unless dry is set, stops
// every target in closure order. A dry run returns the targets with empty
// victims and survivors and sends no signal.
//
// Once termination starts it runs over the whole target list even if ctx is
// cancelled.
func (r *Reaper) Reap(ctx context.Context, seeds []Record, dry bool) (Result, error) {
	targets, err := r.resolver.Resolve(ctx, seeds)
	if err != nil {
		return Result{}, err
	}
	if r.filter != nil && len(targets) > 0 {
		targets, err = r.filter(ctx, targets)
		if err != nil {
			return Result{}, err
		}
	}

	res := Result{Targets: targets}
	metrics.AddTargets(len(targets))
	if len(targets) == 0 {
		return res, nil
	}

	for _, t := range targets {
		r.log.WithFields(logrus.Fields{
			"pid":     t.PID,
			"ppid":    t.PPID,
			"name":    t.Name,
			"created": t.CreatedAt,
		}).Info("marked for termination")
	}

	if dry {
		r.log.WithField("targets", len(targets)).Info("dry run, no process was touched")
		return res, nil
	}

	ctx = context.WithoutCancel(ctx)
	for _, t := range targets {
		start := time.Now()
		outcome := r.stopper.Stop(ctx, r.table, t)
		metrics.ObserveStop(outcome.String(), time.Since(start))
		if outcome.Succeeded() {
			res.Victims = append(res.Victims, t)
		} else {
			res.Survivors = append(res.Survivors, t)
		}
	}

	metrics.AddVictims(len(res.Victims))
	metrics.AddSurvivors(len(res.Survivors))
	for _, s := range res.Survivors {
		r.log.WithFields(logrus.Fields{"pid": s.PID, "name": s.Name}).Warn("could not stop process")
	}
	return res, nil
}

// ReapPID reaps the process tree rooted at pid.
func (r *Reaper) ReapPID(ctx context.Context, pid int, dry bool) (Result, error) {
	return r.reapQuery(ctx, Query{PIDs: []int{pid}}, dry)
}

// ReapName reaps every process tree whose root matches name.
func (r *Reaper) ReapName(ctx context.Context, name string, dry bool) (Result, error) {
	return r.reapQuery(ctx, Query{Name: name}, dry)
}

// ReapPattern reaps every process tree whose root matches pattern.
func (r *Reaper) ReapPattern(ctx context.Context, pattern string, dry bool) (Result, error) {
	return r.reapQuery(ctx, Query{Pattern: pattern}, dry)
}

func (r *Reaper) reapQuery(ctx context.Context, q Query, dry bool) (Result, error) {
	seeds, err := Find(ctx, r.table, q)
	if err != nil {
		return Result{}, err
	}
	r.log.WithField("seeds", len(seeds)).Debug("found initial targets")
	return r.Reap(ctx, seeds, dry)
}
