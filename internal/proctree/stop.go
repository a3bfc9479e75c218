package proctree

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Paintersrp/rkill/internal/metrics"
)

// DefaultGracePeriod bounds each wait for a process to exit after a signal.
const DefaultGracePeriod = 5 * time.Second

// Stopper escalates from a graceful terminate to a forceful kill.
type Stopper struct {
	GracePeriod time.Duration
	Log         logrus.FieldLogger
}

// Stop looks up target in table and stops it. A pid that now belongs to a
// process created at a different time than the snapshot is treated as gone.
func (s *Stopper) Stop(ctx context.Context, table Table, target Record) Outcome {
	log := s.logger().WithFields(logrus.Fields{"pid": target.PID, "name": target.Name})

	h, err := table.Process(ctx, target.PID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Debug("process already gone")
			return OutcomeGone
		}
		log.WithError(err).Warn("cannot open process")
		return OutcomeFailed
	}

	if !target.CreatedAt.IsZero() {
		if created, err := h.CreateTime(ctx); err == nil && !created.IsZero() && !created.Equal(target.CreatedAt) {
			log.WithFields(logrus.Fields{
				"snapshot_created": target.CreatedAt,
				"live_created":     created,
			}).Warn("pid was reused by another process, not signalling it")
			return OutcomeGone
		}
	}

	return s.StopHandle(ctx, h)
}

// StopHandle drives h through terminate, wait, kill, wait. It never signals a
// process that is already not running.
func (s *Stopper) StopHandle(ctx context.Context, h Handle) Outcome {
	log := s.logger().WithField("pid", h.PID())

	running, err := h.IsRunning(ctx)
	switch {
	case err == nil && !running:
		log.Debug("process not running")
		return OutcomeGone
	case classify(err) == OutcomeGone:
		log.Debug("process already gone")
		return OutcomeGone
	case err != nil:
		log.WithError(err).Debug("cannot tell whether process is running")
	}

	steps := []struct {
		signal string
		send   func(context.Context) error
	}{
		{signal: "terminate", send: h.Terminate},
		{signal: "kill", send: h.Kill},
	}
	for _, step := range steps {
		outcome := s.step(ctx, h, step.signal, step.send, log)
		metrics.ObserveSignal(step.signal, outcome.String())
		if outcome.Succeeded() {
			return outcome
		}
	}

	running, err = h.IsRunning(ctx)
	if (err == nil && !running) || classify(err) == OutcomeGone {
		return OutcomeStopped
	}
	return OutcomeFailed
}

func (s *Stopper) step(ctx context.Context, h Handle, signal string, send func(context.Context) error, log logrus.FieldLogger) Outcome {
	log = log.WithField("signal", signal)

	if err := send(ctx); err != nil {
		if classify(err) == OutcomeGone {
			log.Debug("process exited before signal")
			return OutcomeGone
		}
		log.WithError(err).Info("signal refused")
		return OutcomeFailed
	}

	grace := s.grace()
	err := h.Wait(ctx, grace)
	switch {
	case err == nil:
		log.Debug("process exited")
		return OutcomeStopped
	case errors.Is(err, ErrNotFound):
		return OutcomeStopped
	default:
		log.WithError(err).WithField("grace", grace).Info("process still running")
		return OutcomeFailed
	}
}

func (s *Stopper) grace() time.Duration {
	if s.GracePeriod <= 0 {
		return DefaultGracePeriod
	}
	return s.GracePeriod
}

func (s *Stopper) logger() logrus.FieldLogger {
	if s.Log == nil {
		return discardLogger()
	}
	return s.Log
}

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func discardLogger() logrus.FieldLogger {
	return discard
}
