package metrics

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	targetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rkill",
		Name:      "targets_total",
		Help:      "Total number of processes resolved as termination targets.",
	})

	victimsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rkill",
		Name:      "victims_total",
		Help:      "Total number of targets confirmed stopped.",
	})

	survivorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rkill",
		Name:      "survivors_total",
		Help:      "Total number of targets that resisted termination.",
	})

	signalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rkill",
		Name:      "signals_total",
		Help:      "Stop steps attempted, by signal and outcome.",
	}, []string{"signal", "outcome"})

	stopDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rkill",
		Name:      "stop_duration_seconds",
		Help:      "Time spent stopping a single target, by final outcome.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"outcome"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rkill",
		Name:      "build_info",
		Help:      "Build metadata for the running rkill binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
	buildLabels   prometheus.Labels
)

func init() {
	registry.MustRegister(targetsTotal, victimsTotal, survivorsTotal, signalsTotal, stopDuration, buildInfo)
}

// Registry returns the Prometheus registry containing all rkill metrics.
func Registry() *prometheus.Registry {
	return registry
}

// AddTargets records n resolved targets.
func AddTargets(n int) {
	if n <= 0 {
		return
	}
	targetsTotal.Add(float64(n))
}

// AddVictims records n stopped targets.
func AddVictims(n int) {
	if n <= 0 {
		return
	}
	victimsTotal.Add(float64(n))
}

// AddSurvivors records n targets that could not be stopped.
func AddSurvivors(n int) {
	if n <= 0 {
		return
	}
	survivorsTotal.Add(float64(n))
}

// ObserveSignal counts one stop step.
func ObserveSignal(signal, outcome string) {
	if signal == "" {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	signalsTotal.WithLabelValues(signal, outcome).Inc()
}

// ObserveStop records how long stopping one target took.
func ObserveStop(outcome string, d time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	stopDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildLabels = labels
		buildInfo.With(labels).Set(1)
	})
}

// BuildInfo returns the labels published by EmitBuildInfo.
func BuildInfo() map[string]string {
	EmitBuildInfo()
	out := make(map[string]string, len(buildLabels))
	for k, v := range buildLabels {
		out[k] = v
	}
	return out
}

// WriteTextfile writes the registry in the text exposition format to path,
// for pickup by a node_exporter textfile collector.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
