package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	// CurrentVersion is the settings document version understood by this build.
	CurrentVersion = "1"

	DefaultGracePeriod  = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultOutput       = "table"
	DefaultLogLevel     = "warning"
	DefaultLogFormat    = "text"
)

// Output formats accepted by the report renderer.
var outputFormats = []string{"table", "tree", "json"}

// Log formats accepted by the logger.
var logFormats = []string{"text", "json"}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Settings mirrors the rkill settings document.
type Settings struct {
	Version      string      `yaml:"version"`
	GracePeriod  Duration    `yaml:"gracePeriod"`
	PollInterval Duration    `yaml:"pollInterval"`
	Output       string      `yaml:"output"`
	Protect      []string    `yaml:"protect"`
	Log          LogSpec     `yaml:"log"`
	Metrics      MetricsSpec `yaml:"metrics"`
}

// LogSpec configures diagnostic logging.
type LogSpec struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsSpec configures the Prometheus textfile export.
type MetricsSpec struct {
	Textfile string `yaml:"textfile"`
}

// Default returns settings with every default applied.
func Default() *Settings {
	s := &Settings{}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills every unset field. An explicit zero duration is kept so
// Validate can reject it.
func (s *Settings) ApplyDefaults() {
	if s.Version == "" {
		s.Version = CurrentVersion
	}
	if !s.GracePeriod.IsSet() {
		s.GracePeriod.Duration = DefaultGracePeriod
	}
	if !s.PollInterval.IsSet() {
		s.PollInterval.Duration = DefaultPollInterval
	}
	s.Output = strings.ToLower(strings.TrimSpace(s.Output))
	if s.Output == "" {
		s.Output = DefaultOutput
	}
	s.Log.Level = strings.ToLower(strings.TrimSpace(s.Log.Level))
	if s.Log.Level == "" {
		s.Log.Level = DefaultLogLevel
	}
	s.Log.Format = strings.ToLower(strings.TrimSpace(s.Log.Format))
	if s.Log.Format == "" {
		s.Log.Format = DefaultLogFormat
	}
	for i, name := range s.Protect {
		s.Protect[i] = strings.TrimSpace(name)
	}
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}
