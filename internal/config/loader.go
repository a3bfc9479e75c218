package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Resolve.
const (
	EnvConfig       = "RKILL_CONFIG"
	EnvGracePeriod  = "RKILL_GRACE_PERIOD"
	EnvPollInterval = "RKILL_POLL_INTERVAL"
	EnvOutput       = "RKILL_OUTPUT"
	EnvLogLevel     = "RKILL_LOG_LEVEL"
	EnvLogFormat    = "RKILL_LOG_FORMAT"
	EnvMetricsFile  = "RKILL_METRICS_FILE"
)

// Load reads a settings document from the provided path.
func Load(path string) (*Settings, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open settings file: %w", err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return doc, nil
}

// Parse decodes, defaults and validates a settings document. An empty
// document yields the defaults.
func Parse(data []byte) (*Settings, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if raw != nil {
		normalizeKeywords(raw)
		if err := validateAgainstSchema(raw); err != nil {
			return nil, err
		}
	}

	var doc Settings
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}

	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// normalizeKeywords lower-cases the enum-valued fields in place so the schema
// accepts them in any case, matching ApplyDefaults and the env overrides.
func normalizeKeywords(raw map[string]any) {
	lower := func(m map[string]any, key string) {
		if v, ok := m[key].(string); ok {
			m[key] = strings.ToLower(strings.TrimSpace(v))
		}
	}
	lower(raw, "output")
	if log, ok := raw["log"].(map[string]any); ok {
		lower(log, "level")
		lower(log, "format")
	}
}

// Resolve loads the settings file named by path, falling back to
// $RKILL_CONFIG and then to the defaults, and applies environment overrides.
// It returns the file that was read, or an empty string.
func Resolve(path string) (*Settings, string, error) {
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfig))
	}

	doc := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		doc = loaded
	}

	if err := doc.ApplyEnv(); err != nil {
		return nil, "", err
	}
	if err := doc.Validate(); err != nil {
		return nil, "", err
	}
	return doc, path, nil
}

// ApplyEnv overrides settings from RKILL_* environment variables.
func (s *Settings) ApplyEnv() error {
	if value := strings.TrimSpace(os.Getenv(EnvGracePeriod)); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", EnvGracePeriod, value, err)
		}
		s.GracePeriod = Duration{Duration: d, explicit: true}
	}
	if value := strings.TrimSpace(os.Getenv(EnvPollInterval)); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", EnvPollInterval, value, err)
		}
		s.PollInterval = Duration{Duration: d, explicit: true}
	}
	if value := os.Getenv(EnvOutput); value != "" {
		s.Output = strings.ToLower(strings.TrimSpace(value))
	}
	if value := os.Getenv(EnvLogLevel); value != "" {
		s.Log.Level = strings.ToLower(strings.TrimSpace(value))
	}
	if value := os.Getenv(EnvLogFormat); value != "" {
		s.Log.Format = strings.ToLower(strings.TrimSpace(value))
	}
	if value := os.Getenv(EnvMetricsFile); value != "" {
		s.Metrics.Textfile = value
	}
	return nil
}
