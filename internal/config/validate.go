package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate enforces the invariants the schema cannot express.
func (s *Settings) Validate() error {
	if s.Version != CurrentVersion {
		return fmt.Errorf("%s: unsupported version %q (want %q)", fieldPath("version"), s.Version, CurrentVersion)
	}
	if s.GracePeriod.Duration <= 0 {
		return fmt.Errorf("%s: must be greater than zero", fieldPath("gracePeriod"))
	}
	if s.PollInterval.Duration <= 0 {
		return fmt.Errorf("%s: must be greater than zero", fieldPath("pollInterval"))
	}
	if s.PollInterval.Duration > s.GracePeriod.Duration {
		return fmt.Errorf("%s: must not exceed gracePeriod (%s)", fieldPath("pollInterval"), s.GracePeriod.Duration)
	}
	if !oneOf(s.Output, outputFormats) {
		return fmt.Errorf("%s: must be one of %s, got %q", fieldPath("output"), strings.Join(outputFormats, ", "), s.Output)
	}
	if _, err := logrus.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("%s: %w", fieldPath("log", "level"), err)
	}
	if !oneOf(s.Log.Format, logFormats) {
		return fmt.Errorf("%s: must be one of %s, got %q", fieldPath("log", "format"), strings.Join(logFormats, ", "), s.Log.Format)
	}
	for i, name := range s.Protect {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%s: must not be blank", fieldPath("protect", fmt.Sprintf("[%d]", i)))
		}
	}
	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
