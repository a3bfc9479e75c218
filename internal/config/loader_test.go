package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rkill.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestLoadValidSettings(t *testing.T) {
	path := writeSettings(t, `version: "1"
gracePeriod: 2s
pollInterval: 50ms
output: TREE
protect: [systemd, " sshd "]
log:
  level: DEBUG
  format: Json
  file: /tmp/rkill.log
metrics:
  textfile: /var/lib/node_exporter/rkill.prom
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got, want := doc.GracePeriod.Duration, 2*time.Second; got != want {
		t.Fatalf("grace period mismatch: got %s want %s", got, want)
	}
	if got, want := doc.PollInterval.Duration, 50*time.Millisecond; got != want {
		t.Fatalf("poll interval mismatch: got %s want %s", got, want)
	}
	if got, want := doc.Output, "tree"; got != want {
		t.Fatalf("output mismatch: got %q want %q", got, want)
	}
	if got, want := strings.Join(doc.Protect, ","), "systemd,sshd"; got != want {
		t.Fatalf("protect mismatch: got %q want %q", got, want)
	}
	if doc.Log.Level != "debug" || doc.Log.Format != "json" || doc.Log.File != "/tmp/rkill.log" {
		t.Fatalf("unexpected log settings: %+v", doc.Log)
	}
	if got, want := doc.Metrics.Textfile, "/var/lib/node_exporter/rkill.prom"; got != want {
		t.Fatalf("metrics textfile mismatch: got %q want %q", got, want)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	for name, body := range map[string]string{
		"empty":       "",
		"commentOnly": "# nothing configured\n",
		"versionOnly": "version: \"1\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			doc, err := Load(writeSettings(t, body))
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			if doc.GracePeriod.Duration != DefaultGracePeriod {
				t.Fatalf("expected default grace period, got %s", doc.GracePeriod.Duration)
			}
			if doc.PollInterval.Duration != DefaultPollInterval {
				t.Fatalf("expected default poll interval, got %s", doc.PollInterval.Duration)
			}
			if doc.Output != DefaultOutput || doc.Log.Level != DefaultLogLevel || doc.Log.Format != DefaultLogFormat {
				t.Fatalf("unexpected defaults: %+v", doc)
			}
		})
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown field", body: "graceperiod: 1s\n", want: "schema validation failed"},
		{name: "bad duration", body: "gracePeriod: soon\n", want: "gracePeriod"},
		{name: "numeric duration", body: "gracePeriod: 5\n", want: "gracePeriod"},
		{name: "bad output", body: "output: yaml\n", want: "output"},
		{name: "bad version", body: "version: \"2\"\n", want: "version"},
		{name: "bad log level", body: "log:\n  level: loud\n", want: "log.level"},
		{name: "blank protect", body: "protect: [\"\"]\n", want: "protect"},
		{name: "poll exceeds grace", body: "gracePeriod: 100ms\npollInterval: 1s\n", want: "pollInterval: must not exceed gracePeriod"},
		{name: "zero grace period", body: "gracePeriod: 0s\n", want: "gracePeriod: must be greater than zero"},
		{name: "zero poll interval", body: "pollInterval: 0ms\n", want: "pollInterval: must be greater than zero"},
		{name: "not a mapping", body: "- a\n- b\n", want: "decode"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, tc.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: got %q want substring %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "open settings file") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestResolvePrefersExplicitPath(t *testing.T) {
	envPath := writeSettings(t, "output: json\n")
	flagPath := writeSettings(t, "output: tree\n")
	t.Setenv(EnvConfig, envPath)

	doc, used, err := Resolve(flagPath)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if used != flagPath || doc.Output != "tree" {
		t.Fatalf("expected %s with tree output, got %s with %q", flagPath, used, doc.Output)
	}

	doc, used, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if used != envPath || doc.Output != "json" {
		t.Fatalf("expected %s with json output, got %s with %q", envPath, used, doc.Output)
	}
}

func TestResolveWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvConfig, "")
	doc, used, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if used != "" {
		t.Fatalf("expected no settings file, got %q", used)
	}
	if doc.GracePeriod.Duration != DefaultGracePeriod {
		t.Fatalf("expected default grace period, got %s", doc.GracePeriod.Duration)
	}
}

func TestResolveAppliesEnvironment(t *testing.T) {
	path := writeSettings(t, "gracePeriod: 9s\noutput: tree\n")
	t.Setenv(EnvGracePeriod, "3s")
	t.Setenv(EnvPollInterval, "20ms")
	t.Setenv(EnvOutput, "JSON")
	t.Setenv(EnvLogLevel, "info")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvMetricsFile, "/tmp/rkill.prom")

	doc, _, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if doc.GracePeriod.Duration != 3*time.Second || doc.PollInterval.Duration != 20*time.Millisecond {
		t.Fatalf("durations not overridden: %s, %s", doc.GracePeriod.Duration, doc.PollInterval.Duration)
	}
	if doc.Output != "json" || doc.Log.Level != "info" || doc.Log.Format != "json" {
		t.Fatalf("unexpected overrides: %+v", doc)
	}
	if doc.Metrics.Textfile != "/tmp/rkill.prom" {
		t.Fatalf("metrics textfile not overridden: %q", doc.Metrics.Textfile)
	}
}

func TestResolveRejectsBadEnvironment(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{key: EnvGracePeriod, value: "later", want: EnvGracePeriod},
		{key: EnvPollInterval, value: "often", want: EnvPollInterval},
		{key: EnvOutput, value: "xml", want: "output"},
		{key: EnvGracePeriod, value: "-1s", want: "gracePeriod"},
		{key: EnvGracePeriod, value: "0s", want: "gracePeriod: must be greater than zero"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(EnvConfig, "")
			t.Setenv(tc.key, tc.value)
			_, _, err := Resolve("")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSettingsLocation(t *testing.T) {
	cases := map[string]string{
		"":           "settings",
		"/":          "settings",
		"/output":    "output",
		"/log/level": "log.level",
		"/protect/1": "protect[1]",
	}
	for ptr, want := range cases {
		if got := settingsLocation(ptr); got != want {
			t.Fatalf("settingsLocation(%q): expected %q, got %q", ptr, want, got)
		}
	}
}
