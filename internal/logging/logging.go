// Package logging builds the logrus logger shared by every rkill command.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	// Level is a logrus level name; empty means warning.
	Level string
	// Format is "text" or "json"; empty means text.
	Format string
	// File, when set, receives every entry in addition to Out.
	File string
	// Out is the console destination; nil means stderr.
	Out io.Writer
}

// LevelFor maps the verbosity flags onto a level name. The very-verbose flag
// wins over verbose; neither keeps fallback.
func LevelFor(verbose, veryVerbose bool, fallback string) string {
	switch {
	case veryVerbose:
		return logrus.DebugLevel.String()
	case verbose:
		return logrus.InfoLevel.String()
	default:
		return fallback
	}
}

// New returns a configured logger and a function releasing the log file.
func New(opts Options) (*logrus.Logger, func() error, error) {
	level := logrus.WarnLevel
	if name := strings.TrimSpace(opts.Level); name != "" {
		parsed, err := logrus.ParseLevel(name)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}

	formatter, err := newFormatter(opts.Format)
	if err != nil {
		return nil, nil, err
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	log.SetFormatter(formatter)

	closeFn := func() error { return nil }
	if path := strings.TrimSpace(opts.File); path != "" {
		hook, err := newFileHook(path, formatter)
		if err != nil {
			return nil, nil, err
		}
		log.AddHook(hook)
		closeFn = hook.Close
	}
	return log, closeFn, nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		}, nil
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}, nil
	default:
		return nil, fmt.Errorf("log format %q: must be text or json", format)
	}
}

// fileHook appends every emitted entry to a file.
type fileHook struct {
	file      *os.File
	formatter logrus.Formatter
}

func newFileHook(path string, formatter logrus.Formatter) (*fileHook, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	if text, ok := formatter.(*logrus.TextFormatter); ok {
		formatter = &logrus.TextFormatter{
			FullTimestamp:   text.FullTimestamp,
			TimestampFormat: text.TimestampFormat,
			DisableColors:   true,
		}
	}
	return &fileHook{file: f, formatter: formatter}, nil
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.file.Write(line)
	return err
}

func (h *fileHook) Close() error {
	return h.file.Close()
}
