package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	log "github.com/charmbracelet/log"
)

var (
	mu     sync.Mutex
	logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
)

// Configure sets the minimum level and installs the charm logger as the
// process-wide slog handler, so package code can log through log/slog.
func Configure(levelRaw string) error {
	level, err := ParseLevel(levelRaw)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	logger.SetLevel(level)
	log.SetDefault(logger)
	slog.SetDefault(slog.New(logger))
	return nil
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// SetFormatter switches between "text", "json" and "logfmt" output.
func SetFormatter(name string) error {
	var f log.Formatter
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text":
		f = log.TextFormatter
	case "json":
		f = log.JSONFormatter
	case "logfmt":
		f = log.LogfmtFormatter
	default:
		return fmt.Errorf("invalid log format %q", name)
	}
	mu.Lock()
	defer mu.Unlock()
	logger.SetFormatter(f)
	return nil
}

func ParseLevel(levelRaw string) (log.Level, error) {
	levelRaw = strings.ToLower(strings.TrimSpace(levelRaw))
	switch levelRaw {
	case "":
		return log.InfoLevel, nil
	case "trace", "trac":
		// no trace level in charm log
		return log.DebugLevel, nil
	}
	level, err := log.ParseLevel(levelRaw)
	if err != nil {
		return 0, fmt.Errorf("invalid loglevel %q", levelRaw)
	}
	return level, nil
}
