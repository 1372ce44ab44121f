// Package logging builds the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Level  string
	Format string
	File   string
}

var (
	mu            sync.Mutex
	defaultLogger = logrus.New()
)

// Setup configures and returns the default logger. The returned closer
// releases the log file, if any.
func Setup(cfg Config) (*logrus.Logger, io.Closer, error) {
	mu.Lock()
	defer mu.Unlock()

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, f))
		closer = f
	} else {
		logger.SetOutput(os.Stderr)
	}

	defaultLogger = logger
	return logger, closer, nil
}

// Default returns the logger installed by Setup, or a stderr logger.
func Default() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
