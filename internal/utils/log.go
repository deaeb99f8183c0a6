// Package utils
package utils

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirphl/momentum-validator/internal/config"
)

var (
	logger zerolog.Logger
	once   sync.Once
	mu     sync.RWMutex
)

// GetLogger returns the process logger. Until SetupLogger runs it writes
// info level records to stderr.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	})
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	l := GetLogger()
	return l.With().Str("component", name).Logger()
}

// SetupLogger replaces the process logger according to cfg. The returned
// closer releases the log file, if any.
func SetupLogger(cfg config.Log) (io.Closer, error) {
	GetLogger()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
		closer = file
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	mu.Lock()
	logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger().Level(level)
	mu.Unlock()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
