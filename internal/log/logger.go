// SPDX-License-Identifier: MIT

// Package log provides structured logging for teamcast, built on zerolog.
// Every entry carries a service and a component field; generation runs and
// HTTP requests add correlation ids from context. Event names use a dotted
// "event" key ("run.complete", "refresh.league_failed") so downstream
// filters can match on prefix.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stdout)
	Service string    // optional service name attached to every log entry

	// ComponentLevels raises the threshold for individual components so the
	// chatty ones (matcher, streamcache) can be quieted while the rest of
	// the daemon runs at debug. A component level below the global level has
	// no effect.
	ComponentLevels map[string]string
}

var (
	once            sync.Once
	base            zerolog.Logger
	componentLevels map[string]zerolog.Level
)

// Configure initialises the global zerolog logger exactly once.
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		if cfg.Level != "" {
			if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
				level = parsed
			}
		} else if env := os.Getenv("LOG_LEVEL"); env != "" {
			if parsed, err := zerolog.ParseLevel(env); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339

		componentLevels = make(map[string]zerolog.Level, len(cfg.ComponentLevels))
		for component, name := range cfg.ComponentLevels {
			if parsed, err := zerolog.ParseLevel(name); err == nil {
				componentLevels[component] = parsed
			}
		}

		writer := cfg.Output
		if writer == nil {
			writer = os.Stdout
		}

		service := cfg.Service
		if service == "" {
			service = os.Getenv("LOG_SERVICE")
			if service == "" {
				service = "teamcast"
			}
		}

		base = zerolog.New(writer).With().
			Timestamp().
			Str("service", service).
			Logger()
	})
}

func logger() zerolog.Logger {
	Configure(Config{})
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component
// name, at the component's configured level when one is set.
func WithComponent(component string) zerolog.Logger {
	l := logger().With().Str("component", component).Logger()
	if lvl, ok := componentLevels[component]; ok {
		l = l.Level(lvl)
	}
	return l
}
