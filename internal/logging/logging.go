// Package logging builds the zerolog logger shared by handlers and the
// consumer, and adapts it to Watermill's logger contract.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// Options selects the log level, encoding and destination.
type Options struct {
	// Level is a zerolog level name ("debug", "info", "warn", ...). Defaults to info.
	Level string
	// Format is "json" (default) or "console".
	Format string
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// New builds a zerolog.Logger from opts.
func New(opts Options) zerolog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(opts.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// NewWatermillAdapter converts a zerolog.Logger into a Watermill LoggerAdapter
// so the router and subscribers log through the same sink.
func NewWatermillAdapter(log zerolog.Logger) watermill.LoggerAdapter {
	return &watermillAdapter{log: log}
}

type watermillAdapter struct {
	log zerolog.Logger
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{log: a.log.With().Fields(map[string]any(fields)).Logger()}
}
