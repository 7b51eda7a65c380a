// Package logging holds the process-global zerolog logger for lightci.
//
// Commands install a configured logger during their pre-run via
// SetGlobalLogger; library code logs through the package-level helpers or
// pulls a request-scoped logger out of a context with Ctx.
package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// Logger is the global logger. It drops everything until SetGlobalLogger
// is called.
var Logger zerolog.Logger

func init() {
	SetGlobalLogger(zerolog.Nop())
}

// SetGlobalLogger replaces the global logger and makes it the default
// logger returned by zerolog.Ctx for contexts without one attached.
func SetGlobalLogger(logger zerolog.Logger) {
	Logger = logger
	zerolog.DefaultContextLogger = &Logger
}

func With() zerolog.Context { return Logger.With() }

func Err(err error) *zerolog.Event { return Logger.Err(err) }

func Trace() *zerolog.Event { return Logger.Trace() }

func Debug() *zerolog.Event { return Logger.Debug() }

func Info() *zerolog.Event { return Logger.Info() }

func Warn() *zerolog.Event { return Logger.Warn() }

func Error() *zerolog.Event { return Logger.Error() }

func Fatal() *zerolog.Event { return Logger.Fatal() }

func WithLevel(level zerolog.Level) *zerolog.Event { return Logger.WithLevel(level) }

func Log() *zerolog.Event { return Logger.Log() }

// Ctx returns the logger attached to ctx, falling back to the global one.
func Ctx(ctx context.Context) *zerolog.Logger { return zerolog.Ctx(ctx) }
