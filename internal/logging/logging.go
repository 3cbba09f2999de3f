// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	base   zerolog.Logger
	levels = map[string]zerolog.Level{
		"trace": zerolog.TraceLevel,
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	}
)

// Init configures the base logger from a level string ("info" if empty or
// unrecognized). Safe to call multiple times; only the first call takes
// effect.
func Init(level string) {
	once.Do(func() {
		lvl, ok := levels[strings.ToLower(strings.TrimSpace(level))]
		if !ok {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
}

// For returns a logger tagged with the given component name. Calls Init
// with "info" if it hasn't run yet, so packages can use For() directly in
// tests without requiring explicit setup.
func For(component string) zerolog.Logger {
	once.Do(func() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
	return base.With().Str("component", component).Logger()
}
