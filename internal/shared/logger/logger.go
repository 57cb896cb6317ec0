package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger tagged with the service name.
func New(service string) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(out).With().Timestamp().Str("service", service).Logger()
}

// Nop returns a disabled logger for tests and optional dependencies.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
