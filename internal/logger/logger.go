// Package logger builds the zerolog loggers shared by the server, worker and CLI.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

var installOnce sync.Once

// installErrorMarshalers makes every logged error carry a pkg/errors stack, so
// .Stack() on an error event renders one even for plain errors.
func installErrorMarshalers() {
	installOnce.Do(func() {
		zerolog.ErrorStackMarshaler = func(err error) interface{} {
			return zpkgerrors.MarshalStack(withStack(err))
		}
		zerolog.ErrorMarshalFunc = func(err error) interface{} {
			return withStack(err)
		}
	})
}

func withStack(err error) error {
	if _, ok := err.(stackTracer); ok {
		return err
	}
	return pkgerrors.WithStack(err)
}

// New returns a JSON logger on stdout tagged with serviceName.
// Call sites use .Stack() on error events to include stacks.
func New(serviceName string) zerolog.Logger {
	return NewWithWriter(serviceName, os.Stdout)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(serviceName string, w io.Writer) zerolog.Logger {
	installErrorMarshalers()
	return zerolog.New(w).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// WithLevel applies a textual level (debug, info, warn, error) to log.
// Unknown or empty values leave info in effect.
func WithLevel(log zerolog.Logger, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return log.Level(lvl)
}
