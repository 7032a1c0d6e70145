// Package logger provides context-aware structured logging for the Traffical
// SDK and CLI using logrus. Components pull their logger from the context so
// callers can attach fields (project, environment, command) once.
package logger

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Field names shared by SDK and CLI log lines.
const (
	FieldProject     = "project"
	FieldEnvironment = "environment"
	FieldComponent   = "component"
)

// Format selects the log line encoding.
type Format string

const (
	FormatText Format = "fmt"
	FormatJSON Format = "json"
)

// ParseFormat accepts "fmt", "text" or "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fmt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return "", errors.Errorf("unknown log format %q (expected fmt or json)", s)
}

var (
	// G is a convenience alias for GetLogger.
	G = GetLogger
	// L is used when no logger is attached to the context.
	L = logrus.NewEntry(newLogger())
)

type loggerKey struct{}

// WithLogger attaches entry to ctx.
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry.WithContext(ctx))
}

// WithFields returns a context whose logger carries fields on top of the
// parent's.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return WithLogger(ctx, GetLogger(ctx).WithFields(fields))
}

// WithProject tags every line logged through ctx with the project and
// environment a client serves.
func WithProject(ctx context.Context, projectID, environment string) context.Context {
	return WithFields(ctx, logrus.Fields{
		FieldProject:     projectID,
		FieldEnvironment: environment,
	})
}

// WithComponent tags lines with the emitting subsystem, e.g. "emitter".
func WithComponent(ctx context.Context, component string) context.Context {
	return WithFields(ctx, logrus.Fields{FieldComponent: component})
}

// GetLogger returns the entry attached to ctx, or L.
func GetLogger(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return L
	}
	if entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return entry
	}
	return L.WithContext(ctx)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	applyFormat(l, FormatText)
	return l
}

func applyFormat(l *logrus.Logger, format Format) {
	if format == FormatJSON {
		l.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "logLevel",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
		return
	}
	l.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339Nano,
		FullTimestamp:   true,
	}
}

// Configure sets level and format on the global logger. An invalid value
// leaves the corresponding setting unchanged.
func Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	L.Logger.SetLevel(lvl)
	applyFormat(L.Logger, f)
	return nil
}

// SetOutput redirects the global logger, e.g. to a test buffer.
func SetOutput(w io.Writer) {
	L.Logger.SetOutput(w)
}
