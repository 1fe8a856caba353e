package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
	Component     string
}

// Logger wraps zerolog with a key/value field API.
type Logger struct {
	base zerolog.Logger
}

// New creates a configured Logger instance based on Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	var output io.Writer = writer
	if opts.HumanReadable {
		console := zerolog.NewConsoleWriter()
		console.Out = writer
		console.TimeFormat = time.RFC3339
		output = console
	}

	ctx := zerolog.New(output).Level(level).With().Timestamp()
	if opts.Component != "" {
		ctx = ctx.Str("component", opts.Component)
	}
	return &Logger{base: ctx.Logger()}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop()}
}

// With returns a derived logger that always writes the supplied key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	if l == nil {
		return nil
	}
	ctx := l.base.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || key == "" {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return &Logger{base: ctx.Logger()}
}

// Debug writes a debug-level log entry if enabled.
func (l *Logger) Debug(msg string, kv ...any) {
	if l == nil {
		return
	}
	write(l.base.Debug(), msg, kv)
}

// Info writes an informational log entry.
func (l *Logger) Info(msg string, kv ...any) {
	if l == nil {
		return
	}
	write(l.base.Info(), msg, kv)
}

// Warn writes a warning level log entry.
func (l *Logger) Warn(msg string, kv ...any) {
	if l == nil {
		return
	}
	write(l.base.Warn(), msg, kv)
}

// Error writes an error log entry including the supplied error context.
func (l *Logger) Error(err error, msg string, kv ...any) {
	if l == nil {
		return
	}
	event := l.base.Error()
	if err != nil {
		event = event.Err(err)
	}
	write(event, msg, kv)
}

func write(event *zerolog.Event, msg string, kv []any) {
	if event == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || key == "" {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			event = event.Str(key, v)
		case int:
			event = event.Int(key, v)
		case bool:
			event = event.Bool(key, v)
		case time.Duration:
			event = event.Dur(key, v)
		case []string:
			event = event.Strs(key, v)
		case error:
			event = event.AnErr(key, v)
		default:
			event = event.Interface(key, v)
		}
	}
	event.Msg(msg)
}
