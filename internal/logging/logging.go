// Package logging builds the zerolog loggers shared by the reftrack tools.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

const permission = 0o664

// Builder collects logger settings. The zero value logs info and above to
// stderr in console format.
type Builder struct {
	writer io.Writer
	path   string
	level  string
	format string
}

// Logger is a built logger together with the file it writes to, if any.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// FromWriter logs to w.
func (b *Builder) FromWriter(w io.Writer) *Builder {
	b.writer = w
	return b
}

// FromPath appends to the file at path. It wins over FromWriter.
func (b *Builder) FromPath(path string) *Builder {
	b.path = path
	return b
}

// Level sets the minimum level by zerolog name (debug, info, warn...).
func (b *Builder) Level(level string) *Builder {
	b.level = level
	return b
}

// Format selects "console" or "json" output.
func (b *Builder) Format(format string) *Builder {
	b.format = format
	return b
}

// Make builds the logger.
func (b *Builder) Make() (*Logger, error) {
	out := &Logger{}

	var w io.Writer = os.Stderr
	if b.writer != nil {
		w = b.writer
	}
	if b.path != "" {
		f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, fmt.Errorf("logging: open %s: %w", b.path, err)
		}
		out.file = f
		w = zerolog.SyncWriter(f)
	}

	switch b.format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, NoColor: b.path != "" || b.writer != nil}
	case "json":
	default:
		_ = out.Close()
		return nil, fmt.Errorf("logging: unknown format %q", b.format)
	}

	level := zerolog.InfoLevel
	if b.level != "" {
		parsed, err := zerolog.ParseLevel(b.level)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}

	out.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return out, nil
}

// Close releases the log file opened by FromPath.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
