package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Logger wraps slog with the service attributes every record carries.
type Logger struct {
	*slog.Logger
	verbose bool
}

// New creates a logger writing text or JSON records to output.
func New(format string, verbose bool, output io.Writer, version string) *Logger {
	if output == nil {
		output = os.Stdout
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	var application string
	if len(os.Args) > 0 {
		application = filepath.Base(os.Args[0])
	}

	return &Logger{
		Logger: slog.New(handler).With(
			slog.String("service", application),
			slog.String("version", version),
		),
		verbose: verbose,
	}
}

// SetAsDefault installs l as the slog default, which also routes the
// standard log package through it.
func (l *Logger) SetAsDefault() {
	slog.SetDefault(l.Logger)
}

// Verbose logs only when verbose logging is enabled.
func (l *Logger) Verbose(msg string, args ...any) {
	if l.verbose {
		l.Debug(msg, args...)
	}
}

// LogError logs err with extra context.
func (l *Logger) LogError(msg string, err error, args ...any) {
	all := append([]any{slog.String("error", err.Error())}, args...)
	l.Error(msg, all...)
}
