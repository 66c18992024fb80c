package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger with component and field helpers
type Logger struct {
	logger zerolog.Logger
}

// Config represents logger configuration
type Config struct {
	Level      string `yaml:"level" mapstructure:"level"`             // trace, debug, info, warn, error
	Format     string `yaml:"format" mapstructure:"format"`           // json, console
	Output     string `yaml:"output" mapstructure:"output"`           // stdout, stderr, file path
	Timestamp  bool   `yaml:"timestamp" mapstructure:"timestamp"`     // include timestamp
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // include caller info
	PrettyMode bool   `yaml:"pretty_mode" mapstructure:"pretty_mode"` // colored console output
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		Timestamp:  true,
		Caller:     false,
		PrettyMode: true,
	}
}

var globalLogger = New(DefaultConfig(), os.Stderr)

// Initialize sets up the global logger with the provided configuration
func Initialize(config *Config) error {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output, err := openOutput(config.Output)
	if err != nil {
		return err
	}

	l := New(config, output)
	globalLogger = l
	log.Logger = l.logger

	return nil
}

// New builds a standalone logger writing to w. The global logger is not touched.
func New(config *Config, w io.Writer) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	var zl zerolog.Logger
	switch {
	case config.Format == "json":
		zl = zerolog.New(w)
	case config.PrettyMode && isTerminal(w):
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		cw.FormatLevel = formatLevel
		zl = zerolog.New(cw)
	default:
		zl = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true})
	}

	if level, err := zerolog.ParseLevel(config.Level); err == nil && config.Level != "" {
		zl = zl.Level(level)
	}
	if config.Timestamp {
		zl = zl.With().Timestamp().Logger()
	}
	if config.Caller {
		zl = zl.With().Caller().Logger()
	}

	return &Logger{logger: zl}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "stderr", "":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// isTerminal reports whether w is a file attached to a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func formatLevel(i interface{}) string {
	ll, ok := i.(string)
	if !ok {
		return ""
	}
	switch ll {
	case "trace":
		return "\x1b[90mTRC\x1b[0m"
	case "debug":
		return "\x1b[36mDBG\x1b[0m"
	case "info":
		return "\x1b[32mINF\x1b[0m"
	case "warn":
		return "\x1b[33mWRN\x1b[0m"
	case "error":
		return "\x1b[31mERR\x1b[0m"
	case "fatal", "panic":
		return "\x1b[1;31m" + strings.ToUpper(ll[:3]) + "\x1b[0m"
	default:
		return strings.ToUpper(ll)
	}
}

// Get returns the global logger instance
func Get() *Logger {
	return globalLogger
}

// WithContext returns a logger with context
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{logger: l.logger.With().Ctx(ctx).Logger()}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{logger: ctx.Logger()}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.logger.Fatal() }

// GetLevel returns the current log level
func (l *Logger) GetLevel() zerolog.Level {
	return l.logger.GetLevel()
}

// Global logging functions for convenience

func Debug() *zerolog.Event { return Get().Debug() }
func Info() *zerolog.Event  { return Get().Info() }
func Warn() *zerolog.Event  { return Get().Warn() }
func Error() *zerolog.Event { return Get().Error() }
func Fatal() *zerolog.Event { return Get().Fatal() }

// WithComponent returns a logger with a component field using the global logger
func WithComponent(component string) *Logger {
	return Get().WithComponent(component)
}

// WithError returns a logger with an error field using the global logger
func WithError(err error) *Logger {
	return Get().WithError(err)
}

// WithField returns a logger with a field using the global logger
func WithField(key string, value interface{}) *Logger {
	return Get().WithField(key, value)
}

// WithFields returns a logger with multiple fields using the global logger
func WithFields(fields map[string]interface{}) *Logger {
	return Get().WithFields(fields)
}
