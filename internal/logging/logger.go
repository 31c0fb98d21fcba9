package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"runcommand/internal/target"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug   LogLevel = "debug"
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config holds logging configuration
type Config struct {
	Level  LogLevel  // Minimum log level to output
	Format LogFormat // Output format (json or text)
	Output io.Writer // Output destination (defaults to stderr)
}

// Logger wraps slog.Logger with the events runcommand reports
type Logger struct {
	logger *slog.Logger
	config Config
}

// NewLogger creates a new logger instance
func NewLogger(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: convertLogLevel(config.Level),
	}

	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &Logger{
		logger: slog.New(handler),
		config: config,
	}
}

// Discard returns a logger that drops everything. Used by tests and library
// callers that do not care about logs.
func Discard() *Logger {
	return NewLogger(Config{Output: io.Discard})
}

func convertLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// ParseLevel validates a --logging value. Empty means info.
func ParseLevel(s string) (LogLevel, error) {
	switch LogLevel(s) {
	case "", LevelInfo:
		return LevelInfo, nil
	case LevelDebug, LevelWarning:
		return LogLevel(s), nil
	}
	return "", fmt.Errorf("invalid log level %q: must be one of 'debug' or 'warning'", s)
}

// ParseFormat validates a --log-format value. Empty means text.
func ParseFormat(s string) (LogFormat, error) {
	switch LogFormat(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("invalid log format %q: must be one of 'json' or 'text'", s)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an informational message
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// With returns a logger that adds args to every record
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), config: l.config}
}

// LogConnection logs an established controller session
func (l *Logger) LogConnection(t target.Target, user string, duration time.Duration) {
	l.Info("ssh connection established",
		"host", t.Host,
		"port", t.Port,
		"user", user,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogConnectionError logs a failed connection. Credentials are never logged.
func (l *Logger) LogConnectionError(t target.Target, user string, err error) {
	l.Error("ssh connection failed",
		"host", t.Host,
		"port", t.Port,
		"user", user,
		"error", err.Error(),
	)
}

// LogConnectionWarning logs security warnings for connections
func (l *Logger) LogConnectionWarning(hostname string, message string) {
	l.Warn("connection security warning",
		"host", hostname,
		"warning", message,
	)
}

// LogCommand logs a completed command. The command text only appears at debug
// level.
func (l *Logger) LogCommand(t target.Target, command string, bytes int, duration time.Duration) {
	l.Debug("command executed",
		"host", t.Host,
		"command", command,
		"bytes", bytes,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogCommandError logs a failed command
func (l *Logger) LogCommandError(t target.Target, command string, err error) {
	l.Error("command execution failed",
		"host", t.Host,
		"command", command,
		"error", err.Error(),
	)
}

// LogWorkerStart logs the start of a per-target worker
func (l *Logger) LogWorkerStart(id int, t target.Target) {
	l.Info("worker started",
		"worker", id,
		"host", t.Host,
	)
}

// LogWorkerFinish logs the end of a per-target worker
func (l *Logger) LogWorkerFinish(id int, t target.Target, duration time.Duration) {
	l.Info("worker finished",
		"worker", id,
		"host", t.Host,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogTranscriptWritten logs the output file written for a target
func (l *Logger) LogTranscriptWritten(id int, hostname, path string, bytes int) {
	l.Info("writing results",
		"worker", id,
		"hostname", hostname,
		"file", path,
		"bytes", bytes,
	)
}

// LogExecutorStart logs the start of dispatch
func (l *Logger) LogExecutorStart(targetCount int, sequential, failFast bool) {
	l.Info("executor started",
		"target_count", targetCount,
		"sequential", sequential,
		"fail_fast", failFast,
	)
}

// LogExecutorComplete logs the completion of dispatch
func (l *Logger) LogExecutorComplete(targetCount, successCount, failureCount int, duration time.Duration) {
	l.Info("executor completed",
		"target_count", targetCount,
		"success_count", successCount,
		"failure_count", failureCount,
		"total_duration_ms", duration.Milliseconds(),
	)
}

// LogConfigLoad logs configuration loading events
func (l *Logger) LogConfigLoad(source string) {
	l.Debug("configuration loaded",
		"source", source,
	)
}

// LogTargetParsing logs target parsing information
func (l *Logger) LogTargetParsing(source string, count, skipped int) {
	l.Info("controllers loaded",
		"source", source,
		"count", count,
		"skipped", skipped,
	)
}

// LogTargetSkipped logs an address line that was not a valid IPv4 literal
func (l *Logger) LogTargetSkipped(source string, line int, value string) {
	l.Warn("skipping invalid address",
		"source", source,
		"line", line,
		"value", value,
	)
}

// LogTargetParsingError logs target parsing errors
func (l *Logger) LogTargetParsingError(source string, err error) {
	l.Error("target parsing failed",
		"source", source,
		"error", err.Error(),
	)
}

// NewLoggerFromConfig creates a logger from application configuration. A nil
// output means stderr.
func NewLoggerFromConfig(logLevel, logFormat string, output io.Writer) (*Logger, error) {
	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	format, err := ParseFormat(logFormat)
	if err != nil {
		return nil, err
	}
	return NewLogger(Config{Level: level, Format: format, Output: output}), nil
}
