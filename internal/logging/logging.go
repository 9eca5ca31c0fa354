// Package logging provides structured logging for the analysis core.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// Level represents the severity of a log message.
type Level string

const (
	// DebugLevel for debug messages
	DebugLevel Level = "debug"
	// InfoLevel for informational messages
	InfoLevel Level = "info"
	// WarnLevel for warning messages
	WarnLevel Level = "warn"
	// ErrorLevel for error messages
	ErrorLevel Level = "error"
)

var levelPriority = map[Level]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
}

// ParseLevel converts a string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(s)) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return Level(strings.ToLower(s))
	default:
		return InfoLevel
	}
}

// Format represents the output format for logs.
type Format string

const (
	// JSONFormat outputs logs as JSON
	JSONFormat Format = "json"
	// HumanFormat outputs logs in human-readable format
	HumanFormat Format = "human"
)

// Fields carries structured context attached to a log entry.
type Fields map[string]interface{}

// Config holds logger configuration.
type Config struct {
	Format Format
	Level  Level
	Output io.Writer // Optional, defaults to stderr
}

// Logger provides structured logging.
type Logger struct {
	config Config
	writer io.Writer
	base   Fields
}

// New creates a logger with the given configuration.
func New(config Config) *Logger {
	writer := config.Output
	if writer == nil {
		writer = os.Stderr
	}
	return &Logger{
		config: config,
		writer: writer,
	}
}

// Nop returns a logger that discards everything. Intended for tests.
func Nop() *Logger {
	return New(Config{Format: JSONFormat, Level: ErrorLevel, Output: io.Discard})
}

// WithFields returns a child logger that attaches the given fields to every
// entry it emits.
func (l *Logger) WithFields(fields Fields) *Logger {
	merged := make(Fields, len(l.base)+len(fields))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		config: l.config,
		writer: l.writer,
		base:   merged,
	}
}

type entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

func (l *Logger) shouldLog(level Level) bool {
	return levelPriority[level] >= levelPriority[l.config.Level]
}

func (l *Logger) log(level Level, message string, fields Fields) {
	if !l.shouldLog(level) {
		return
	}

	all := fields
	if len(l.base) > 0 {
		all = make(Fields, len(l.base)+len(fields))
		for k, v := range l.base {
			all[k] = v
		}
		for k, v := range fields {
			all[k] = v
		}
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Message:   message,
		Fields:    all,
	}

	if l.config.Format == HumanFormat {
		l.writeHuman(e)
	} else {
		l.writeJSON(e)
	}
}

func (l *Logger) writeJSON(e entry) {
	data, err := json.Marshal(e)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(l.writer, string(data))
}

func (l *Logger) writeHuman(e entry) {
	_, _ = fmt.Fprintf(l.writer, "%s [%s] %s", e.Timestamp, e.Level, e.Message)

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		_, _ = fmt.Fprint(l.writer, " |")
		for _, k := range keys {
			_, _ = fmt.Fprintf(l.writer, " %s=%v", k, e.Fields[k])
		}
	}
	_, _ = fmt.Fprintln(l.writer)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields Fields) {
	l.log(DebugLevel, message, fields)
}

// Info logs an info message.
func (l *Logger) Info(message string, fields Fields) {
	l.log(InfoLevel, message, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields Fields) {
	l.log(WarnLevel, message, fields)
}

// Error logs an error message.
func (l *Logger) Error(message string, fields Fields) {
	l.log(ErrorLevel, message, fields)
}
