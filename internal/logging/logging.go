// Package logging builds the process logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

const defaultMaxSizeMB = 2

// MaskValue replaces values of sensitive fields.
const MaskValue = "***REDACTED***"

var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "cookie", "webhook", "credential",
}

// Logger is the process logger plus the resources it owns.
type Logger struct {
	*log.Logger
	file *log.FileWriter
}

// New creates a logger writing to stderr and, when cfg.File is set, to a
// size-rotated file.
func New(cfg models.LoggingConfig) *Logger {
	console := &log.ConsoleWriter{Writer: os.Stderr, ColorOutput: true}

	l := &Logger{}
	var writer log.Writer = console
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = defaultMaxSizeMB
		}
		l.file = &log.FileWriter{
			Filename:     cfg.File,
			MaxSize:      int64(maxSize) * 1024 * 1024,
			MaxBackups:   cfg.MaxBackups,
			EnsureFolder: true,
		}
		writer = &log.MultiEntryWriter{console, l.file}
	}

	l.Logger = &log.Logger{
		Level:      ParseLevel(cfg.Level),
		TimeFormat: "15:04:05",
		Writer:     writer,
	}
	return l
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *log.Logger {
	return &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Close releases the file writer, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Redact returns a copy of fields with sensitive values masked. Nested maps
// are redacted recursively.
func Redact(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(k) {
			out[k] = MaskValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}
