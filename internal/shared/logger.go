package shared

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelTags = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps a config string to a log level. Unknown strings fall back
// to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides leveled logging with an attribution context. Workers derive
// child loggers carrying their worker id and the transaction they are
// driving, so a log line can be traced back to the execution that produced
// it.
type Logger struct {
	out   *log.Logger
	level LogLevel
	ctx   string
}

var (
	// DefaultLogger is the default logger instance
	DefaultLogger *Logger
)

func init() {
	DefaultLogger = NewLogger(INFO)
}

// NewLogger creates a new logger instance
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		out:   log.New(os.Stdout, "", log.LstdFlags),
		level: level,
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// WithWorker derives a logger attributed to one logical worker.
func (l *Logger) WithWorker(id int) *Logger {
	return l.withContext(fmt.Sprintf("worker=%d", id))
}

// WithTx derives a logger attributed to one transaction.
func (l *Logger) WithTx(txID int64) *Logger {
	return l.withContext(fmt.Sprintf("tx=%d", txID))
}

func (l *Logger) withContext(kv string) *Logger {
	ctx := kv
	if l.ctx != "" {
		ctx = l.ctx + " " + kv
	}
	return &Logger{out: l.out, level: l.level, ctx: ctx}
}

func (l *Logger) logf(level LogLevel, format string, v ...interface{}) {
	if l.level > level {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if l.ctx != "" {
		l.out.Printf("[%s] %s %s", levelTags[level], l.ctx, msg)
		return
	}
	l.out.Printf("[%s] %s", levelTags[level], msg)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.logf(DEBUG, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.logf(INFO, format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.logf(WARN, format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.logf(ERROR, format, v...)
}
