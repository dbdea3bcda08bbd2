package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Logger defines the interface for application logging.
type Logger interface {
	Debug(message string, fields ...interface{})
	Info(message string, fields ...interface{})
	Warn(message string, fields ...interface{})
	Error(message string, fields ...interface{})
	Success(message string, fields ...interface{})
	Fatal(message string, fields ...interface{}) // Terminates with os.Exit(1)
}

// Level represents the minimum severity a logger will print.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a LOG_LEVEL string into a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	infoColor    = color.New(color.FgGreen).SprintFunc()
	warnColor    = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	debugColor   = color.New(color.FgCyan).SprintFunc()
	successColor = color.New(color.FgGreen, color.Bold).SprintFunc()

	timeColor = color.New(color.FgWhite).SprintFunc()
	fileColor = color.New(color.FgBlue).SprintFunc()
	boldColor = color.New(color.Bold).SprintFunc()
)

// ColorLogger implements the Logger interface with colored console output.
type ColorLogger struct {
	minLevel Level
}

// NewColorLogger creates a new ColorLogger printing everything at or above level.
func NewColorLogger(level Level) Logger {
	return &ColorLogger{minLevel: level}
}

// Debug logs a debug message.
func (l *ColorLogger) Debug(message string, fields ...interface{}) {
	if l.minLevel > LevelDebug {
		return
	}
	l.printMessage(debugColor("DEBUG"), message, fields...)
}

// Info logs an informational message.
func (l *ColorLogger) Info(message string, fields ...interface{}) {
	if l.minLevel > LevelInfo {
		return
	}
	l.printMessage(infoColor("INFO"), message, fields...)
}

// Warn logs a warning message.
func (l *ColorLogger) Warn(message string, fields ...interface{}) {
	if l.minLevel > LevelWarn {
		return
	}
	l.printMessage(warnColor("WARN"), message, fields...)
}

// Error logs an error message.
func (l *ColorLogger) Error(message string, fields ...interface{}) {
	l.printMessage(errorColor("ERROR"), message, fields...)
}

// Success logs a success message. Filtered together with Info.
func (l *ColorLogger) Success(message string, fields ...interface{}) {
	if l.minLevel > LevelInfo {
		return
	}
	l.printMessage(successColor("SUCCESS"), message, fields...)
}

// Fatal logs a fatal error message and terminates the program.
func (l *ColorLogger) Fatal(message string, fields ...interface{}) {
	l.printMessage(errorColor("FATAL"), message, fields...)
	os.Exit(1)
}

// printMessage is the internal function for formatting and printing the log message.
func (l *ColorLogger) printMessage(level, message string, fields ...interface{}) {
	fmt.Println(l.formatMessage(level, message) + l.formatFields(fields...))
}

// formatCaller returns information about the call site (file:line).
func (l *ColorLogger) formatCaller() string {
	_, file, line, ok := runtime.Caller(4)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func (l *ColorLogger) formatMessage(level, message string) string {
	return fmt.Sprintf("%s %s %s %s",
		timeColor(time.Now().Format("2006-01-02 15:04:05")),
		fileColor(l.formatCaller()),
		level,
		message)
}

// formatFields formats all additional key-value fields.
func (l *ColorLogger) formatFields(fields ...interface{}) string {
	result := ""
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		result += fmt.Sprintf(" %s=%v", boldColor(key), fields[i+1])
	}
	return result
}
