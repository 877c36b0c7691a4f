package logger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// MaxLogLines is the maximum number of lines kept in the log file before the
// oldest lines are trimmed.
const MaxLogLines = 5000

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "TRACE":
		return LogLevelTrace
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LimitedLogger writes leveled, timestamped lines to a file and trims the
// file once it grows past MaxLogLines.
type LimitedLogger struct {
	file      *os.File
	lineCount int
	level     LogLevel
	mutex     sync.Mutex
}

var globalLogger *LimitedLogger

// defaultLogger is used before the global logger is initialized
var defaultLogger = &LimitedLogger{
	file:  os.Stderr,
	level: LogLevelInfo,
}

// NewLimitedLogger creates a LimitedLogger over the given file and installs
// it as the global logger.
func NewLimitedLogger(file *os.File, level LogLevel) *LimitedLogger {
	ll := &LimitedLogger{
		file:  file,
		level: level,
	}
	ll.countExistingLines()
	globalLogger = ll
	return ll
}

// SetLevel sets the logging level
func (ll *LimitedLogger) SetLevel(level LogLevel) {
	ll.mutex.Lock()
	defer ll.mutex.Unlock()
	ll.level = level
}

func (ll *LimitedLogger) shouldLog(level LogLevel) bool {
	return level >= ll.level
}

func (ll *LimitedLogger) logWithLevel(level LogLevel, format string, v ...any) {
	if !ll.shouldLog(level) {
		return
	}
	msg := fmt.Sprintf("%s [%s] %s\n", time.Now().Format("2006/01/02 15:04:05"), level.String(), fmt.Sprintf(format, v...))
	ll.Write([]byte(msg))
}

func (ll *LimitedLogger) Debug(format string, v ...any) { ll.logWithLevel(LogLevelDebug, format, v...) }
func (ll *LimitedLogger) Info(format string, v ...any)  { ll.logWithLevel(LogLevelInfo, format, v...) }
func (ll *LimitedLogger) Warn(format string, v ...any)  { ll.logWithLevel(LogLevelWarn, format, v...) }
func (ll *LimitedLogger) Error(format string, v ...any) { ll.logWithLevel(LogLevelError, format, v...) }

// Fatal logs an error message and exits with code 1
func (ll *LimitedLogger) Fatal(format string, v ...any) {
	ll.logWithLevel(LogLevelError, format, v...)
	os.Exit(1)
}

func active() *LimitedLogger {
	if globalLogger != nil {
		return globalLogger
	}
	return defaultLogger
}

// Package-level logging functions that use the global logger (or stderr
// before it is initialized).
func Debug(format string, v ...any) { active().Debug(format, v...) }
func Info(format string, v ...any)  { active().Info(format, v...) }
func Warn(format string, v ...any)  { active().Warn(format, v...) }
func Error(format string, v ...any) { active().Error(format, v...) }
func Fatal(format string, v ...any) { active().Fatal(format, v...) }

// noopFunc is a reusable no-op function to avoid allocations
var noopFunc = func() {}

// Trace returns a function that logs operation duration when called.
// Returns a no-op function when TRACE level is disabled.
// Usage: defer logger.Trace("operation")()
func Trace(name string) func() {
	ll := active()
	if !ll.shouldLog(LogLevelTrace) {
		return noopFunc
	}
	start := time.Now()
	return func() {
		ll.logWithLevel(LogLevelTrace, "%s: %v", name, time.Since(start))
	}
}

// countExistingLines counts the lines already present in the log file so
// rotation accounting survives restarts.
func (ll *LimitedLogger) countExistingLines() {
	ll.mutex.Lock()
	defer ll.mutex.Unlock()

	ll.file.Seek(0, 0)
	scanner := bufio.NewScanner(ll.file)
	count := 0
	for scanner.Scan() {
		count++
	}
	ll.lineCount = count
	ll.file.Seek(0, 2)
}

// Write implements io.Writer
func (ll *LimitedLogger) Write(p []byte) (n int, err error) {
	ll.mutex.Lock()
	defer ll.mutex.Unlock()

	n, err = ll.file.Write(p)
	if err != nil {
		return n, err
	}

	ll.lineCount += strings.Count(string(p), "\n")
	if ll.lineCount > MaxLogLines {
		ll.rotateLogFile()
	}
	return n, err
}

// rotateLogFile trims the log file to the last MaxLogLines lines.
func (ll *LimitedLogger) rotateLogFile() {
	ll.file.Seek(0, 0)
	scanner := bufio.NewScanner(ll.file)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) > MaxLogLines {
		lines = lines[len(lines)-MaxLogLines:]
	}

	ll.file.Truncate(0)
	ll.file.Seek(0, 0)
	for _, line := range lines {
		ll.file.WriteString(line + "\n")
	}
	ll.lineCount = len(lines)
}

// Close closes the underlying file
func (ll *LimitedLogger) Close() error {
	return ll.file.Close()
}
