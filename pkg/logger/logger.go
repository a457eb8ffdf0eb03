package logger

import (
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a level name to a Level, defaulting to LevelInfo.
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

type Logger struct {
	level       atomic.Int32
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
}

func New() *Logger {
	return NewWithWriters(os.Stdout, os.Stderr)
}

func NewWithWriters(out, errOut io.Writer) *Logger {
	l := &Logger{
		infoLogger:  log.New(out, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile),
		warnLogger:  log.New(errOut, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile),
		errorLogger: log.New(errOut, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile),
		debugLogger: log.New(out, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
	l.level.Store(int32(LevelInfo))
	return l
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

// calldepth 3 points Lshortfile at the caller of the package-level helpers.
func (l *Logger) Info(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.infoLogger.Output(3, sprintf(format, v...))
	}
}

func (l *Logger) Warn(format string, v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.warnLogger.Output(3, sprintf(format, v...))
	}
}

func (l *Logger) Error(format string, v ...interface{}) {
	if l.enabled(LevelError) {
		l.errorLogger.Output(3, sprintf(format, v...))
	}
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.debugLogger.Output(3, sprintf(format, v...))
	}
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.errorLogger.Output(3, sprintf(format, v...))
	os.Exit(1)
}

// Global logger instance
var GlobalLogger = New()

// SetLevel changes the minimum level of the global logger.
func SetLevel(level Level) {
	GlobalLogger.SetLevel(level)
}

// Convenience functions
func Info(format string, v ...interface{}) {
	GlobalLogger.Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Fatal(format, v...)
}
