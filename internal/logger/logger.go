// Package logger provides leveled logging for the whole service.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger provides leveled logging.
type Logger struct {
	level  Level
	logger *log.Logger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format.
func Init(level string, format string) {
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}

	defaultLogger = &Logger{
		level:  parseLevel(level),
		logger: log.New(os.Stderr, "", flags),
	}
}

func parseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func logf(level Level, tag, format string, args ...interface{}) {
	if defaultLogger == nil || defaultLogger.level > level {
		return
	}
	msg := fmt.Sprintf(tag+format, args...)
	_ = defaultLogger.logger.Output(3, msg)
}

func Debug(format string, args ...interface{}) {
	logf(DebugLevel, "[DEBUG] ", format, args...)
}

func Info(format string, args ...interface{}) {
	logf(InfoLevel, "[INFO] ", format, args...)
}

func Warn(format string, args ...interface{}) {
	logf(WarnLevel, "[WARN] ", format, args...)
}

func Error(format string, args ...interface{}) {
	logf(ErrorLevel, "[ERROR] ", format, args...)
}

func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf("[FATAL] "+format, args...)
	if defaultLogger != nil {
		_ = defaultLogger.logger.Output(2, msg)
	}
	os.Exit(1)
}
