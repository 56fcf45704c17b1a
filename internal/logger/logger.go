// Package logger is a small leveled wrapper around the standard log package.
package logger

import (
	"fmt"
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

const (
	prefixDebug = "[DEBUG] "
	prefixInfo  = " [INFO] "
	prefixWarn  = " [WARN] "
	prefixError = "[ERROR] "
)

var (
	level  atomic.Int32
	output = log.New(os.Stdout, "", log.LstdFlags)
)

func init() {
	level.Store(int32(LevelInfo))
}

// ParseLevel maps a config string to a Level. Unknown names yield LevelInfo
// and an error.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

func SetLevel(l Level) {
	level.Store(int32(l))
}

func Enabled(l Level) bool {
	return Level(level.Load()) <= l
}

func Debugf(format string, args ...interface{}) {
	if Enabled(LevelDebug) {
		output.Printf(prefixDebug+format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if Enabled(LevelInfo) {
		output.Printf(prefixInfo+format, args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Enabled(LevelWarn) {
		output.Printf(prefixWarn+format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Enabled(LevelError) {
		output.Printf(prefixError+format, args...)
	}
}

// Fatalf logs unconditionally and exits.
func Fatalf(format string, args ...interface{}) {
	output.Fatalf(prefixError+format, args...)
}
