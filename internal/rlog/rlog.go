// Package rlog adapts dragonboat's logger.ILogger facade to a plain
// stdlib *log.Logger, and installs it as the process-wide logger factory
// so every package (master, hashindex, recovery, dispatch, coordinator,
// and dragonboat's own raft internals) logs through the same format.
package rlog

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

type adapter struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *adapter) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *adapter) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *adapter) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *adapter) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *adapter) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

// Panicf panics at every configured level, since CRITICAL is the lowest
// dragonboat LogLevel. Internal invariant violations in this repo (e.g. a
// hash-index pointer too wide) are surfaced as errors by their own
// packages; Panicf exists for the dragonboat-internal call sites that
// expect it.
func (l *adapter) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *adapter) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// newAdapter implements logger.Factory.
func newAdapter(pkgName string) logger.ILogger {
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)
	return &adapter{name: pkgName, level: logger.INFO, logger: stdLogger}
}

// ParseLevel converts a config string into a dragonboat LogLevel.
func ParseLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}

// packages every component in this repo logs under.
var packages = []string{
	"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb",
	"master", "hashindex", "objlog", "tablet", "recovery", "dispatch",
	"coordinator", "backup", "rpc",
}

// Init installs the adapter as dragonboat's logger factory and sets
// every named package's level from the config string.
func Init(level string) {
	logger.SetLoggerFactory(newAdapter)
	lvl := ParseLevel(level)
	for _, name := range packages {
		logger.GetLogger(name).SetLevel(lvl)
	}
}
