// Package logging builds the charmbracelet loggers used across modmgr.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	root   *log.Logger
	rootMu sync.RWMutex
)

// New creates a logger writing to w. verbose lowers the level to debug.
func New(w io.Writer, verbose bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           level,
	})
}

// Default returns the process logger, creating a stderr logger on first use.
func Default() *log.Logger {
	rootMu.RLock()
	l := root
	rootMu.RUnlock()
	if l != nil {
		return l
	}

	rootMu.Lock()
	defer rootMu.Unlock()
	if root == nil {
		root = New(os.Stderr, false)
	}
	return root
}

// SetDefault replaces the process logger.
func SetDefault(l *log.Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// Or returns l, or the process logger when l is nil.
func Or(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return Default()
}
