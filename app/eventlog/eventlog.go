// Package eventlog writes the append-only trace of user-visible actions:
// one timestamped line per event, in the "TIME: <ts> MESSAGE:<msg>" format.
// Appends are best-effort, a failed write never reaches the caller.
package eventlog

import (
	"io"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger appends timestamped event lines to a rotated file target.
// Safe for concurrent use, each line is written in a single append.
type Logger struct {
	mu  sync.Mutex
	out io.WriteCloser
	now func() time.Time
}

// New creates a Logger appending to the given file, rotated by size
func New(path string) *Logger {
	return &Logger{
		out: &lumberjack.Logger{Filename: path, MaxSize: 10, MaxBackups: 3}, // size in Mb
		now: time.Now,
	}
}

// Log appends one event line. Write failures are reported to the process
// log and otherwise ignored.
func (l *Logger) Log(message string) {
	line := "TIME: " + l.now().Format("2006-01-02 15:04:05") + " MESSAGE:" + message + "\n"
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.out, line); err != nil {
		log.Printf("[WARN] failed to append event %q: %v", message, err)
	}
}

// Close closes the underlying file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
