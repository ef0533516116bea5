// Package notify delivers the short, dismissable messages a user sees when an
// operation succeeds or fails.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Notifier surfaces user facing messages. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Console writes coloured lines to w.
type Console struct {
	w     io.Writer
	color bool
	mu    sync.Mutex
}

func NewConsole(w io.Writer, color bool) *Console {
	return &Console{w: w, color: color}
}

func (c *Console) Success(msg string) { c.write(Green, "✔", msg) }
func (c *Console) Error(msg string)   { c.write(Red, "✖", msg) }

func (c *Console) write(color, mark, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.color {
		fmt.Fprintf(c.w, "%s%s %s%s\n", color, mark, msg, ResetColor)
		return
	}
	fmt.Fprintf(c.w, "%s %s\n", mark, msg)
}

// Log forwards notifications to a zerolog logger.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) Log {
	return Log{logger: logger}
}

func (l Log) Success(msg string) { l.logger.Info().Str("notification", "success").Msg(msg) }
func (l Log) Error(msg string)   { l.logger.Warn().Str("notification", "error").Msg(msg) }

// Discard drops everything.
type Discard struct{}

func (Discard) Success(string) {}
func (Discard) Error(string)   {}

// Recorder keeps every notification, for tests.
type Recorder struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (r *Recorder) Success(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, msg)
}

func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *Recorder) Successes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.successes...)
}

func (r *Recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}
