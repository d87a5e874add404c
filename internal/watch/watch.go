// Package watch polls the process table for a meeting application.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const (
	DefaultProcess  = "zoom"
	DefaultInterval = 2 * time.Second
)

// ProcessLister returns the names of running processes
type ProcessLister interface {
	ProcessNames(ctx context.Context) ([]string, error)
}

// PsutilLister lists processes through gopsutil
type PsutilLister struct{}

// ProcessNames implements ProcessLister. Processes that exit while being
// listed are skipped.
func (PsutilLister) ProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Event reports a change in whether the watched process is running
type Event struct {
	Process string    `json:"process"`
	Running bool      `json:"running"`
	At      time.Time `json:"at"`
}

// Handler receives edge events. It runs on the watcher goroutine.
type Handler func(Event)

// Watcher reports when a process whose name contains Process starts or stops
type Watcher struct {
	process  string
	interval time.Duration
	lister   ProcessLister
	handler  Handler

	running atomic.Bool
	known   bool
}

// New creates a watcher. An empty process name or non-positive interval
// selects the defaults.
func New(processName string, interval time.Duration, lister ProcessLister, handler Handler) *Watcher {
	processName = strings.ToLower(strings.TrimSpace(processName))
	if processName == "" {
		processName = DefaultProcess
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if lister == nil {
		lister = PsutilLister{}
	}
	return &Watcher{
		process:  processName,
		interval: interval,
		lister:   lister,
		handler:  handler,
	}
}

// Process returns the lowercased name fragment being watched
func (w *Watcher) Process() string {
	return w.process
}

// Running reports the result of the last successful check
func (w *Watcher) Running() bool {
	return w.running.Load()
}

// Check polls once and emits an event if the state changed. The first
// successful check only emits when the process is running.
func (w *Watcher) Check(ctx context.Context) (bool, error) {
	names, err := w.lister.ProcessNames(ctx)
	if err != nil {
		return w.running.Load(), err
	}

	found := false
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), w.process) {
			found = true
			break
		}
	}

	prev := w.running.Swap(found)
	changed := prev != found || (!w.known && found)
	w.known = true

	if changed && w.handler != nil {
		w.handler(Event{Process: w.process, Running: found, At: time.Now()})
	}
	return found, nil
}

// Run polls until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	slog.Info("Watching for process", "process", w.process, "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Check(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("Process check failed", "process", w.process, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
