// Package progress tracks concurrent sized transfers and samples their
// throughput for status reporting and console bars.
package progress

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Alia5/usbridge/apitypes"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 500 * time.Millisecond

// Registry owns the tracker slots and the sampler.
type Registry struct {
	clock    Clock
	interval time.Duration
	newUI    UIFactory
	out      io.Writer
	logger   *slog.Logger

	mu    sync.Mutex
	slots []*Tracker

	report atomic.Pointer[[]apitypes.ProgressRecord]

	runMu sync.Mutex
	stop  chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

func WithClock(c Clock) Option { return func(r *Registry) { r.clock = c } }

func WithInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithUI(f UIFactory) Option { return func(r *Registry) { r.newUI = f } }

// WithOutput sets where Write prints when no tracker is open.
func WithOutput(w io.Writer) Option { return func(r *Registry) { r.out = w } }

func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.logger = l } }

// New creates a Registry. The sampler does not run until Start.
func New(opts ...Option) *Registry {
	r := &Registry{
		clock:    CPUClock(),
		interval: DefaultInterval,
		newUI:    NopUI,
		out:      os.Stdout,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	empty := []apitypes.ProgressRecord{}
	r.report.Store(&empty)
	return r
}

// SetLogger replaces the logger used for element failures. Call it before
// any tracker is opened.
func (r *Registry) SetLogger(l *slog.Logger) { r.logger = l }

// Open registers a tracker in the lowest free slot.
func (r *Registry) Open(size int64, label, unit string) *Tracker {
	r.mu.Lock()
	slot := len(r.slots)
	for i, t := range r.slots {
		if !t.IsOpen() {
			slot = i
			break
		}
	}
	now := r.clock.Now()
	t := &Tracker{reg: r, slot: slot, unit: unit, openedAt: now}
	t.size.Store(size)
	t.lastSampleAt.Store(int64(now))
	t.label.Store(&label)
	id := uuid.NewString()
	t.id.Store(&id)
	if slot == len(r.slots) {
		r.slots = append(r.slots, t)
	} else {
		r.slots[slot] = t
	}
	r.mu.Unlock()

	el, err := r.newUI(size, slot, label, unit)
	if err != nil {
		r.logger.Debug("progress element unavailable", "slot", slot, "error", err)
		el = nopElement{}
	}
	t.uiMu.Lock()
	t.ui = el
	t.uiMu.Unlock()
	return t
}

func (r *Registry) snapshot() []*Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Tracker(nil), r.slots...)
}

// AnyOpen reports whether at least one tracker is open.
func (r *Registry) AnyOpen() bool { return r.OpenCount() > 0 }

func (r *Registry) OpenCount() int {
	n := 0
	for _, t := range r.snapshot() {
		if t.IsOpen() {
			n++
		}
	}
	return n
}

// Write prints line through the first open tracker able to display it, or
// to the registry output.
func (r *Registry) Write(line string) {
	r.writeTo(line, r.out)
}

func (r *Registry) writeTo(line string, fallback io.Writer) {
	for _, t := range r.snapshot() {
		if !t.IsOpen() {
			continue
		}
		if err := t.println(line); err == nil {
			return
		}
	}
	fmt.Fprintln(fallback, line)
}

// Report returns the most recent sample. The slice must not be modified.
func (r *Registry) Report() []apitypes.ProgressRecord {
	return *r.report.Load()
}

// Start launches the sampler. Calling it while running is a no-op.
func (r *Registry) Start() {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.stop != nil {
		return
	}
	stop := make(chan struct{})
	r.stop = stop
	go r.run(stop)
}

// Shutdown asks the sampler to stop and returns without waiting for it.
func (r *Registry) Shutdown() {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.stop == nil {
		return
	}
	close(r.stop)
	r.stop = nil
}

func (r *Registry) run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.sample()
		}
	}
}

func (r *Registry) sample() {
	now := r.clock.Now()
	records := []apitypes.ProgressRecord{}
	for _, t := range r.snapshot() {
		if !t.IsOpen() {
			continue
		}
		k := t.sinceSample.Swap(0)
		last := time.Duration(t.lastSampleAt.Swap(int64(now)))
		var speed float64
		if dt := (now - last).Seconds(); dt > 0 {
			speed = float64(k) / dt
		}
		records = append(records, apitypes.ProgressRecord{
			Description: t.Label(),
			Progress:    t.Progress(),
			Size:        t.Size(),
			Elapsed:     (now - t.openedAt).Seconds(),
			Speed:       speed,
			ID:          t.ID(),
			Slot:        t.slot,
		})
	}
	r.report.Store(&records)
}

// ConsoleWriter routes log output through the registry so open bars are
// redrawn below it. Fallback, when set, replaces the registry output for
// lines written while no bar is open.
type ConsoleWriter struct {
	Registry *Registry
	Fallback io.Writer
}

func (w ConsoleWriter) Write(p []byte) (int, error) {
	line := string(p)
	for len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	if w.Fallback != nil {
		w.Registry.writeTo(line, w.Fallback)
	} else {
		w.Registry.Write(line)
	}
	return len(p), nil
}
