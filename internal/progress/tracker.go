package progress

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Advance on a closed tracker. Callers may ignore it.
var ErrClosed = errors.New("progress: tracker closed")

// Tracker follows one sized transfer. The goroutine that opened it owns it;
// the registry only reads its counters.
type Tracker struct {
	reg      *Registry
	slot     int
	unit     string
	openedAt time.Duration

	size         atomic.Int64
	progress     atomic.Int64
	sinceSample  atomic.Int64
	lastSampleAt atomic.Int64
	closed       atomic.Bool
	label        atomic.Pointer[string]
	id           atomic.Pointer[string]

	uiMu sync.Mutex
	ui   Element
}

// Slot is the display position assigned at Open.
func (t *Tracker) Slot() int { return t.slot }

// Size is the announced total. It keeps its value after Close.
func (t *Tracker) Size() int64 { return t.size.Load() }

// Progress is the total advanced so far.
func (t *Tracker) Progress() int64 { return t.progress.Load() }

func (t *Tracker) Unit() string { return t.unit }

func (t *Tracker) Label() string { return *t.label.Load() }

func (t *Tracker) ID() string { return *t.id.Load() }

// SetID replaces the correlation id reported for this tracker.
func (t *Tracker) SetID(id string) { t.id.Store(&id) }

func (t *Tracker) IsOpen() bool { return !t.closed.Load() }

// Advance adds n to the progress. A failing UI element is logged and
// ignored; the tracker stays open.
func (t *Tracker) Advance(n int64) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if n <= 0 {
		return nil
	}
	t.progress.Add(n)
	t.sinceSample.Add(n)

	t.uiMu.Lock()
	var err error
	if t.ui != nil {
		err = t.ui.Add(n)
	}
	t.uiMu.Unlock()

	// Logged after unlocking: console output may route back through Write.
	if err != nil {
		t.reg.logger.Debug("progress element update failed", "slot", t.slot, "error", err)
	}
	return nil
}

// Relabel changes the description. If the UI element rejects it the tracker
// is closed and the error returned.
func (t *Tracker) Relabel(label string, immediate bool) error {
	t.label.Store(&label)
	if t.closed.Load() {
		return nil
	}

	t.uiMu.Lock()
	var err error
	if t.ui != nil {
		err = t.ui.Describe(label, immediate)
	}
	t.uiMu.Unlock()

	if err != nil {
		t.Close()
		return fmt.Errorf("relabel slot %d: %w", t.slot, err)
	}
	return nil
}

// Close tombstones the tracker and releases its element. Its slot becomes
// available to the next Open. Calling Close more than once is harmless.
func (t *Tracker) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.uiMu.Lock()
	ui := t.ui
	t.ui = nil
	t.uiMu.Unlock()
	if ui != nil {
		if err := ui.Close(); err != nil {
			t.reg.logger.Debug("progress element close failed", "slot", t.slot, "error", err)
		}
	}
}

func (t *Tracker) println(line string) error {
	t.uiMu.Lock()
	defer t.uiMu.Unlock()
	if t.ui == nil {
		return ErrClosed
	}
	return t.ui.Println(line)
}
