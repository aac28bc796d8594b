package watch

import (
	"context"
	"sync"
	"time"
)

// wakeInterval and debounceWindow are spec.md §4.8's fixed constants.
const (
	wakeInterval   = 500 * time.Millisecond
	debounceWindow = 2 * time.Second
)

// debouncer coalesces a stream of changed paths into batched callback
// invocations (spec.md §4.8): it tracks a pending-path set and the time of
// the last event, waking every wakeInterval to check whether debounceWindow
// has elapsed since the last event with a non-empty set — if so, it emits
// the set to cb and clears it.
type debouncer struct {
	cb Callback

	mu       sync.Mutex
	pending  map[string]struct{}
	lastSeen time.Time
}

func newDebouncer(cb Callback) *debouncer {
	return &debouncer{cb: cb, pending: make(map[string]struct{})}
}

// add registers path as pending and resets the debounce clock.
func (d *debouncer) add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[path] = struct{}{}
	d.lastSeen = time.Now()
}

// run wakes every wakeInterval, emitting and clearing the pending set once
// debounceWindow has elapsed since the most recent add. On cancellation it
// drains and emits any remaining pending paths before exiting (spec.md
// §4.8: "a cancel signal drains pending events and exits").
func (d *debouncer) run(ctx context.Context) {
	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.flush()
			return
		case <-ticker.C:
			d.mu.Lock()
			ready := len(d.pending) > 0 && time.Since(d.lastSeen) >= debounceWindow
			d.mu.Unlock()
			if ready {
				d.flush()
			}
		}
	}
}

// flush emits the current pending set to cb and clears it, if non-empty.
func (d *debouncer) flush() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	d.pending = make(map[string]struct{})
	d.mu.Unlock()

	d.cb(paths)
}
