// Package lifecycle implements component registration and phased shutdown
// (spec.md §5): components register at a priority, health is aggregated
// across them, and shutdown proceeds drain_queues -> flush_storage ->
// force_stop with each phase bounded to a share of an overall timeout.
package lifecycle

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Priority orders components within a shutdown phase. Components shut down
// in ascending priority order; force-stop iterates in reverse (spec.md §5:
// "shut down in priority order (First < Normal < Last)... force-stop
// iterates in reverse").
type Priority int

const (
	First Priority = iota
	Normal
	Last
)

// Component is anything the registry can drain, flush, and force-stop.
// A component that has no work to do for a phase should return nil
// promptly rather than block.
type Component interface {
	Name() string
	// Drain stops accepting new work and waits (bounded by ctx) for
	// in-flight work to finish its current unit.
	Drain(ctx context.Context) error
	// Flush persists any buffered state.
	Flush(ctx context.Context) error
	// ForceStop aborts anything still running unconditionally.
	ForceStop() error
	// HealthCheck reports whether the component is currently healthy.
	HealthCheck(ctx context.Context) error
}

type entry struct {
	component Component
	priority  Priority
}

// Registry tracks registered components and orchestrates phased shutdown
// and health aggregation across them.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	log     *slog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log}
}

// Register adds c to the registry at priority p.
func (r *Registry) Register(c Component, p Priority) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{component: c, priority: p})
}

func (r *Registry) ordered(reverse bool) []Component {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if reverse {
			return sorted[i].priority > sorted[j].priority
		}
		return sorted[i].priority < sorted[j].priority
	})
	out := make([]Component, len(sorted))
	for i, e := range sorted {
		out[i] = e.component
	}
	return out
}

// HealthCheck aggregates HealthCheck across every registered component,
// reporting whether all of them are healthy and the names of those that
// returned an error.
func (r *Registry) HealthCheck(ctx context.Context) (healthy bool, failing []string) {
	healthy = true
	for _, c := range r.ordered(false) {
		if err := c.HealthCheck(ctx); err != nil {
			healthy = false
			failing = append(failing, c.Name())
		}
	}
	return healthy, failing
}

// Shutdown runs the three phases of spec.md §5 against every registered
// component, each bounded to totalTimeout/3: drain_queues, flush_storage,
// force_stop. A component erroring in drain or flush is logged and the
// phase continues with the remaining components; force_stop is
// unconditional and its own errors are logged only.
func (r *Registry) Shutdown(ctx context.Context, totalTimeout time.Duration) {
	phaseTimeout := totalTimeout / 3

	r.runPhase(ctx, "drain_queues", phaseTimeout, r.ordered(false), func(c Component, pctx context.Context) error {
		return c.Drain(pctx)
	})
	r.runPhase(ctx, "flush_storage", phaseTimeout, r.ordered(false), func(c Component, pctx context.Context) error {
		return c.Flush(pctx)
	})
	r.runPhase(ctx, "force_stop", phaseTimeout, r.ordered(true), func(c Component, _ context.Context) error {
		return c.ForceStop()
	})
}

func (r *Registry) runPhase(ctx context.Context, name string, timeout time.Duration, components []Component, fn func(Component, context.Context) error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, c := range components {
		if err := fn(c, pctx); err != nil {
			r.log.Warn("lifecycle phase error", "phase", name, "component", c.Name(), "error", err)
		}
	}
}
