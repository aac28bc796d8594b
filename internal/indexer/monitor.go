package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/amanmcp-labs/memoryd/internal/types"
)

// monitorInterval is the completion monitor's tick period (spec.md §4.11).
const monitorInterval = 10 * time.Second

// Monitor periodically promotes projects from embedding_pending to completed
// once every chunk and symbol they expect has a landed embedding (spec.md
// §4.11). It ticks on a fixed interval and skips any tick it's still
// processing the previous one for, rather than queuing up.
type Monitor struct {
	ix  *Indexer
	log *slog.Logger
}

// NewMonitor constructs a Monitor over ix.
func NewMonitor(ix *Indexer, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{ix: ix, log: log}
}

// Run ticks every monitorInterval until ctx is cancelled, checking every
// embedding_pending project's completion counts on each tick.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	busy := make(chan struct{}, 1)
	busy <- struct{}{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-busy:
			default:
				continue // previous tick still running, skip this one
			}
			m.tick(ctx)
			busy <- struct{}{}
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	projects, err := m.ix.store.ListProjects(ctx)
	if err != nil {
		m.log.Warn("completion monitor: failed to list projects", "error", err)
		return
	}

	for _, p := range projects {
		if p.State != types.IndexStateEmbeddingPending {
			continue
		}

		embeddedChunks, embeddedSymbols, err := m.ix.store.CompletionCounts(ctx, p.ProjectID)
		if err != nil {
			m.log.Warn("completion monitor: failed to count embeddings", "project", p.ProjectID, "error", err)
			continue
		}

		if embeddedChunks >= p.TotalChunks && embeddedSymbols >= p.TotalSymbols {
			now := time.Now()
			p.State = types.IndexStateCompleted
			p.CompletedAt = &now
			if err := m.ix.store.SaveIndexStatus(ctx, p); err != nil {
				m.log.Warn("completion monitor: failed to mark completed", "project", p.ProjectID, "error", err)
			}
		}
	}
}
