package indexer

import (
	"context"

	"github.com/amanmcp-labs/memoryd/internal/datastore"
	"github.com/amanmcp-labs/memoryd/internal/equeue"
)

// Writeback implements equeue.Writeback, persisting computed embeddings back
// onto the record a queued Request.Target named (spec.md §4.5).
type Writeback struct {
	store *datastore.Store
}

// NewWriteback constructs a Writeback over store.
func NewWriteback(store *datastore.Store) *Writeback {
	return &Writeback{store: store}
}

// WriteEmbedding dispatches on target.Table to the matching batch-update
// call. It is invoked fire-and-forget per request by equeue.Worker, so a
// single-item batch is always the shape it's called with.
func (w *Writeback) WriteEmbedding(ctx context.Context, target equeue.Target, vector []float32) error {
	switch target.Table {
	case "chunks":
		return w.store.BatchUpdateChunkEmbeddings(ctx, []string{target.ID}, [][]float32{vector})
	case "symbols":
		return w.store.BatchUpdateSymbolEmbeddings(ctx, []string{target.ID}, [][]float32{vector})
	case "memories":
		return w.store.BatchUpdateMemoryEmbeddings(ctx, []string{target.ID}, [][]float32{vector})
	default:
		return nil
	}
}
