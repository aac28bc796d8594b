package cmd

import (
	"context"

	"github.com/amanmcp-labs/memoryd/internal/datastore"
	"github.com/amanmcp-labs/memoryd/internal/equeue"
)

// storeComponent adapts *datastore.Store to lifecycle.Component: it has no
// in-flight requests of its own to drain, but must flush/close last so the
// embedding queue's writebacks land before the database closes.
type storeComponent struct {
	store *datastore.Store
}

func (c *storeComponent) Name() string                        { return "datastore" }
func (c *storeComponent) Drain(context.Context) error          { return nil }
func (c *storeComponent) Flush(context.Context) error          { return nil }
func (c *storeComponent) ForceStop() error                     { return c.store.Close() }
func (c *storeComponent) HealthCheck(ctx context.Context) error { return c.store.HealthCheck(ctx) }

// queueComponent adapts the embedding queue/worker pair to lifecycle.Component:
// Drain closes the queue, so further enqueues fail, and waits for the worker
// to finish its in-flight batch and drain whatever remains queued.
type queueComponent struct {
	queue  *equeue.Queue
	cancel context.CancelFunc
	done   <-chan struct{}
}

func (c *queueComponent) Name() string { return "embed_queue" }

func (c *queueComponent) Drain(ctx context.Context) error {
	c.queue.Close()
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return ctx.Err()
}

func (c *queueComponent) Flush(context.Context) error { return nil }

func (c *queueComponent) ForceStop() error {
	c.cancel()
	return nil
}

func (c *queueComponent) HealthCheck(context.Context) error { return nil }

// watcherComponent adapts the filesystem watcher to lifecycle.Component. It
// has no buffered work of its own: Watcher.Start already stops as soon as
// the context serve() runs it under is cancelled, so every phase is a
// prompt no-op by the time Shutdown runs.
type watcherComponent struct{}

func (watcherComponent) Name() string                    { return "watcher" }
func (watcherComponent) Drain(context.Context) error      { return nil }
func (watcherComponent) Flush(context.Context) error      { return nil }
func (watcherComponent) ForceStop() error                 { return nil }
func (watcherComponent) HealthCheck(context.Context) error { return nil }
