package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CoalescesRapidEventsIntoOneEmission(t *testing.T) {
	var mu sync.Mutex
	var calls [][]string
	d := newDebouncer(func(paths []string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, paths)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.run(ctx)

	d.add("a.go")
	time.Sleep(10 * time.Millisecond)
	d.add("b.go")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, 4*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, calls[0])
}

func TestDebouncer_ResetsWindowOnNewEvent(t *testing.T) {
	var mu sync.Mutex
	var calls [][]string
	d := newDebouncer(func(paths []string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, paths)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.run(ctx)

	d.add("a.go")
	// Keep refreshing the window for longer than debounceWindow.
	deadline := time.Now().Add(debounceWindow + 500*time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		d.add("a.go")
	}

	mu.Lock()
	emittedDuringChurn := len(calls)
	mu.Unlock()
	assert.Equal(t, 0, emittedDuringChurn)
}

func TestDebouncer_CancelDrainsPending(t *testing.T) {
	var mu sync.Mutex
	var calls [][]string
	d := newDebouncer(func(paths []string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, paths)
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.add("a.go")

	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"a.go"}, calls[0])
}
