package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "whitelist/pkg/platform/audit"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestWorker_DeliversAsynchronously(t *testing.T) {
	next := &recordingEmitter{}
	w := NewWorker(next, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	require.NoError(t, w.Emit(context.Background(), audit.Event{Action: string(audit.EventMemberAdmitted)}))
	assert.Eventually(t, func() bool { return next.len() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestWorker_DrainsOnShutdown(t *testing.T) {
	next := &recordingEmitter{}
	w := NewWorker(next, 100, nil)

	for range 10 {
		require.NoError(t, w.Emit(context.Background(), audit.Event{Action: string(audit.EventMemberAdmitted)}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.Equal(t, 10, next.len())
}

func TestWorker_FullBufferDeliversInline(t *testing.T) {
	next := &recordingEmitter{}
	w := NewWorker(next, 1, nil)

	require.NoError(t, w.Emit(context.Background(), audit.Event{Action: "queued"}))
	require.NoError(t, w.Emit(context.Background(), audit.Event{Action: "inline"}))

	require.Equal(t, 1, next.len())
	assert.Equal(t, "inline", next.events[0].Action)
}

func TestWorker_EmitAfterStopDeliversInline(t *testing.T) {
	next := &recordingEmitter{}
	w := NewWorker(next, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	require.NoError(t, w.Emit(context.Background(), audit.Event{Action: string(audit.EventMemberAdmitted)}))
	assert.Equal(t, 1, next.len())
}

func TestWorker_ConcurrentEmitsDuringShutdownAreDelivered(t *testing.T) {
	next := &recordingEmitter{}
	w := NewWorker(next, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i == 25 {
				cancel()
			}
			_ = w.Emit(context.Background(), audit.Event{Action: string(audit.EventMemberAdmitted)})
		}()
	}
	wg.Wait()
	<-done

	assert.Equal(t, 50, next.len())
}
