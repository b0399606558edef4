package worker

import (
	"context"
	"log/slog"
	"sync"

	audit "whitelist/pkg/platform/audit"
)

// Emitter delivers a single audit event.
type Emitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Worker moves audit delivery off the request path. Emit enqueues; Run drains
// the queue into the downstream emitter until its context ends, then flushes
// what is left. Events emitted after Run has stopped are delivered inline.
type Worker struct {
	next   Emitter
	inbox  chan queued
	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool
}

type queued struct {
	ctx   context.Context
	event audit.Event
}

func NewWorker(next Emitter, buffer int, logger *slog.Logger) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{next: next, inbox: make(chan queued, buffer), logger: logger}
}

// Emit enqueues event. When the buffer is full, or Run has already stopped,
// the event is delivered inline so nothing is silently lost.
func (w *Worker) Emit(ctx context.Context, event audit.Event) error {
	item := queued{ctx: context.WithoutCancel(ctx), event: event}
	if w.enqueue(item) {
		return nil
	}
	return w.next.Emit(item.ctx, event)
}

func (w *Worker) enqueue(item queued) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return false
	}
	select {
	case w.inbox <- item:
		return true
	default:
		w.logger.WarnContext(item.ctx, "audit buffer full, delivering inline", "action", item.event.Action)
		return false
	}
}

// Run delivers queued events until ctx ends. Nothing is enqueued once it
// starts shutting down, so the final drain sees every queued event.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.stopped = true
			w.mu.Unlock()
			w.drain()
			return nil
		case item := <-w.inbox:
			w.deliver(item)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case item := <-w.inbox:
			w.deliver(item)
		default:
			return
		}
	}
}

func (w *Worker) deliver(item queued) {
	if err := w.next.Emit(item.ctx, item.event); err != nil {
		w.logger.ErrorContext(item.ctx, "audit delivery failed", "error", err, "action", item.event.Action)
	}
}
