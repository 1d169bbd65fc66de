package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwrk-planet/coop-relay/internal/domain"
)

// Journal persists session events. Implemented by postgres.JournalRepository.
type Journal interface {
	Append(ctx context.Context, ev domain.SessionEvent) error
}

// JournalQueue decouples the relay from journal latency: Publish never
// blocks, a full queue drops the event.
type JournalQueue struct {
	journal Journal
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	events  chan domain.SessionEvent
	done    chan struct{}
	dropped atomic.Int64
}

func NewJournalQueue(j Journal, size int) *JournalQueue {
	if size <= 0 {
		size = 1024
	}
	q := &JournalQueue{
		journal: j,
		timeout: 5 * time.Second,
		events:  make(chan domain.SessionEvent, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *JournalQueue) Publish(ev domain.SessionEvent) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}

	select {
	case q.events <- ev:
	default:
		if n := q.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("journal queue full, dropping events", "dropped", n)
		}
	}
}

func (q *JournalQueue) Dropped() int64 { return q.dropped.Load() }

// Close flushes queued events and stops the writer.
func (q *JournalQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *JournalQueue) run() {
	defer close(q.done)
	for ev := range q.events {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.journal.Append(ctx, ev); err != nil {
			slog.Warn("journal append failed", "kind", ev.Kind, "room", ev.Room, "err", err)
		}
		cancel()
	}
}
