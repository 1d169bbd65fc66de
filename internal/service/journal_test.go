package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cwrk-planet/coop-relay/internal/domain"

	"github.com/stretchr/testify/assert"
)

type memJournal struct {
	mu     sync.Mutex
	events []domain.SessionEvent
	gate   chan struct{}
	err    error
}

func (m *memJournal) Append(ctx context.Context, ev domain.SessionEvent) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func (m *memJournal) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestJournalQueue_CloseFlushes(t *testing.T) {
	j := &memJournal{}
	q := NewJournalQueue(j, 16)

	for range 10 {
		q.Publish(domain.SessionEvent{Kind: domain.EventJoin, Room: "r1"})
	}
	q.Close()

	assert.Equal(t, 10, j.len())
	assert.Zero(t, q.Dropped())

	q.Publish(domain.SessionEvent{Kind: domain.EventLeave})
	q.Close()
	assert.Equal(t, 10, j.len(), "publish after close is ignored")
}

func TestJournalQueue_DropsWhenFull(t *testing.T) {
	j := &memJournal{gate: make(chan struct{})}
	q := NewJournalQueue(j, 2)

	// writer blocks on the first event, two more fill the buffer
	for range 10 {
		q.Publish(domain.SessionEvent{Kind: domain.EventJoin})
	}
	assert.GreaterOrEqual(t, q.Dropped(), int64(7))

	close(j.gate)
	q.Close()
	assert.Equal(t, int64(10), q.Dropped()+int64(j.len()))
}

func TestJournalQueue_AppendErrorsDoNotStopWriter(t *testing.T) {
	j := &memJournal{err: errors.New("db down")}
	q := NewJournalQueue(j, 4)

	q.Publish(domain.SessionEvent{Kind: domain.EventJoin})
	q.Publish(domain.SessionEvent{Kind: domain.EventLeave})
	q.Close()

	assert.Equal(t, 2, j.len())
}
