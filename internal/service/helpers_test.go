package service

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/cwrk-planet/coop-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   [][]byte
	closed bool
}

func (f *fakeConn) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return domain.ErrConnClosed
	}
	f.msgs = append(f.msgs, append([]byte(nil), p...))
	return nil
}

func (f *fakeConn) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.msgs = nil
	f.mu.Unlock()
}

func (f *fakeConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]any, 0, len(f.msgs))
	for _, raw := range f.msgs {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range f.decoded(t) {
		out = append(out, m["type"].(string))
	}
	return out
}

func (f *fakeConn) count(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, raw := range f.msgs {
		var m struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &m) == nil && m.Type == typ {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (p *recordingPublisher) Publish(ev domain.SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

// assertSingleHost проверяет инвариант: пустая комната или ровно один хост.
// Без FailNow, чтобы можно было звать из горутин.
func assertSingleHost(t *testing.T, r *Room) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()

	hosts := 0
	for _, m := range r.members {
		if m.isHost {
			hosts++
		}
	}
	if len(r.members) == 0 {
		assert.Zero(t, hosts)
		return
	}
	assert.Equal(t, 1, hosts, "room %q has %d hosts", r.name, hosts)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
