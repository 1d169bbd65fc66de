package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/coop-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (c *countingRunner) Run(ctx context.Context, _ *Room) {
	c.started.Add(1)
	<-ctx.Done()
	c.stopped.Add(1)
}

func TestDirectory_FirstJoinerIsHost(t *testing.T) {
	d := NewDirectory(nil)

	r, isHost := d.Join("r1", "a", &fakeConn{}, "Alice", nil)
	assert.True(t, isHost)

	r2, isHost := d.Join("r1", "b", &fakeConn{}, "Bob", nil)
	assert.False(t, isHost)
	assert.Same(t, r, r2)

	host, ok := r.CurrentHost()
	require.True(t, ok)
	assert.Equal(t, domain.ClientID("a"), host)
	assert.Equal(t, 2, r.Len())
	assertSingleHost(t, r)
}

func TestDirectory_GetOrCreateIsLazyAndStable(t *testing.T) {
	d := NewDirectory(nil)

	_, ok := d.Get("lobby")
	assert.False(t, ok)

	a := d.GetOrCreate("lobby")
	b := d.GetOrCreate("lobby")
	assert.Same(t, a, b)
	assert.Zero(t, a.Len())

	_, ok = a.CurrentHost()
	assert.False(t, ok, "empty room has no host")
}

func TestDirectory_LeaveHostPromotesEarliestJoined(t *testing.T) {
	d := NewDirectory(nil)
	r, _ := d.Join("r1", "a", &fakeConn{}, "A", nil)
	d.Join("r1", "b", &fakeConn{}, "B", nil)
	d.Join("r1", "c", &fakeConn{}, "C", nil)

	res := d.Leave(r, "a", nil)
	assert.Equal(t, LeaveResult{Removed: true, WasHost: true, NewHost: "b"}, res)
	assertSingleHost(t, r)

	res = d.Leave(r, "c", nil)
	assert.Equal(t, LeaveResult{Removed: true}, res, "non-host leave does not elect")

	host, _ := r.CurrentHost()
	assert.Equal(t, domain.ClientID("b"), host)
}

func TestDirectory_LeaveUnknownMember(t *testing.T) {
	d := NewDirectory(nil)
	r, _ := d.Join("r1", "a", &fakeConn{}, "A", nil)

	res := d.Leave(r, "zzz", func(*Room, LeaveResult) { t.Fatal("callback must not run") })
	assert.False(t, res.Removed)
	assert.Equal(t, 1, r.Len())
}

func TestDirectory_LastLeaveTearsDownRoomAndScheduler(t *testing.T) {
	runner := &countingRunner{}
	d := NewDirectory(runner)

	r, _ := d.Join("r1", "a", &fakeConn{}, "A", nil)
	d.Join("r1", "b", &fakeConn{}, "B", nil)
	require.Eventually(t, func() bool { return runner.started.Load() == 1 }, time.Second, time.Millisecond)

	r.mu.RLock()
	done := r.done
	r.mu.RUnlock()

	d.Leave(r, "a", nil)
	res := d.Leave(r, "b", nil)
	assert.True(t, res.NowEmpty)

	_, ok := d.Get("r1")
	assert.False(t, ok, "empty room is removed")
	assert.Zero(t, d.Len())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler was not cancelled")
	}
	assert.Equal(t, int32(1), runner.started.Load(), "one scheduler per room")
	assert.Equal(t, int32(1), runner.stopped.Load())
}

func TestDirectory_RejoinAfterTeardownCreatesFreshRoom(t *testing.T) {
	runner := &countingRunner{}
	d := NewDirectory(runner)

	r1, _ := d.Join("r1", "a", &fakeConn{}, "A", nil)
	d.Leave(r1, "a", nil)

	r2, isHost := d.Join("r1", "b", &fakeConn{}, "B", nil)
	assert.NotSame(t, r1, r2)
	assert.True(t, isHost)
	require.Eventually(t, func() bool { return runner.started.Load() == 2 }, time.Second, time.Millisecond)

	d.Close()
	assert.Equal(t, int32(2), runner.stopped.Load())
}

func TestDirectory_ConcurrentJoinLeaveKeepsInvariants(t *testing.T) {
	runner := &countingRunner{}
	d := NewDirectory(runner)

	const workers = 16
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				id := domain.ClientID(fmt.Sprintf("c%d-%d", w, i))
				r, _ := d.Join("shared", id, &fakeConn{}, "P", nil)
				assertSingleHost(t, r)
				d.Leave(r, id, nil)
				assertSingleHost(t, r)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, d.Len())
	d.Close()
	assert.Equal(t, runner.started.Load(), runner.stopped.Load(), "every scheduler cancelled")
}

func TestDirectory_CloseStopsSchedulers(t *testing.T) {
	runner := &countingRunner{}
	d := NewDirectory(runner)
	d.Join("a", "1", &fakeConn{}, "A", nil)
	d.Join("b", "2", &fakeConn{}, "B", nil)
	require.Eventually(t, func() bool { return runner.started.Load() == 2 }, time.Second, time.Millisecond)

	d.Close()
	assert.Equal(t, int32(2), runner.stopped.Load())

	d.Join("c", "3", &fakeConn{}, "C", nil)
	assert.Equal(t, int32(2), runner.started.Load(), "no schedulers after Close")
}

func TestRoom_InfoListsMembersInJoinOrder(t *testing.T) {
	d := NewDirectory(nil)
	r, _ := d.Join("r1", "a", &fakeConn{}, "Alice", nil)
	d.Join("r1", "b", &fakeConn{}, "Bob", nil)

	info := r.Info()
	assert.Equal(t, "r1", info.Name)
	assert.Equal(t, domain.ClientID("a"), info.HostID)
	assert.Equal(t, []domain.MemberInfo{
		{ID: "a", Name: "Alice", IsHost: true},
		{ID: "b", Name: "Bob"},
	}, info.Members)
}

func TestRoom_BroadcastSkipsClosedConnections(t *testing.T) {
	d := NewDirectory(nil)
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	r, _ := d.Join("r1", "a", a, "A", nil)
	d.Join("r1", "b", b, "B", nil)
	d.Join("r1", "c", c, "C", nil)
	b.close()

	r.mu.RLock()
	sent := r.broadcastLocked([]byte(`{"type":"x"}`), "")
	r.mu.RUnlock()

	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, a.count("x"))
	assert.Equal(t, 1, c.count("x"))
}
