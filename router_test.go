package roomcast

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNamespace(t *testing.T, name string) *Namespace {
	t.Helper()
	return newNamespace(name, nil, time.Second, nil)
}

func TestRouterExcludesSender(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, ta := admitSocket(t, ns)
	_, tb := admitSocket(t, ns)
	_, tc := admitSocket(t, ns)

	for _, s := range ns.Sockets() {
		s.Join("room1")
	}

	report := ns.To("room1").Except(a.ID()).Emit("news", "hello")

	assert.Equal(t, 2, report.Resolved)
	assert.Equal(t, 2, report.Delivered)
	assert.Empty(t, report.Missed)

	assert.NotContains(t, ta.eventNames(t), "news")
	assert.Contains(t, tb.eventNames(t), "news")
	assert.Contains(t, tc.eventNames(t), "news")
}

func TestRouterExcludingNonMemberIsHarmless(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, _ := admitSocket(t, ns)
	b, tb := admitSocket(t, ns)

	b.Join("room1")

	// a is not in room1; excluding it changes nothing.
	report := ns.To("room1").Except(a.ID()).Emit("news")

	assert.Equal(t, 1, report.Delivered)
	assert.Contains(t, tb.eventNames(t), "news")
}

func TestRouterBroadcastToAllInNamespace(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/chat")
	_, t1 := admitSocket(t, ns)
	_, t2 := admitSocket(t, ns)
	_, t3 := admitSocket(t, ns)

	report := ns.Emit("announce", "everyone")

	assert.Equal(t, 3, report.Resolved)
	assert.Equal(t, 3, report.Delivered)
	for _, transport := range []*fakeTransport{t1, t2, t3} {
		names := transport.eventNames(t)
		count := 0
		for _, n := range names {
			if n == "announce" {
				count++
			}
		}
		assert.Equal(t, 1, count, "each socket receives exactly one copy")
	}
}

func TestRouterDeduplicatesAcrossTargetedRooms(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, ta := admitSocket(t, ns)

	a.Join("room1")
	a.Join("room2")

	report := ns.To("room1", "room2").Emit("dup")

	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, []string{"dup"}, ta.eventNames(t))
}

func TestRouterCountsDeadTargetsAsMisses(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, ta := admitSocket(t, ns)
	b, tb := admitSocket(t, ns)

	a.Join("room1")
	b.Join("room1")

	// Mark a's transport dead without running the close path, so the
	// registry snapshot still resolves it.
	ta.mu.Lock()
	ta.closed = true
	ta.mu.Unlock()

	report := ns.To("room1").Emit("news")

	assert.Equal(t, 2, report.Resolved)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, []string{a.ID()}, report.Missed)
	assert.Contains(t, tb.eventNames(t), "news")
}

func TestRouterPerConnectionFIFO(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, ta := admitSocket(t, ns)
	a.Join("room1")

	const n = 50
	for i := range n {
		ns.To("room1").Emit("seq", i)
	}

	events := ta.sentEvents(t)
	require.Len(t, events, n)
	for i, p := range events {
		_, args, ok := p.eventBody()
		require.True(t, ok)
		require.Len(t, args, 1)
		// JSON round-trips numbers as float64.
		assert.Equal(t, float64(i), args[0], "event %d out of order", i)
	}
}

func TestRouterTargetsSingleSocketViaIDRoom(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, ta := admitSocket(t, ns)
	_, tb := admitSocket(t, ns)

	report := ns.To(a.ID()).Emit("direct", "just you")

	assert.Equal(t, 1, report.Delivered)
	assert.Contains(t, ta.eventNames(t), "direct")
	assert.NotContains(t, tb.eventNames(t), "direct")
}

func TestSocketBroadcastExcludesSelf(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, ta := admitSocket(t, ns)
	_, tb := admitSocket(t, ns)

	a.Join("room1")
	for _, s := range ns.Sockets() {
		s.Join("room1")
	}

	a.Broadcast().To("room1").Emit("hi")

	assert.NotContains(t, ta.eventNames(t), "hi")
	assert.Contains(t, tb.eventNames(t), "hi")
}

func TestSocketDisconnectLeavesEveryRoom(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, ta := admitSocket(t, ns)
	b, tb := admitSocket(t, ns)

	a.Join("room1")
	a.Join("room2")
	b.Join("room1")

	ta.Close("client closed")

	assert.Empty(t, ns.registry.RoomsOf(a.ID()))
	assert.ElementsMatch(t, []string{b.ID()}, ns.registry.MembersOf("room1"))
	_, ok := ns.GetSocket(a.ID())
	assert.False(t, ok)

	// Subsequent broadcast reaches only the survivor.
	report := ns.To("room1").Emit("after")
	assert.Equal(t, 1, report.Delivered)
	assert.Contains(t, tb.eventNames(t), "after")
}

func TestRouterManySocketsStress(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	transports := make([]*fakeTransport, 0, 30)
	for i := 0; i < 30; i++ {
		s, tr := admitSocket(t, ns)
		s.Join("big-" + strconv.Itoa(i%3))
		transports = append(transports, tr)
	}

	report := ns.To("big-0", "big-1", "big-2").Emit("blast")
	assert.Equal(t, 30, report.Delivered)
	for _, tr := range transports {
		assert.Contains(t, tr.eventNames(t), "blast")
	}
}
