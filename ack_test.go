package roomcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitWithAckReceivesReply(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, ta := admitSocket(t, ns)

	done := make(chan struct{})
	var reply []any
	var err error
	go func() {
		defer close(done)
		reply, err = a.EmitWithAck(context.Background(), "question", time.Second, "ready?")
	}()

	// Wait until the event packet with its correlation id is on the wire.
	var id int64
	require.Eventually(t, func() bool {
		for _, p := range ta.sentEvents(t) {
			if p.ID != nil {
				id = *p.ID
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	ta.receive(t, &Packet{
		Type:      PacketTypeAck,
		Namespace: "/",
		Data:      []any{"yes"},
		ID:        &id,
	})

	<-done
	require.NoError(t, err)
	assert.Equal(t, []any{"yes"}, reply)
}

func TestEmitWithAckTimesOut(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, _ := admitSocket(t, ns)

	const timeout = 100 * time.Millisecond
	start := time.Now()
	reply, err := a.EmitWithAck(context.Background(), "question", timeout)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrAckTimeout)
	assert.Nil(t, reply)
	assert.GreaterOrEqual(t, elapsed, timeout, "must not resolve before the deadline")
}

func TestAckResolvesAtMostOnce(t *testing.T) {
	t.Parallel()

	var c correlator
	id, ch := c.register()

	assert.True(t, c.resolve(id, []any{"first"}))
	assert.False(t, c.resolve(id, []any{"second"}), "duplicate reply is discarded")

	assert.Equal(t, []any{"first"}, <-ch)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second delivery: %v", extra)
	default:
	}
}

func TestAckUnknownCorrelationIsNoop(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	_, ta := admitSocket(t, ns)

	// A reply nobody is waiting for must be swallowed.
	id := int64(999)
	ta.receive(t, &Packet{
		Type:      PacketTypeAck,
		Namespace: "/",
		Data:      []any{"stray"},
		ID:        &id,
	})
}

func TestLateAckAfterTimeoutIsDiscarded(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, ta := admitSocket(t, ns)

	_, err := a.EmitWithAck(context.Background(), "question", 20*time.Millisecond)
	require.ErrorIs(t, err, ErrAckTimeout)

	events := ta.sentEvents(t)
	require.NotEmpty(t, events)
	var id int64
	for _, p := range events {
		if p.ID != nil {
			id = *p.ID
		}
	}

	// The entry was purged on timeout; the late reply is a silent no-op.
	ta.receive(t, &Packet{Type: PacketTypeAck, Namespace: "/", Data: []any{"late"}, ID: &id})
}

func TestEmitWithAckCancelledByContext(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, _ := admitSocket(t, ns)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := a.EmitWithAck(ctx, "question", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInboundEventAckReply(t *testing.T) {
	t.Parallel()

	ns := newTestNamespace(t, "/")
	a, ta := admitSocket(t, ns)

	got := make(chan AckFunc, 1)
	a.On("ping", func(args ...any) {
		reply, ok := args[len(args)-1].(AckFunc)
		if ok {
			got <- reply
		}
	})

	id := int64(7)
	ta.receive(t, &Packet{
		Type:      PacketTypeEvent,
		Namespace: "/",
		Data:      []any{"ping"},
		ID:        &id,
	})

	select {
	case reply := <-got:
		reply("pong")
		reply("pong again") // one-shot: second call is a no-op
	case <-time.After(time.Second):
		t.Fatal("handler never saw the ack function")
	}

	require.Eventually(t, func() bool {
		ta.mu.Lock()
		defer ta.mu.Unlock()
		acks := 0
		for _, frame := range ta.frames {
			p, err := DecodePacket(string(frame))
			if err == nil && p.Type == PacketTypeAck {
				acks++
			}
		}
		return acks == 1
	}, time.Second, time.Millisecond, "exactly one ack reply goes out")
}
