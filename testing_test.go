package roomcast

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roomcast/roomcast/engineio"
)

// fakeTransport is an in-memory Transport capturing outbound frames and
// feeding inbound ones straight into the socket's message handler.
type fakeTransport struct {
	id string

	mu        sync.Mutex
	frames    [][]byte
	closed    bool
	full      bool
	onMessage func([]byte)
	onClose   func(string)
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{id: id}
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return engineio.ErrSessionClosed
	}
	if t.full {
		return engineio.ErrSlowClient
	}
	t.frames = append(t.frames, data)
	return nil
}

func (t *fakeTransport) Close(reason string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	onClose := t.onClose
	t.mu.Unlock()

	if onClose != nil {
		onClose(reason)
	}
}

func (t *fakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

func (t *fakeTransport) OnClose(fn func(string)) {
	t.mu.Lock()
	t.onClose = fn
	t.mu.Unlock()
}

// receive feeds an inbound protocol packet to the socket.
func (t *fakeTransport) receive(tb testing.TB, p *Packet) {
	tb.Helper()
	encoded, err := p.Encode()
	require.NoError(tb, err)

	t.mu.Lock()
	handler := t.onMessage
	t.mu.Unlock()
	require.NotNil(tb, handler, "no message handler installed")
	handler([]byte(encoded))
}

// sentEvents decodes the captured frames and returns the event packets.
func (t *fakeTransport) sentEvents(tb testing.TB) []*Packet {
	tb.Helper()

	t.mu.Lock()
	frames := make([][]byte, len(t.frames))
	copy(frames, t.frames)
	t.mu.Unlock()

	var events []*Packet
	for _, frame := range frames {
		p, err := DecodePacket(string(frame))
		require.NoError(tb, err)
		if p.Type == PacketTypeEvent {
			events = append(events, p)
		}
	}
	return events
}

// eventNames returns the names of the captured event packets, in send order.
func (t *fakeTransport) eventNames(tb testing.TB) []string {
	tb.Helper()

	var names []string
	for _, p := range t.sentEvents(tb) {
		name, _, ok := p.eventBody()
		require.True(tb, ok)
		names = append(names, name)
	}
	return names
}

var transportSeq atomic.Int64

// admitSocket admits a fresh fake transport into the namespace.
func admitSocket(tb testing.TB, ns *Namespace) (*Socket, *fakeTransport) {
	tb.Helper()

	transport := newFakeTransport("sock-" + strconv.FormatInt(transportSeq.Add(1), 10))
	sock, err := ns.admit(context.Background(), transport, nil)
	require.NoError(tb, err)
	return sock, transport
}
