package roomcast

import (
	"context"
	"sync"
	"time"
)

// EventHandler handles a named event from the peer. When the peer requested
// an acknowledgment, the last argument is an AckFunc.
type EventHandler func(args ...any)

// AnyHandler observes every inbound event regardless of name. It is a
// listener layer only and takes no part in routing.
type AnyHandler func(event string, args ...any)

// AckFunc replies to an acknowledgment-expecting event from the peer.
type AckFunc func(args ...any)

// Socket is one logical client session inside a namespace. It lives in
// exactly one namespace for its lifetime, holds only room-name back-refs
// (the registry owns membership), and is destroyed in lockstep with its
// deregistration from every room.
type Socket struct {
	id        string
	transport Transport
	namespace *Namespace
	principal any

	roomsMu sync.RWMutex
	rooms   map[string]struct{}

	handlersMu  sync.RWMutex
	handlers    map[string][]EventHandler
	anyHandlers []AnyHandler

	acks correlator
	data sync.Map

	disconnectMu sync.RWMutex
	onDisconnect []func(reason string)
}

func newSocket(id string, transport Transport, ns *Namespace, principal any) *Socket {
	s := &Socket{
		id:        id,
		transport: transport,
		namespace: ns,
		principal: principal,
		rooms:     make(map[string]struct{}),
		handlers:  make(map[string][]EventHandler),
	}

	transport.OnMessage(s.handleMessage)
	transport.OnClose(s.handleClose)

	return s
}

// ID returns the process-unique socket identifier.
func (s *Socket) ID() string {
	return s.id
}

// Namespace returns the namespace this socket belongs to.
func (s *Socket) Namespace() *Namespace {
	return s.namespace
}

// Principal returns the opaque authenticated-principal handle attached
// during admission, or nil.
func (s *Socket) Principal() any {
	return s.principal
}

// Emit sends an event to this client.
func (s *Socket) Emit(event string, args ...any) error {
	return s.sendPacket(newEventPacket(s.namespace.name, event, args))
}

// EmitWithAck sends an event and waits for the client's acknowledgment. It
// returns the reply arguments, ErrAckTimeout when no reply arrives within
// timeout, or the context error on cancellation. A timeout of zero falls
// back to the namespace default.
func (s *Socket) EmitWithAck(ctx context.Context, event string, timeout time.Duration, args ...any) ([]any, error) {
	if timeout <= 0 {
		timeout = s.namespace.ackTimeout
	}

	id, ch := s.acks.register()

	packet := newEventPacket(s.namespace.name, event, args)
	packet.ID = &id

	if err := s.sendPacket(packet); err != nil {
		s.acks.purge(id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		s.acks.purge(id)
		return nil, ErrAckTimeout
	case <-ctx.Done():
		s.acks.purge(id)
		return nil, ctx.Err()
	}
}

// On registers a handler for a named event.
func (s *Socket) On(event string, handler EventHandler) {
	s.handlersMu.Lock()
	s.handlers[event] = append(s.handlers[event], handler)
	s.handlersMu.Unlock()
}

// Off removes all handlers for a named event.
func (s *Socket) Off(event string) {
	s.handlersMu.Lock()
	delete(s.handlers, event)
	s.handlersMu.Unlock()
}

// OnAny registers a handler observing every inbound event.
func (s *Socket) OnAny(handler AnyHandler) {
	s.handlersMu.Lock()
	s.anyHandlers = append(s.anyHandlers, handler)
	s.handlersMu.Unlock()
}

// Join adds the socket to a room in its namespace. Idempotent.
func (s *Socket) Join(room string) {
	s.roomsMu.Lock()
	s.rooms[room] = struct{}{}
	s.roomsMu.Unlock()

	s.namespace.registry.Join(s.id, room)
}

// Leave removes the socket from a room. Leaving a room the socket is not in
// is a no-op.
func (s *Socket) Leave(room string) {
	s.roomsMu.Lock()
	delete(s.rooms, room)
	s.roomsMu.Unlock()

	s.namespace.registry.Leave(s.id, room)
}

// Rooms returns the rooms the socket believes it is in.
func (s *Socket) Rooms() []string {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()

	out := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		out = append(out, room)
	}
	return out
}

// To returns a broadcast operator targeting rooms, with the sender included
// when it is itself a member.
func (s *Socket) To(rooms ...string) *BroadcastOperator {
	return s.namespace.To(rooms...)
}

// Broadcast returns a broadcast operator with this socket pre-excluded, the
// "everyone but me" idiom. Exclusion is carried explicitly in the operator's
// exclude set, never implied.
func (s *Socket) Broadcast() *BroadcastOperator {
	return s.namespace.To().Except(s.id)
}

// Set stores arbitrary application data on the socket.
func (s *Socket) Set(key string, value any) {
	s.data.Store(key, value)
}

// Get retrieves application data from the socket.
func (s *Socket) Get(key string) (any, bool) {
	return s.data.Load(key)
}

// OnDisconnect registers a handler invoked once the socket has been fully
// deregistered.
func (s *Socket) OnDisconnect(handler func(reason string)) {
	s.disconnectMu.Lock()
	s.onDisconnect = append(s.onDisconnect, handler)
	s.disconnectMu.Unlock()
}

// Disconnect closes the socket from the server side.
func (s *Socket) Disconnect() {
	s.transport.Close("server disconnect")
}

func (s *Socket) sendPacket(packet *Packet) error {
	encoded, err := packet.Encode()
	if err != nil {
		return err
	}
	return s.sendEncoded(encoded)
}

func (s *Socket) handleMessage(data []byte) {
	packet, err := DecodePacket(string(data))
	if err != nil {
		return
	}

	switch packet.Type {
	case PacketTypeEvent:
		s.handleEvent(packet)
	case PacketTypeAck:
		s.handleAck(packet)
	case PacketTypeDisconnect:
		s.Disconnect()
	}
}

func (s *Socket) handleEvent(packet *Packet) {
	event, args, ok := packet.eventBody()
	if !ok {
		return
	}

	// Peer asked for an acknowledgment: hand the handlers a one-shot reply
	// function carrying the correlation id back.
	if packet.ID != nil {
		id := *packet.ID
		var once sync.Once
		reply := AckFunc(func(ackArgs ...any) {
			once.Do(func() {
				ack := &Packet{
					Type:      PacketTypeAck,
					Namespace: s.namespace.name,
					Data:      ackArgs,
					ID:        &id,
				}
				_ = s.sendPacket(ack)
			})
		})
		args = append(args, reply)
	}

	s.handlersMu.RLock()
	handlers := s.handlers[event]
	anyHandlers := s.anyHandlers
	s.handlersMu.RUnlock()

	for _, handler := range anyHandlers {
		go handler(event, args...)
	}
	for _, handler := range handlers {
		go handler(args...)
	}
}

func (s *Socket) handleAck(packet *Packet) {
	if packet.ID == nil {
		return
	}

	var args []any
	if body, ok := packet.Data.([]any); ok {
		args = body
	}

	// Unknown or already-consumed correlation ids fall through silently.
	s.acks.resolve(*packet.ID, args)
}

// handleClose deregisters the socket. Registry removal happens before any
// user-visible disconnect notification so observers never see a half-removed
// socket.
func (s *Socket) handleClose(reason string) {
	s.roomsMu.Lock()
	s.rooms = make(map[string]struct{})
	s.roomsMu.Unlock()

	s.namespace.removeSocket(s.id)

	s.disconnectMu.RLock()
	handlers := s.onDisconnect
	s.disconnectMu.RUnlock()

	for _, handler := range handlers {
		go handler(reason)
	}

	s.namespace.notifyDisconnected(s, reason)
}
