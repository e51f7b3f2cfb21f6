package engineio

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Close reasons reported to the OnClose handler.
const (
	CloseReasonServerShutdown = "server shutdown"
	CloseReasonClientClose    = "client closed"
	CloseReasonPingTimeout    = "ping timeout"
	CloseReasonReadError      = "read error"
	CloseReasonWriteError     = "write error"
)

// Session is one live transport connection. It exclusively owns the outbound
// queue: all delivery to the peer goes through Send, which preserves enqueue
// order. The session drives the ping/pong liveness timers and reports closure
// exactly once.
type Session struct {
	id       string
	conn     *websocket.Conn
	server   *Server
	outgoing chan *Packet

	timerMu     sync.Mutex
	pingTimer   *time.Timer
	pingTimeout *time.Timer

	closeOnce sync.Once
	closed    chan struct{}

	mu           sync.RWMutex
	onMessage    func([]byte)
	onClose      []func(string)
	lastActivity time.Time
}

// NewSession creates a session bound to an upgraded connection. The session
// is inert until Start is called.
func NewSession(id string, conn *websocket.Conn, server *Server) *Session {
	return &Session{
		id:           id,
		conn:         conn,
		server:       server,
		outgoing:     make(chan *Packet, server.config.SendQueueSize),
		closed:       make(chan struct{}),
		lastActivity: time.Now(),
	}
}

// ID returns the session identifier assigned at upgrade.
func (s *Session) ID() string {
	return s.id
}

// Start launches the read/write loops and schedules the first ping.
func (s *Session) Start() {
	go s.writeLoop()
	go s.readLoop()
	s.schedulePing()
}

// Send enqueues a packet for delivery. It never blocks: a closed session
// returns ErrSessionClosed and a full queue returns ErrSlowClient, leaving
// the caller to decide whether the peer is worth keeping.
func (s *Session) Send(packet *Packet) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	select {
	case s.outgoing <- packet:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	default:
		return ErrSlowClient
	}
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Close tears the session down. Idempotent; the close handler fires once
// with the first reason given. The write loop owns the connection and
// performs the actual teardown, flushing anything queued before the close.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.timerMu.Lock()
		if s.pingTimer != nil {
			s.pingTimer.Stop()
		}
		if s.pingTimeout != nil {
			s.pingTimeout.Stop()
		}
		s.timerMu.Unlock()

		s.mu.RLock()
		handlers := s.onClose
		s.mu.RUnlock()

		for _, handler := range handlers {
			handler(reason)
		}
	})
}

// OnMessage sets the handler invoked for every message packet payload.
func (s *Session) OnMessage(fn func([]byte)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

// OnClose adds a handler invoked once when the session closes. Handlers run
// in registration order.
func (s *Session) OnClose(fn func(string)) {
	s.mu.Lock()
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// LastActivity returns the time of the most recent inbound frame.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) readLoop() {
	defer s.Close(CloseReasonReadError)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()

		packet, err := DecodePacket(data)
		if err != nil {
			continue
		}

		s.handlePacket(packet)
	}
}

// writeLoop is the sole writer on the connection. On close it drains the
// queue so frames enqueued just before Close still reach the peer, says
// goodbye, and releases the connection.
func (s *Session) writeLoop() {
	defer s.conn.Close()

	for {
		select {
		case packet := <-s.outgoing:
			if err := s.conn.WriteMessage(websocket.TextMessage, packet.Encode()); err != nil {
				s.Close(CloseReasonWriteError)
				return
			}
		case <-s.closed:
			s.flushOutgoing()
			goodbye := &Packet{Type: PacketTypeClose}
			_ = s.conn.WriteMessage(websocket.TextMessage, goodbye.Encode())
			return
		}
	}
}

func (s *Session) flushOutgoing() {
	for {
		select {
		case packet := <-s.outgoing:
			if s.conn.WriteMessage(websocket.TextMessage, packet.Encode()) != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) handlePacket(packet *Packet) {
	switch packet.Type {
	case PacketTypePing:
		_ = s.Send(&Packet{Type: PacketTypePong})
	case PacketTypePong:
		s.timerMu.Lock()
		if s.pingTimeout != nil {
			s.pingTimeout.Stop()
		}
		s.timerMu.Unlock()
		s.schedulePing()
	case PacketTypeMessage:
		s.mu.RLock()
		handler := s.onMessage
		s.mu.RUnlock()
		if handler != nil {
			handler(packet.Data)
		}
	case PacketTypeClose:
		s.Close(CloseReasonClientClose)
	}
}

func (s *Session) schedulePing() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.Closed() {
		return
	}

	s.pingTimer = time.AfterFunc(s.server.config.PingInterval, func() {
		_ = s.Send(&Packet{Type: PacketTypePing})
		s.schedulePingTimeout()
	})
}

func (s *Session) schedulePingTimeout() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	s.pingTimeout = time.AfterFunc(s.server.config.PingTimeout, func() {
		s.Close(CloseReasonPingTimeout)
	})
}
