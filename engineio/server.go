// Package engineio implements the transport layer: WebSocket session
// management, the open handshake, and ping/pong liveness supervision.
// The protocol layer above it only sees opaque message payloads.
package engineio

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrSessionClosed = errors.New("engineio: session closed")
	ErrSlowClient    = errors.New("engineio: slow client, send queue full")
)

// Config holds transport configuration.
type Config struct {
	PingInterval  time.Duration
	PingTimeout   time.Duration
	MaxPayload    int
	SendQueueSize int

	// CheckOrigin validates the request origin during the upgrade. Nil
	// permits every origin.
	CheckOrigin func(*http.Request) bool
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() *Config {
	return &Config{
		PingInterval:  25 * time.Second,
		PingTimeout:   20 * time.Second,
		MaxPayload:    1 << 20,
		SendQueueSize: 256,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.PingInterval <= 0 {
		out.PingInterval = 25 * time.Second
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 20 * time.Second
	}
	if out.MaxPayload <= 0 {
		out.MaxPayload = 1 << 20
	}
	if out.SendQueueSize <= 0 {
		out.SendQueueSize = 256
	}
	return &out
}

// Server upgrades HTTP requests to WebSocket sessions and tracks them by id.
type Server struct {
	config    *Config
	upgrader  websocket.Upgrader
	log       *slog.Logger
	sessions  sync.Map
	onConnect func(*Session)
}

// NewServer creates a transport server. A nil config or logger selects
// defaults.
func NewServer(config *Config, log *slog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.withDefaults()
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Server{
		config: config,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeHTTP upgrades the request and starts a session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "only websocket transport is supported", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(int64(s.config.MaxPayload))

	sid := generateSID()
	session := NewSession(sid, conn, s)
	s.sessions.Store(sid, session)

	handshake, err := EncodeHandshake(sid,
		int(s.config.PingInterval.Milliseconds()),
		int(s.config.PingTimeout.Milliseconds()),
		s.config.MaxPayload,
	)
	if err != nil {
		_ = conn.Close()
		s.sessions.Delete(sid)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, handshake); err != nil {
		_ = conn.Close()
		s.sessions.Delete(sid)
		return
	}

	session.OnClose(func(reason string) {
		s.sessions.Delete(sid)
		s.log.Debug("session closed", "sid", sid, "reason", reason)
	})

	// Handlers must be in place before the read loop starts, or a fast
	// client's first packet races their installation.
	if s.onConnect != nil {
		s.onConnect(session)
	}

	session.Start()
}

// OnConnect sets the handler invoked for each new session, after the
// handshake has been written.
func (s *Server) OnConnect(fn func(*Session)) {
	s.onConnect = fn
}

// GetSession retrieves a session by id.
func (s *Server) GetSession(sid string) (*Session, bool) {
	val, ok := s.sessions.Load(sid)
	if !ok {
		return nil, false
	}
	return val.(*Session), true
}

// Close shuts down every live session.
func (s *Server) Close() {
	s.sessions.Range(func(_, value any) bool {
		value.(*Session).Close(CloseReasonServerShutdown)
		return true
	})
}

func generateSID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
