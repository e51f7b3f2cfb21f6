package roomcast

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/roomcast/roomcast/engineio"
)

// Server is the engine entry point. It owns the namespace table, drives
// admission for new transport sessions, and implements http.Handler for the
// transport endpoint.
//
// The namespace table is explicit, injected state: tests construct isolated
// servers rather than sharing a process-wide singleton.
type Server struct {
	eio    *engineio.Server
	config *Config
	log    *slog.Logger

	nsMu       sync.RWMutex
	namespaces map[string]*Namespace
	factory    AdapterFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewServer creates a server. A nil config selects defaults; a nil logger
// discards.
func NewServer(config *Config, log *slog.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		config:     config,
		log:        log,
		namespaces: make(map[string]*Namespace),
		closed:     make(chan struct{}),
	}

	s.eio = engineio.NewServer(&engineio.Config{
		PingInterval:  config.PingInterval,
		PingTimeout:   config.PingTimeout,
		MaxPayload:    config.MaxPayload,
		SendQueueSize: config.SendQueueSize,
		CheckOrigin:   config.CheckOrigin,
	}, log)

	s.Of("/")
	s.eio.OnConnect(s.handleSession)

	return s
}

// Of returns the namespace for name, creating it on first reference.
// Namespaces are never destroyed while the server lives.
func (s *Server) Of(name string) *Namespace {
	if name == "" {
		name = "/"
	}

	s.nsMu.RLock()
	ns, exists := s.namespaces[name]
	s.nsMu.RUnlock()
	if exists {
		return ns
	}

	s.nsMu.Lock()
	defer s.nsMu.Unlock()

	if ns, exists := s.namespaces[name]; exists {
		return ns
	}

	ns = newNamespace(name, s, s.config.AckTimeout, s.log)
	s.namespaces[name] = ns

	if s.factory != nil {
		if adapter, err := s.factory(ns); err == nil {
			ns.SetAdapter(adapter)
		} else {
			s.log.Warn("adapter setup failed, namespace is local-only",
				"namespace", name, "error", err)
		}
	}

	return ns
}

// SetAdapterFactory installs a scale-out adapter factory and applies it to
// every existing namespace. Future namespaces get an adapter on creation.
func (s *Server) SetAdapterFactory(factory AdapterFactory) error {
	s.nsMu.Lock()
	s.factory = factory
	existing := make([]*Namespace, 0, len(s.namespaces))
	for _, ns := range s.namespaces {
		existing = append(existing, ns)
	}
	s.nsMu.Unlock()

	for _, ns := range existing {
		adapter, err := factory(ns)
		if err != nil {
			return err
		}
		ns.SetAdapter(adapter)
	}
	return nil
}

// UseRedisBackplane wires a Redis pub/sub backplane into every namespace,
// sharing one origin-process identifier across them.
func (s *Server) UseRedisBackplane(ctx context.Context, client redis.UniversalClient, opts ...RedisAdapterOption) error {
	return s.SetAdapterFactory(func(ns *Namespace) (Adapter, error) {
		nsOpts := append([]RedisAdapterOption{WithAdapterLogger(s.log)}, opts...)
		return NewRedisAdapter(ctx, client, ns, nsOpts...)
	})
}

// Use appends an admission middleware to the default namespace.
func (s *Server) Use(mw Middleware) {
	s.Of("/").Use(mw)
}

// OnConnect registers a connection handler on the default namespace.
func (s *Server) OnConnect(handler func(*Socket)) {
	s.Of("/").OnConnect(handler)
}

// Emit broadcasts to every socket in the default namespace.
func (s *Server) Emit(event string, args ...any) Report {
	return s.Of("/").Emit(event, args...)
}

// To returns a broadcast operator on the default namespace.
func (s *Server) To(rooms ...string) *BroadcastOperator {
	return s.Of("/").To(rooms...)
}

// ServeHTTP serves the transport endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.closed:
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	default:
	}

	if !strings.HasPrefix(r.URL.Path, s.config.Path) {
		http.NotFound(w, r)
		return
	}

	s.eio.ServeHTTP(w, r)
}

// Close shuts down the transport, every session, and every adapter.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.eio.Close()

		s.nsMu.RLock()
		defer s.nsMu.RUnlock()
		for _, ns := range s.namespaces {
			if cerr := ns.closeAdapter(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// handleSession parks a fresh transport session until its connect packet
// names a namespace, then runs admission. The session stays un-admitted, and
// untracked by any registry, until the middleware chain passes.
func (s *Server) handleSession(session *engineio.Session) {
	session.OnMessage(func(data []byte) {
		packet, err := DecodePacket(string(data))
		if err != nil || packet.Type != PacketTypeConnect {
			return
		}

		// Admission may suspend on middleware I/O; keep it off the
		// transport's read loop.
		go s.admitSession(session, packet)
	})
}

func (s *Server) admitSession(session *engineio.Session, packet *Packet) {
	ns := s.Of(packet.Namespace)

	_, err := ns.admit(context.Background(), sessionTransport{session}, packet.Data)
	if err == nil {
		return
	}

	s.log.Info("admission rejected",
		"namespace", ns.Name(), "sid", session.ID(), "error", err)

	reject := &Packet{
		Type:      PacketTypeConnectError,
		Namespace: ns.Name(),
		Data:      map[string]any{"message": err.Error()},
	}
	if encoded, encErr := reject.Encode(); encErr == nil {
		_ = session.Send(&engineio.Packet{
			Type: engineio.PacketTypeMessage,
			Data: []byte(encoded),
		})
	}
	session.Close("admission rejected")
}
