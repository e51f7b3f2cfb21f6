package roomcast

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Namespace is an isolated partition of the address space: its own sockets,
// its own registry, its own middleware chain, its own backplane channel.
// Rooms in different namespaces never overlap. Namespaces are process-wide
// and live until the server shuts down.
type Namespace struct {
	name       string
	server     *Server
	registry   *Registry
	router     *Router
	ackTimeout time.Duration
	log        *slog.Logger

	mu      sync.RWMutex
	sockets map[string]*Socket

	middleware middlewareChain

	adapterMu sync.RWMutex
	adapter   Adapter

	handlersMu   sync.RWMutex
	onConnect    []func(*Socket)
	onDisconnect []func(*Socket, string)
}

func newNamespace(name string, server *Server, ackTimeout time.Duration, log *slog.Logger) *Namespace {
	ns := &Namespace{
		name:       name,
		server:     server,
		registry:   NewRegistry(),
		sockets:    make(map[string]*Socket),
		ackTimeout: ackTimeout,
		log:        log,
		adapter:    LocalAdapter{},
	}
	ns.router = newRouter(ns.registry, ns)
	return ns
}

// Name returns the namespace path.
func (ns *Namespace) Name() string {
	return ns.name
}

// Registry returns the namespace's membership registry.
func (ns *Namespace) Registry() *Registry {
	return ns.registry
}

// Use appends an admission middleware to the namespace's chain.
func (ns *Namespace) Use(mw Middleware) {
	ns.middleware.append(mw)
}

// OnConnect registers a handler fired after a socket has been admitted and
// registered. Membership is fully consistent by the time it runs, so the
// handler may immediately broadcast to the socket.
func (ns *Namespace) OnConnect(handler func(*Socket)) {
	ns.handlersMu.Lock()
	ns.onConnect = append(ns.onConnect, handler)
	ns.handlersMu.Unlock()
}

// OnDisconnect registers a handler fired after a socket has been fully
// deregistered, with the transport's reason code.
func (ns *Namespace) OnDisconnect(handler func(*Socket, string)) {
	ns.handlersMu.Lock()
	ns.onDisconnect = append(ns.onDisconnect, handler)
	ns.handlersMu.Unlock()
}

// SetAdapter replaces the scale-out adapter. The previous adapter is closed.
func (ns *Namespace) SetAdapter(adapter Adapter) {
	ns.adapterMu.Lock()
	old := ns.adapter
	ns.adapter = adapter
	ns.adapterMu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

// To returns a BroadcastOperator targeting the given rooms. With no rooms it
// targets every socket in the namespace.
func (ns *Namespace) To(rooms ...string) *BroadcastOperator {
	return &BroadcastOperator{namespace: ns, rooms: rooms}
}

// Emit broadcasts an event to every socket in the namespace.
func (ns *Namespace) Emit(event string, args ...any) Report {
	return ns.To().Emit(event, args...)
}

// Sockets returns every connected socket in the namespace.
func (ns *Namespace) Sockets() []*Socket {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	out := make([]*Socket, 0, len(ns.sockets))
	for _, sock := range ns.sockets {
		out = append(out, sock)
	}
	return out
}

// GetSocket retrieves a socket by id.
func (ns *Namespace) GetSocket(id string) (*Socket, bool) {
	return ns.socket(id)
}

// DeliverLocal routes a foreign broadcast, received from the backplane,
// against this process's own membership. It never republishes, so backplane
// traffic cannot loop.
func (ns *Namespace) DeliverLocal(ev *Event) Report {
	return ns.router.Route(ev)
}

// broadcast delivers locally first, then mirrors the event onto the
// backplane. Publish failures degrade to local-only delivery and are
// surfaced as log signals, never to the emitting caller.
func (ns *Namespace) broadcast(ev *Event) Report {
	report := ns.router.Route(ev)

	ns.adapterMu.RLock()
	adapter := ns.adapter
	ns.adapterMu.RUnlock()

	if adapter != nil {
		if err := adapter.Publish(context.Background(), ev); err != nil && ns.log != nil {
			ns.log.Warn("backplane publish failed, delivered local-only",
				"namespace", ns.name, "event", ev.Name, "error", err)
		}
	}

	return report
}

// admit runs the middleware chain and, only on success, registers the
// session as a socket. Rejection leaves no registry state behind. The
// connected notification fires strictly after registration.
func (ns *Namespace) admit(ctx context.Context, transport Transport, auth any) (*Socket, error) {
	if transport.Closed() {
		return nil, ErrTransportGone
	}

	h := &Handshake{Namespace: ns.name, Auth: auth}
	if err := ns.middleware.run(ctx, h); err != nil {
		return nil, err
	}

	// The chain may have suspended on I/O; re-check before touching state.
	if transport.Closed() {
		return nil, ErrTransportGone
	}

	sock := newSocket(transport.ID(), transport, ns, h.Principal)

	ns.mu.Lock()
	ns.sockets[sock.id] = sock
	ns.mu.Unlock()

	// Every socket joins its private id-room, which is how single-connection
	// targeting resolves through the same room machinery.
	sock.Join(sock.id)

	connect := &Packet{
		Type:      PacketTypeConnect,
		Namespace: ns.name,
		Data:      map[string]any{"sid": sock.id},
	}
	if err := sock.sendPacket(connect); err != nil {
		ns.removeSocket(sock.id)
		return nil, ErrTransportGone
	}

	ns.handlersMu.RLock()
	handlers := ns.onConnect
	ns.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler(sock)
	}

	return sock, nil
}

// removeSocket deregisters the socket from the namespace and from every room
// it occupies, in one pass.
func (ns *Namespace) removeSocket(id string) {
	ns.mu.Lock()
	delete(ns.sockets, id)
	ns.mu.Unlock()

	ns.registry.LeaveAll(id)
}

func (ns *Namespace) notifyDisconnected(sock *Socket, reason string) {
	ns.handlersMu.RLock()
	handlers := ns.onDisconnect
	ns.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler(sock, reason)
	}
}

func (ns *Namespace) socket(id string) (*Socket, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	sock, ok := ns.sockets[id]
	return sock, ok
}

func (ns *Namespace) socketIDs() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	out := make([]string, 0, len(ns.sockets))
	for id := range ns.sockets {
		out = append(out, id)
	}
	return out
}

// closeAdapter shuts the namespace's adapter down during server close.
func (ns *Namespace) closeAdapter() error {
	ns.adapterMu.RLock()
	adapter := ns.adapter
	ns.adapterMu.RUnlock()

	if adapter == nil {
		return nil
	}
	return adapter.Close()
}

// BroadcastOperator accumulates a target selector: rooms to include and
// socket ids to exclude. Exclusion is always explicit; excluding a socket
// that is not in the resolved set is harmless.
type BroadcastOperator struct {
	namespace *Namespace
	rooms     []string
	except    []string
}

// To adds rooms to the target set.
func (b *BroadcastOperator) To(rooms ...string) *BroadcastOperator {
	b.rooms = append(b.rooms, rooms...)
	return b
}

// Except adds socket ids to the exclude set.
func (b *BroadcastOperator) Except(socketIDs ...string) *BroadcastOperator {
	b.except = append(b.except, socketIDs...)
	return b
}

// Emit resolves the selector and delivers the event, locally and through the
// backplane. The report covers local delivery only; remote fan-out is
// best-effort.
func (b *BroadcastOperator) Emit(event string, args ...any) Report {
	return b.namespace.broadcast(&Event{
		Namespace: b.namespace.name,
		Rooms:     b.rooms,
		Except:    b.except,
		Name:      event,
		Args:      args,
	})
}
