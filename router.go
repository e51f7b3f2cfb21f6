package roomcast

// Event is one outbound broadcast: a target selector plus the named payload.
// An empty Rooms slice targets every socket in the namespace; a single
// connection is targeted through its private id-room, which every socket
// joins on admission.
type Event struct {
	Namespace string   `json:"nsp"`
	Rooms     []string `json:"rooms,omitempty"`
	Except    []string `json:"except,omitempty"`
	Name      string   `json:"event"`
	Args      []any    `json:"args,omitempty"`
}

// Report describes the outcome of routing one event to the local process.
type Report struct {
	// Resolved is the size of the delivery set after exclusion.
	Resolved int
	// Delivered is the number of sockets the event was enqueued for.
	Delivered int
	// Missed lists sockets that were resolved but whose outbound queue was
	// gone or full at delivery time. Misses are recorded, never raised.
	Missed []string
}

// Router resolves events against the namespace's registry and enqueues them
// on each resolved socket's outbound queue. Membership is always re-read at
// resolution time; the snapshot taken then is authoritative, so a socket
// leaving a room between resolution and enqueue still receives the event.
//
// Delivery preserves the relative order of events routed by the same caller
// towards the same socket (per-connection FIFO); no ordering is promised
// across distinct sockets.
type Router struct {
	registry *Registry
	ns       *Namespace
}

func newRouter(registry *Registry, ns *Namespace) *Router {
	return &Router{registry: registry, ns: ns}
}

// Route resolves the event's target selector to the local delivery set and
// enqueues the event for each member. It never fails: dead targets are
// counted in the report and skipped.
func (rt *Router) Route(ev *Event) Report {
	targets := make(map[string]struct{})

	if len(ev.Rooms) == 0 {
		for _, id := range rt.ns.socketIDs() {
			targets[id] = struct{}{}
		}
	} else {
		rt.registry.collect(ev.Rooms, targets)
	}

	for _, id := range ev.Except {
		delete(targets, id)
	}

	report := Report{Resolved: len(targets)}
	if len(targets) == 0 {
		return report
	}

	packet := newEventPacket(ev.Namespace, ev.Name, ev.Args)
	encoded, err := packet.Encode()
	if err != nil {
		// Unserializable payloads make every target a miss; the emit call
		// itself stays fire-and-forget.
		for id := range targets {
			report.Missed = append(report.Missed, id)
		}
		return report
	}

	for id := range targets {
		sock, ok := rt.ns.socket(id)
		if !ok {
			report.Missed = append(report.Missed, id)
			continue
		}
		if err := sock.sendEncoded(encoded); err != nil {
			report.Missed = append(report.Missed, id)
			continue
		}
		report.Delivered++
	}

	return report
}

// sendEncoded enqueues a pre-encoded protocol packet on the socket's
// transport queue.
func (s *Socket) sendEncoded(encoded string) error {
	return s.transport.Send([]byte(encoded))
}
