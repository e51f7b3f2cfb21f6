package roomcast

import "context"

// Adapter mirrors local broadcast decisions onto a shared backplane so that
// sockets attached to other processes receive them too. It owns no
// membership state; it is a relay between the local router and the
// backplane. Publish must not block or fail local delivery: cross-process
// fan-out is best-effort, local delivery is guaranteed.
type Adapter interface {
	// Publish mirrors a locally delivered event to the backplane.
	Publish(ctx context.Context, ev *Event) error

	// Close releases the adapter's resources.
	Close() error
}

// AdapterFactory builds an adapter for one namespace. The server invokes it
// for every existing and future namespace once installed.
type AdapterFactory func(ns *Namespace) (Adapter, error)

// LocalAdapter is the single-process adapter: publishing is a no-op and no
// foreign broadcasts ever arrive.
type LocalAdapter struct{}

func (LocalAdapter) Publish(context.Context, *Event) error { return nil }
func (LocalAdapter) Close() error                          { return nil }
