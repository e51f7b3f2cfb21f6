package roomcast

import (
	"context"
	"errors"
	"sync"
)

// Handshake carries the information available to admission middleware: the
// attempted namespace, the client's auth payload from the connect packet,
// and the principal an authentication step may attach.
type Handshake struct {
	Namespace string
	Auth      any

	// Principal is an opaque handle to the authenticated identity, owned by
	// whichever middleware set it. The engine never interprets it.
	Principal any
}

// Middleware inspects a handshake and either lets admission proceed by
// returning nil or rejects it with an error. A rejection aborts the chain
// and leaves no registry state behind.
type Middleware func(ctx context.Context, h *Handshake) error

// middlewareChain is an ordered chain-of-responsibility over admission
// middleware. Appends and runs may race with each other; runs see a
// consistent snapshot of the chain.
type middlewareChain struct {
	mu  sync.RWMutex
	fns []Middleware
}

func (c *middlewareChain) append(mw Middleware) {
	c.mu.Lock()
	c.fns = append(c.fns, mw)
	c.mu.Unlock()
}

func (c *middlewareChain) run(ctx context.Context, h *Handshake) error {
	c.mu.RLock()
	fns := c.fns
	c.mu.RUnlock()

	for _, fn := range fns {
		if err := fn(ctx, h); err != nil {
			return errors.Join(ErrAuthRejected, err)
		}
	}
	return nil
}

// Verifier is the authentication capability consumed by the engine:
// credential in, principal out. Token formats and signature schemes live
// behind this interface.
type Verifier interface {
	Verify(ctx context.Context, credential string) (any, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, credential string) (any, error)

func (f VerifierFunc) Verify(ctx context.Context, credential string) (any, error) {
	return f(ctx, credential)
}

// ErrMissingCredential is returned by RequireAuth when the handshake auth
// payload carries no token.
var ErrMissingCredential = errors.New("roomcast: missing credential")

// RequireAuth returns a middleware that extracts the "token" field from the
// handshake auth payload, verifies it, and attaches the resulting principal.
func RequireAuth(v Verifier) Middleware {
	return func(ctx context.Context, h *Handshake) error {
		auth, _ := h.Auth.(map[string]any)
		token, _ := auth["token"].(string)
		if token == "" {
			return ErrMissingCredential
		}

		principal, err := v.Verify(ctx, token)
		if err != nil {
			return err
		}

		h.Principal = principal
		return nil
	}
}
