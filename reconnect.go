package roomcast

import (
	"context"
	"sync"
	"time"
)

// SupervisorState is a state of the reconnection state machine.
type SupervisorState int

const (
	// StateConnected: the transport is up.
	StateConnected SupervisorState = iota
	// StateDisconnected: the transport dropped; retry has not started.
	StateDisconnected
	// StateReconnecting: backoff-scheduled retries are in flight.
	StateReconnecting
	// StateFailed: the attempt limit was exceeded. Terminal.
	StateFailed
	// StateStopped: the caller disconnected on purpose. Terminal; automatic
	// retries are suppressed.
	StateStopped
)

func (s SupervisorState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DialFunc attempts one transport handshake.
type DialFunc func(ctx context.Context) error

// Supervisor is the client-side reconnection state machine:
//
//	Connected -> Disconnected -> Reconnecting -> {Connected | Failed}
//
// A lost connection schedules retries on an exponential, jittered backoff;
// the delay schedule is non-decreasing up to the cap and resets along with
// the attempt counter on any successful connect. Exceeding the attempt limit
// is terminal and surfaces ErrReconnectExhausted; so is an explicit Stop.
type Supervisor struct {
	cfg     ReconnectConfig
	dial    DialFunc
	backoff Backoff

	mu      sync.Mutex
	state   SupervisorState
	attempt int
	cancel  context.CancelFunc

	notifyMu sync.RWMutex
	onState  []func(state SupervisorState, reason error)
}

// NewSupervisor creates a supervisor in the Disconnected state. Connect
// performs the initial handshake.
func NewSupervisor(cfg ReconnectConfig, dial DialFunc) *Supervisor {
	return &Supervisor{
		cfg:   cfg,
		dial:  dial,
		state: StateDisconnected,
		backoff: Backoff{
			InitialDelay:        cfg.InitialDelay,
			MaxDelay:            cfg.MaxDelay,
			RandomizationFactor: cfg.RandomizationFactor,
		},
	}
}

// OnStateChange registers a handler invoked on every transition. The reason
// is non-nil for failure transitions (ErrReconnectExhausted on Failed, the
// capture of the disconnect cause on Disconnected).
func (s *Supervisor) OnStateChange(fn func(state SupervisorState, reason error)) {
	s.notifyMu.Lock()
	s.onState = append(s.onState, fn)
	s.notifyMu.Unlock()
}

// State returns the current state.
func (s *Supervisor) State() SupervisorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempt returns the current retry attempt counter.
func (s *Supervisor) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Connect performs the initial handshake. On success the supervisor enters
// Connected with a fresh attempt counter.
func (s *Supervisor) Connect(ctx context.Context) error {
	if err := s.dial(ctx); err != nil {
		return err
	}
	s.transition(StateConnected, nil)
	return nil
}

// ConnectionLost records a dropped transport and, when reconnection is
// enabled, starts the backoff-scheduled retry loop. In a terminal state it
// is a no-op.
func (s *Supervisor) ConnectionLost(reason error) {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.mu.Unlock()
	s.notify(StateDisconnected, reason)

	if !s.cfg.Enabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.state = StateReconnecting
	s.mu.Unlock()
	s.notify(StateReconnecting, nil)

	go s.retryLoop(ctx)
}

// Stop cancels any in-flight retry loop and parks the supervisor in the
// terminal Stopped state.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	already := s.state == StateStopped
	s.state = StateStopped
	s.mu.Unlock()

	if !already {
		s.notify(StateStopped, nil)
	}
}

func (s *Supervisor) retryLoop(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		if s.cfg.MaxAttempts > 0 && attempt > s.cfg.MaxAttempts {
			s.transition(StateFailed, ErrReconnectExhausted)
			return
		}

		s.mu.Lock()
		s.attempt = attempt
		s.mu.Unlock()

		timer := time.NewTimer(s.backoff.Delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}

		err := s.dial(ctx)
		if err == nil {
			s.mu.Lock()
			// A Stop racing the successful dial wins; stay terminal.
			if s.state == StateStopped {
				s.mu.Unlock()
				return
			}
			s.attempt = 0
			s.state = StateConnected
			s.mu.Unlock()
			s.notify(StateConnected, nil)
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Supervisor) transition(state SupervisorState, reason error) {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	if state == StateConnected {
		s.attempt = 0
	}
	s.state = state
	s.mu.Unlock()

	s.notify(state, reason)
}

func (s *Supervisor) notify(state SupervisorState, reason error) {
	s.notifyMu.RLock()
	handlers := s.onState
	s.notifyMu.RUnlock()

	for _, fn := range handlers {
		fn(state, reason)
	}
}
