package roomcast

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastReconnectConfig(maxAttempts int) ReconnectConfig {
	return ReconnectConfig{
		Enabled:      true,
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

// stateRecorder collects transitions for assertions.
type stateRecorder struct {
	ch chan SupervisorState
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{ch: make(chan SupervisorState, 32)}
}

func (r *stateRecorder) record(state SupervisorState, _ error) {
	r.ch <- state
}

func (r *stateRecorder) wait(t *testing.T, want SupervisorState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("never reached state %v", want)
		}
	}
}

func TestSupervisorReconnectsAfterTransientFailure(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	dial := func(ctx context.Context) error {
		// Initial connect succeeds, the first two retries fail, the third
		// lands.
		switch dials.Add(1) {
		case 1, 4:
			return nil
		default:
			return errors.New("refused")
		}
	}

	sup := NewSupervisor(fastReconnectConfig(10), dial)
	rec := newStateRecorder()
	sup.OnStateChange(rec.record)

	require.NoError(t, sup.Connect(context.Background()))
	rec.wait(t, StateConnected)

	sup.ConnectionLost(errors.New("transport closed"))
	rec.wait(t, StateDisconnected)
	rec.wait(t, StateReconnecting)
	rec.wait(t, StateConnected)

	assert.Equal(t, StateConnected, sup.State())
	assert.Equal(t, 0, sup.Attempt(), "counter resets on success")
}

func TestSupervisorFailsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	dial := func(ctx context.Context) error {
		dials.Add(1)
		return errors.New("refused")
	}

	sup := NewSupervisor(fastReconnectConfig(5), dial)

	var terminal error
	done := make(chan struct{})
	sup.OnStateChange(func(state SupervisorState, reason error) {
		if state == StateFailed {
			terminal = reason
			close(done)
		}
	})

	sup.ConnectionLost(errors.New("transport closed"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never reached Failed")
	}

	assert.ErrorIs(t, terminal, ErrReconnectExhausted)
	assert.Equal(t, StateFailed, sup.State())
	assert.Equal(t, int32(5), dials.Load(), "exactly maxAttempts dials")

	// Terminal: another loss must not restart retries.
	sup.ConnectionLost(errors.New("again"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(5), dials.Load())
}

func TestSupervisorStopSuppressesRetries(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	block := make(chan struct{})
	dial := func(ctx context.Context) error {
		dials.Add(1)
		select {
		case <-block:
		case <-ctx.Done():
		}
		return errors.New("refused")
	}

	cfg := fastReconnectConfig(0) // unlimited attempts
	sup := NewSupervisor(cfg, dial)
	rec := newStateRecorder()
	sup.OnStateChange(rec.record)

	sup.ConnectionLost(errors.New("transport closed"))
	rec.wait(t, StateReconnecting)

	sup.Stop()
	rec.wait(t, StateStopped)
	close(block)

	settled := dials.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, dials.Load(), "no dials after manual stop")
	assert.Equal(t, StateStopped, sup.State())
}

func TestSupervisorDisabledDoesNotRetry(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	sup := NewSupervisor(ReconnectConfig{Enabled: false}, func(ctx context.Context) error {
		dials.Add(1)
		return nil
	})

	sup.ConnectionLost(errors.New("transport closed"))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(0), dials.Load())
	assert.Equal(t, StateDisconnected, sup.State())
}

func TestSupervisorCapturesDisconnectReason(t *testing.T) {
	t.Parallel()

	cause := errors.New("liveness deadline missed")
	sup := NewSupervisor(ReconnectConfig{Enabled: false}, func(ctx context.Context) error { return nil })

	var captured error
	sup.OnStateChange(func(state SupervisorState, reason error) {
		if state == StateDisconnected {
			captured = reason
		}
	})

	sup.ConnectionLost(cause)
	assert.ErrorIs(t, captured, cause)
}
