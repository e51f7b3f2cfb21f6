package roomcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// channelPrefix namespaces the backplane channels inside a shared Redis.
const channelPrefix = "roomcast:"

// envelope is the backplane wire format. Origin carries the publishing
// process's identifier so a process never re-delivers its own broadcast when
// the backplane echoes it back.
type envelope struct {
	Origin string `json:"origin"`
	Event  *Event `json:"event"`
}

// RedisAdapter fans broadcasts out across server processes over Redis
// pub/sub, one channel per namespace. Outbound publishes are queued and
// flushed by a background goroutine, so a slow or unreachable broker never
// blocks the local delivery path; a full queue degrades that broadcast to
// local-only.
//
// Inbound messages from other processes are replayed through the local
// router against this process's own membership, honoring the original
// exclude set.
type RedisAdapter struct {
	client  redis.UniversalClient
	ns      *Namespace
	channel string
	origin  string
	log     *slog.Logger

	outbound  chan *Event
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// RedisAdapterOption configures a RedisAdapter.
type RedisAdapterOption func(*RedisAdapter)

// WithOrigin overrides the generated origin-process identifier. Processes
// sharing a backplane must use distinct origins.
func WithOrigin(origin string) RedisAdapterOption {
	return func(a *RedisAdapter) { a.origin = origin }
}

// WithAdapterLogger sets the logger for backplane failures.
func WithAdapterLogger(log *slog.Logger) RedisAdapterOption {
	return func(a *RedisAdapter) { a.log = log }
}

// WithPublishBuffer sets the outbound publish queue size.
func WithPublishBuffer(n int) RedisAdapterOption {
	return func(a *RedisAdapter) {
		if n > 0 {
			a.outbound = make(chan *Event, n)
		}
	}
}

// NewRedisAdapter subscribes to the namespace's backplane channel and starts
// the publish and receive loops. The subscription is confirmed before
// returning so no foreign broadcast published afterwards is missed.
func NewRedisAdapter(ctx context.Context, client redis.UniversalClient, ns *Namespace, opts ...RedisAdapterOption) (*RedisAdapter, error) {
	a := &RedisAdapter{
		client:   client,
		ns:       ns,
		channel:  channelPrefix + ns.Name(),
		origin:   uuid.NewString(),
		log:      slog.New(slog.DiscardHandler),
		outbound: make(chan *Event, 256),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.pubsub = client.Subscribe(ctx, a.channel)
	if _, err := a.pubsub.Receive(ctx); err != nil {
		cancel()
		_ = a.pubsub.Close()
		return nil, err
	}

	a.wg.Add(2)
	go a.publishLoop(loopCtx)
	go a.receiveLoop()

	return a, nil
}

// Origin returns the adapter's origin-process identifier.
func (a *RedisAdapter) Origin() string {
	return a.origin
}

// Publish enqueues an event for the backplane. It never blocks; when the
// adapter is closed or the queue is full the event stays local-only and
// ErrBackplaneUnavailable is returned for observability.
func (a *RedisAdapter) Publish(_ context.Context, ev *Event) error {
	select {
	case <-a.closed:
		return ErrBackplaneUnavailable
	default:
	}

	select {
	case a.outbound <- ev:
		return nil
	case <-a.closed:
		return ErrBackplaneUnavailable
	default:
		return ErrBackplaneUnavailable
	}
}

// Close stops the loops and tears down the subscription.
func (a *RedisAdapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closed)
		a.cancel()
		err = a.pubsub.Close()
		a.wg.Wait()
	})
	return err
}

func (a *RedisAdapter) publishLoop(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case ev := <-a.outbound:
			payload, err := json.Marshal(envelope{Origin: a.origin, Event: ev})
			if err != nil {
				a.log.Warn("backplane envelope encode failed", "namespace", a.ns.Name(), "error", err)
				continue
			}
			if err := a.client.Publish(ctx, a.channel, payload).Err(); err != nil {
				a.log.Warn("backplane publish failed", "namespace", a.ns.Name(), "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *RedisAdapter) receiveLoop() {
	defer a.wg.Done()

	for msg := range a.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Event == nil {
			a.log.Warn("backplane envelope decode failed", "namespace", a.ns.Name(), "error", err)
			continue
		}

		// Our own publication echoed back; the local router already ran.
		if env.Origin == a.origin {
			continue
		}

		a.ns.DeliverLocal(env.Event)
	}
}
