package roomcast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Config is the server configuration surface. Fields carry env tags so a
// deployment can be driven entirely from the environment.
type Config struct {
	Path          string        `env:"ROOMCAST_PATH" envDefault:"/socket.io/"`
	PingInterval  time.Duration `env:"ROOMCAST_PING_INTERVAL" envDefault:"25s"`
	PingTimeout   time.Duration `env:"ROOMCAST_PING_TIMEOUT" envDefault:"20s"`
	MaxPayload    int           `env:"ROOMCAST_MAX_PAYLOAD" envDefault:"1048576"`
	SendQueueSize int           `env:"ROOMCAST_SEND_QUEUE_SIZE" envDefault:"256"`
	AckTimeout    time.Duration `env:"ROOMCAST_ACK_TIMEOUT" envDefault:"5s"`

	// CheckOrigin validates upgrade request origins; nil allows all.
	CheckOrigin func(*http.Request) bool `env:"-"`
}

// DefaultServerConfig returns the built-in defaults.
func DefaultServerConfig() *Config {
	return &Config{
		Path:          "/socket.io/",
		PingInterval:  25 * time.Second,
		PingTimeout:   20 * time.Second,
		MaxPayload:    1 << 20,
		SendQueueSize: 256,
		AckTimeout:    5 * time.Second,
	}
}

// RedisConfig configures the backplane broker connection.
type RedisConfig struct {
	URL            string        `env:"ROOMCAST_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"ROOMCAST_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"ROOMCAST_REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"ROOMCAST_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// ReconnectConfig configures the client-side reconnection supervisor.
type ReconnectConfig struct {
	Enabled             bool          `env:"ROOMCAST_RECONNECT" envDefault:"true"`
	MaxAttempts         int           `env:"ROOMCAST_RECONNECT_MAX_ATTEMPTS" envDefault:"5"`
	InitialDelay        time.Duration `env:"ROOMCAST_RECONNECT_INITIAL_DELAY" envDefault:"1s"`
	MaxDelay            time.Duration `env:"ROOMCAST_RECONNECT_MAX_DELAY" envDefault:"30s"`
	RandomizationFactor float64       `env:"ROOMCAST_RECONNECT_RANDOMIZATION" envDefault:"0.5"`
}

var (
	ErrInvalidRedisURL = errors.New("roomcast: invalid redis connection URL")
	ErrRedisNotReady   = errors.New("roomcast: redis did not become ready within the given time period")
)

// LoadFromEnv parses a config struct from the environment, optionally
// loading .env files first. Missing .env files are not an error; a running
// deployment usually has no .env at all.
func LoadFromEnv[T any](envFiles ...string) (T, error) {
	var cfg T

	if len(envFiles) > 0 {
		_ = godotenv.Load(envFiles...)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config from env: %w", err)
	}
	return cfg, nil
}

// ConnectRedis dials the backplane broker, retrying with ping verification
// until it answers or the attempts run out.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrInvalidRedisURL, err)
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for range attempts {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrRedisNotReady
}
