package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/coordinator/internal/logging"
	"github.com/aristath/coordinator/internal/persistence"
	"github.com/aristath/coordinator/internal/types"
)

// BreakerConfig configures the circuit breaker around the store.
type BreakerConfig struct {
	Failures int           // Consecutive failures that open the breaker
	Timeout  time.Duration // How long the breaker stays open before probing
}

// breakerStore routes every store call through a circuit breaker so that an
// unreachable store fails fast instead of stalling each mirror write.
type breakerStore struct {
	store persistence.Store
	cb    *gobreaker.CircuitBreaker
}

func newBreakerStore(store persistence.Store, cfg BreakerConfig, log *logging.Logger) *breakerStore {
	if cfg.Failures <= 0 {
		cfg.Failures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1, // One probe in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.Failures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Shutdown is not a store failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &breakerStore{store: store, cb: cb}
}

func do(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func get[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (s *breakerStore) Push(ctx context.Context, task *types.Task) error {
	return do(s.cb, func() error { return s.store.Push(ctx, task) })
}

func (s *breakerStore) PopHighestPriority(ctx context.Context) (*types.Task, error) {
	return get(s.cb, func() (*types.Task, error) { return s.store.PopHighestPriority(ctx) })
}

func (s *breakerStore) QueueDepthByPriority(ctx context.Context) (map[types.Priority]int64, error) {
	return get(s.cb, func() (map[types.Priority]int64, error) { return s.store.QueueDepthByPriority(ctx) })
}

func (s *breakerStore) Clear(ctx context.Context, p *types.Priority) error {
	return do(s.cb, func() error { return s.store.Clear(ctx, p) })
}

func (s *breakerStore) PutInstanceSnapshot(ctx context.Context, inst *types.Instance) error {
	return do(s.cb, func() error { return s.store.PutInstanceSnapshot(ctx, inst) })
}

func (s *breakerStore) DeleteInstanceSnapshot(ctx context.Context, id string) error {
	return do(s.cb, func() error { return s.store.DeleteInstanceSnapshot(ctx, id) })
}

func (s *breakerStore) PutTaskSnapshot(ctx context.Context, task *types.Task) error {
	return do(s.cb, func() error { return s.store.PutTaskSnapshot(ctx, task) })
}

func (s *breakerStore) ListInstanceSnapshots(ctx context.Context) ([]*types.Instance, error) {
	return get(s.cb, func() ([]*types.Instance, error) { return s.store.ListInstanceSnapshots(ctx) })
}

func (s *breakerStore) ListTaskSnapshots(ctx context.Context) ([]*types.Task, error) {
	return get(s.cb, func() ([]*types.Task, error) { return s.store.ListTaskSnapshots(ctx) })
}

// Ping bypasses the breaker so a health check always reaches the store.
func (s *breakerStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *breakerStore) Close() error {
	return s.store.Close()
}

// State reports the breaker state.
func (s *breakerStore) State() gobreaker.State {
	return s.cb.State()
}

// RetryConfig configures the drain loop's back-off after store errors.
type RetryConfig struct {
	InitialInterval time.Duration // First wait after an error (default 10s)
	MaxInterval     time.Duration // Upper bound on the wait (default 2min)
}

// newErrorBackOff returns an exponential back-off that never gives up.
func newErrorBackOff(cfg RetryConfig) backoff.BackOff {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 10 * time.Second
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = 0
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}
