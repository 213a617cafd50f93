package routing

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is the expiry sweeper's default tick
const DefaultSweepInterval = 60 * time.Second

// Sweeper retires rules past their expiry on a fixed interval. It
// calls the same retirement path as explicit deletion, so racing an
// explicit delete of the same rule is a harmless no-op. Transient
// failures are logged and retried on the next tick.
type Sweeper struct {
	store    *Store
	retire   func(ctx context.Context, rule *RoutingRule) (bool, error)
	interval time.Duration
	logger   *slog.Logger

	shutdown chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper. retire removes one expired rule and
// reports whether it was still present.
func NewSweeper(store *Store, interval time.Duration,
	retire func(ctx context.Context, rule *RoutingRule) (bool, error)) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		retire:   retire,
		interval: interval,
		logger:   slog.Default().With("component", "expiry-sweeper"),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is done or Stop is called
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep retires every rule past its expiry. Exported for tests and
// for callers that want an immediate pass.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := time.Now().UTC()
	expired := s.store.ExpiredBefore(now)
	retired := 0

	for _, rule := range expired {
		removed, err := s.retire(ctx, rule)
		if err != nil {
			// Transient store failures retry on the next tick
			s.logger.Warn("Expiry retirement failed, will retry", "rule", rule.RuleID, "error", err)
			continue
		}
		if removed {
			retired++
		}
	}

	if retired > 0 {
		s.logger.Info("Swept expired rules", "retired", retired)
	}
	return retired
}

// Stop halts the sweep loop, waiting up to timeout
func (s *Sweeper) Stop(timeout time.Duration) error {
	select {
	case <-s.shutdown:
		// already stopped
	default:
		close(s.shutdown)
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return nil
	}
}
