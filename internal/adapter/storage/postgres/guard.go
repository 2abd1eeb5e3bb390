package postgres

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-csms/pkg/config"
)

// Guard wraps repository access in a circuit breaker. A failing or open
// breaker surfaces as ErrTransient: protocol handlers log it and still
// answer the charger, keeping the carrier healthy while the database is
// down.
type Guard struct {
	cb  *gobreaker.CircuitBreaker
	log *zap.Logger
}

func NewGuard(cfg config.CircuitBreakerConfig, log *zap.Logger) *Guard {
	if !cfg.Enabled {
		return &Guard{log: log}
	}

	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 0.6
	}
	settings := gobreaker.Settings{
		Name:        "postgres",
		MaxRequests: uint32(cfg.MaxRequests),
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Persistence circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Guard{cb: gobreaker.NewCircuitBreaker(settings), log: log}
}

// Do runs one persistence operation under the breaker. Reads go through
// it too: a dead database must degrade to ErrTransient on every path,
// not only on writes.
func (g *Guard) Do(op string, fn func() error) error {
	start := time.Now()
	defer func() {
		telemetry.DatabaseLatency.Observe(time.Since(start).Seconds())
	}()

	if g.cb == nil {
		if err := fn(); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrTransient, op, err)
		}
		return nil
	}

	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrTransient, op, err)
	}
	return nil
}
