package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"github.com/meditrack/coldchain/internal/infra"
)

// ProtectedGateway оборачивает процессор в Rate Limiter и Circuit Breaker.
// Ретраев здесь нет намеренно: перевод средств не идемпотентен, повтор —
// ответственность вызывающего после явного TransferFailed.
type ProtectedGateway struct {
	next    FundGateway
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewProtectedGateway(next FundGateway, cfg infra.TreasuryConfig, metrics *infra.Metrics, logger *zap.Logger) *ProtectedGateway {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fund-gateway",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся (блокируем переводы)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.GatewayBreakerState.Set(1)
			} else {
				metrics.GatewayBreakerState.Set(0)
			}
			logger.Warn("fund gateway breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &ProtectedGateway{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		logger:  logger.Named("gateway"),
	}
}

func (g *ProtectedGateway) Transfer(ctx context.Context, payee string, amount int64) error {
	// 1. Rate Limiter
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker + таймаут на одиночный перевод
	_, err := g.cb.Execute(func() (interface{}, error) {
		tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return nil, g.next.Transfer(tCtx, payee, amount)
	})
	return err
}
