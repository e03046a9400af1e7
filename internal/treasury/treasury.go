package treasury

/*
Файл treasury.go реализует казначейство: единый пул средств и его участие
в протоколе расчета страховых случаев. Баланс никогда не уходит в минус:
резервирование (debit) выполняется до внешнего перевода, компенсирующий
возврат (Release) — при отказе перевода. Сам перевод не ретраится —
повтор после TransferFailed является ответственностью вызывающего.
*/

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meditrack/coldchain/internal/access"
	"github.com/meditrack/coldchain/internal/audit"
	"github.com/meditrack/coldchain/internal/domain"
	"github.com/meditrack/coldchain/internal/gateway"
	"github.com/meditrack/coldchain/internal/infra"
)

// Store описывает долговременное хранилище баланса
type Store interface {
	GetBalance(ctx context.Context) (int64, error)
	SaveBalance(ctx context.Context, balance int64) error
}

type Treasury struct {
	mu      sync.Mutex
	balance int64

	acl     *access.Control
	gw      gateway.FundGateway
	store   Store
	auditor audit.Sink
	logger  *zap.Logger
	metrics *infra.Metrics
}

func New(acl *access.Control, gw gateway.FundGateway, store Store, auditor audit.Sink, logger *zap.Logger, metrics *infra.Metrics) *Treasury {
	return &Treasury{
		acl:     acl,
		gw:      gw,
		store:   store,
		auditor: auditor,
		logger:  logger.Named("treasury"),
		metrics: metrics,
	}
}

// Warmup загружает баланс пула из БД при старте
func (t *Treasury) Warmup(ctx context.Context) error {
	balance, err := t.store.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("treasury: cold load failed: %w", err)
	}
	t.mu.Lock()
	t.balance = balance
	t.mu.Unlock()
	t.metrics.TreasuryBalance.Set(float64(balance))
	t.logger.Info("treasury balance loaded", zap.Int64("balance", balance))
	return nil
}

// Balance возвращает текущий пул
func (t *Treasury) Balance() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

// Deposit пополняет пул. Только администратор, нулевая сумма отклоняется.
func (t *Treasury) Deposit(ctx context.Context, actor string, amount int64) error {
	if err := t.acl.RequireActive(); err != nil {
		return err
	}
	if err := t.acl.Require(domain.RoleAdministrator, actor); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", domain.ErrInvalidInput)
	}

	if err := t.credit(ctx, amount); err != nil {
		return err
	}

	t.metrics.OperationsTotal.WithLabelValues("deposit_funds").Inc()
	t.auditor.Record(audit.Event{
		ID:      uuid.New().String(),
		TraceID: infra.TraceIDFromContext(ctx),
		Kind:    audit.EventFundsDeposited,
		Actor:   actor,
		Fields:  map[string]interface{}{"amount": amount},
	})
	t.logger.Info("funds deposited", zap.Int64("amount", amount), zap.String("actor", actor))
	return nil
}

// CreditPremium зачисляет страховую премию в пул.
// Guards (держатель, точная сумма) проверены в страховом реестре.
func (t *Treasury) CreditPremium(ctx context.Context, amount int64) error {
	return t.credit(ctx, amount)
}

func (t *Treasury) credit(ctx context.Context, amount int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.balance + amount
	if err := t.store.SaveBalance(ctx, next); err != nil {
		return fmt.Errorf("treasury: failed to persist balance: %w", err)
	}
	t.balance = next
	t.metrics.TreasuryBalance.Set(float64(next))
	return nil
}

// Reserve списывает сумму выплаты ДО внешнего перевода (шаг 2 протокола).
// Возвращает ErrInsufficientFunds без какой-либо мутации, если пула не хватает.
func (t *Treasury) Reserve(ctx context.Context, amount int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balance < amount {
		return fmt.Errorf("%w: balance %d < claim %d", domain.ErrInsufficientFunds, t.balance, amount)
	}

	next := t.balance - amount
	if err := t.store.SaveBalance(ctx, next); err != nil {
		return fmt.Errorf("treasury: failed to persist reservation: %w", err)
	}
	t.balance = next
	t.metrics.TreasuryBalance.Set(float64(next))
	return nil
}

// Release — компенсирующий возврат резерва при отказе перевода
func (t *Treasury) Release(ctx context.Context, amount int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.balance + amount
	if err := t.store.SaveBalance(ctx, next); err != nil {
		// RAM остается источником правды; расхождение с БД чиним по логу
		t.logger.Error("failed to persist reservation rollback", zap.Error(err), zap.Int64("amount", amount))
	}
	t.balance = next
	t.metrics.TreasuryBalance.Set(float64(next))
}

// Transfer исполняет внешний перевод зарезервированной суммы (шаг 4).
// Любой отказ процессора схлопывается в доменный ErrTransferFailed.
func (t *Treasury) Transfer(ctx context.Context, payee string, amount int64) error {
	if err := t.gw.Transfer(ctx, payee, amount); err != nil {
		t.logger.Error("external transfer failed",
			zap.String("payee", payee), zap.Int64("amount", amount), zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}
	t.metrics.PayoutsTotal.Inc()
	return nil
}
