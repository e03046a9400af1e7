package insurance

/*
Файл policies.go реализует реестр страховых полисов и конечный автомат
страхового случая: Created -> PremiumPaid -> (Claimed <-> declined) ->
Approved -> Paid. Статус breach отправления реестр узнает исключительно
через узкий интерфейс BreachOracle — никакого доступа к внутренностям
реестра отправлений, владелец данных там.

Протокол расчета (PayClaim) — самая рискованная операция системы:
средства покидают пул ровно один раз на полис, при любом отказе перевода
состояние откатывается целиком (all-or-nothing), а повторный вход во время
перевода отбивается settlement-guard-ом и уже закрытым полисом.
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
	"github.com/meditrack/coldchain/internal/infra"
)

// BreachOracle — единственный контракт между страховым реестром и реестром
// отправлений. Чистое чтение, NotFound для неизвестного отправления.
type BreachOracle interface {
	IsBreached(ctx context.Context, shipmentID string) (bool, error)
}

// Settler описывает требования реестра к казначейству
type Settler interface {
	CreditPremium(ctx context.Context, amount int64) error
	Reserve(ctx context.Context, amount int64) error
	Release(ctx context.Context, amount int64)
	Transfer(ctx context.Context, payee string, amount int64) error
}

// Store описывает долговременное хранилище полисов
type Store interface {
	SavePolicy(ctx context.Context, p *domain.InsurancePolicy) error
	GetAllPolicies(ctx context.Context) ([]domain.InsurancePolicy, error)
}

type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[string]*domain.InsurancePolicy

	// settling помечает полисы, по которым расчет уже идет (между резервом
	// средств и исходом перевода). Второй PayClaim по тому же полису не
	// пройдет дальше валидации, даже если перевод «завис».
	settling map[string]struct{}

	oracle   BreachOracle
	treasury Settler
	acl      *access.Control
	store    Store
	auditor  audit.Sink
	logger   *zap.Logger
	metrics  *infra.Metrics
}

func NewPolicyRegistry(
	oracle BreachOracle,
	treasury Settler,
	acl *access.Control,
	store Store,
	auditor audit.Sink,
	logger *zap.Logger,
	metrics *infra.Metrics,
) *PolicyRegistry {
	return &PolicyRegistry{
		policies: make(map[string]*domain.InsurancePolicy),
		settling: make(map[string]struct{}),
		oracle:   oracle,
		treasury: treasury,
		acl:      acl,
		store:    store,
		auditor:  auditor,
		logger:   logger.Named("insurance"),
		metrics:  metrics,
	}
}

// Warmup выполняет холодную загрузку таблицы полисов из БД
func (r *PolicyRegistry) Warmup(ctx context.Context) error {
	rows, err := r.store.GetAllPolicies(ctx)
	if err != nil {
		return fmt.Errorf("insurance: cold load failed: %w", err)
	}
	r.mu.Lock()
	for i := range rows {
		p := rows[i]
		r.policies[p.ID] = &p
	}
	r.mu.Unlock()
	r.logger.Info("policy table loaded", zap.Int("policies", len(rows)))
	return nil
}

// CreatePolicy выпускает полис. Только администратор.
// Существование shipmentID намеренно НЕ проверяется: выпуск полиса может
// опережать регистрацию отправления, висячая ссылка всплывет NotFound-ом
// при первом обращении к оракулу (fileClaim/approveClaim).
func (r *PolicyRegistry) CreatePolicy(ctx context.Context, actor, policyID, shipmentID, holder string, premium, claim int64) (*domain.InsurancePolicy, error) {
	if err := r.acl.RequireActive(); err != nil {
		return nil, err
	}
	if err := r.acl.Require(domain.RoleAdministrator, actor); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[policyID]; ok {
		return nil, fmt.Errorf("%w: policy %s", domain.ErrAlreadyExists, policyID)
	}

	p, err := domain.NewInsurancePolicy(policyID, shipmentID, holder, premium, claim)
	if err != nil {
		return nil, err
	}

	if err := r.store.SavePolicy(ctx, p); err != nil {
		return nil, fmt.Errorf("insurance: failed to persist policy: %w", err)
	}
	r.policies[policyID] = p

	r.metrics.OperationsTotal.WithLabelValues("create_policy").Inc()
	r.auditor.Record(audit.Event{
		ID:         uuid.New().String(),
		TraceID:    infra.TraceIDFromContext(ctx),
		Kind:       audit.EventPolicyCreated,
		Actor:      actor,
		ShipmentID: shipmentID,
		PolicyID:   policyID,
		Fields: map[string]interface{}{
			"holder":  holder,
			"premium": premium,
			"claim":   claim,
		},
	})
	r.logger.Info("policy created",
		zap.String("policy", policyID), zap.String("shipment", shipmentID), zap.String("holder", holder))

	return p.Clone(), nil
}

// PayPremium принимает оплату премии от держателя. Сумма должна совпасть
// точно; двойная оплата отклоняется, а не принимается молча.
func (r *PolicyRegistry) PayPremium(ctx context.Context, actor, policyID string, amount int64) error {
	if err := r.acl.RequireActive(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.policies[policyID]
	if !ok {
		return fmt.Errorf("%w: policy %s", domain.ErrNotFound, policyID)
	}
	if p.Holder != actor {
		return fmt.Errorf("%w: only the policy holder may pay the premium", domain.ErrUnauthorized)
	}

	work := p.Clone()
	if err := work.RecordPremium(amount); err != nil {
		return err
	}

	// Премия пополняет пул казначейства; при отказе персиста полиса
	// выполняем компенсирующее списание, чтобы деньги не задвоились
	if err := r.treasury.CreditPremium(ctx, amount); err != nil {
		return fmt.Errorf("insurance: failed to credit premium: %w", err)
	}
	if err := r.store.SavePolicy(ctx, work); err != nil {
		if rbErr := r.treasury.Reserve(ctx, amount); rbErr != nil {
			r.logger.Error("premium credit rollback failed", zap.Error(rbErr), zap.String("policy", policyID))
		}
		return fmt.Errorf("insurance: failed to persist premium payment: %w", err)
	}
	r.policies[policyID] = work

	r.metrics.OperationsTotal.WithLabelValues("pay_premium").Inc()
	r.auditor.Record(audit.Event{
		ID:       uuid.New().String(),
		TraceID:  infra.TraceIDFromContext(ctx),
		Kind:     audit.EventPremiumPaid,
		Actor:    actor,
		PolicyID: policyID,
		Fields:   map[string]interface{}{"amount": amount},
	})
	return nil
}

// FileClaim подает страховой случай. Только держатель, только после оплаты
// премии и только при подтвержденном оракулом нарушении холодовой цепи.
func (r *PolicyRegistry) FileClaim(ctx context.Context, actor, policyID string) error {
	if err := r.acl.RequireActive(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.policies[policyID]
	if !ok {
		return fmt.Errorf("%w: policy %s", domain.ErrNotFound, policyID)
	}
	if p.Holder != actor {
		return fmt.Errorf("%w: only the policy holder may file a claim", domain.ErrUnauthorized)
	}

	work := p.Clone()
	if err := work.RecordClaim(); err != nil {
		return err
	}

	// Здесь и всплывает висячая ссылка на отправление: оракул вернет NotFound
	breached, err := r.oracle.IsBreached(ctx, p.ShipmentID)
	if err != nil {
		return err
	}
	if !breached {
		return fmt.Errorf("%w: no breach detected on shipment %s", domain.ErrPreconditionFailed, p.ShipmentID)
	}

	if err := r.store.SavePolicy(ctx, work); err != nil {
		return fmt.Errorf("insurance: failed to persist claim: %w", err)
	}
	r.policies[policyID] = work

	r.metrics.OperationsTotal.WithLabelValues("file_claim").Inc()
	r.auditor.Record(audit.Event{
		ID:         uuid.New().String(),
		TraceID:    infra.TraceIDFromContext(ctx),
		Kind:       audit.EventClaimFiled,
		Actor:      actor,
		ShipmentID: p.ShipmentID,
		PolicyID:   policyID,
	})
	return nil
}

// ApproveClaim — решение администратора. Breach перепроверяется у оракула
// и в момент решения: оракул — единственный источник правды в каждой
// точке принятия решения, не только при подаче.
func (r *PolicyRegistry) ApproveClaim(ctx context.Context, actor, policyID string) error {
	if err := r.acl.RequireActive(); err != nil {
		return err
	}
	if err := r.acl.Require(domain.RoleAdministrator, actor); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.policies[policyID]
	if !ok {
		return fmt.Errorf("%w: policy %s", domain.ErrNotFound, policyID)
	}

	work := p.Clone()
	if err := work.Approve(); err != nil {
		return err
	}

	breached, err := r.oracle.IsBreached(ctx, p.ShipmentID)
	if err != nil {
		return err
	}
	if !breached {
		return fmt.Errorf("%w: breach is no longer confirmed on shipment %s", domain.ErrPreconditionFailed, p.ShipmentID)
	}

	if err := r.store.SavePolicy(ctx, work); err != nil {
		return fmt.Errorf("insurance: failed to persist approval: %w", err)
	}
	r.policies[policyID] = work

	r.metrics.OperationsTotal.WithLabelValues("approve_claim").Inc()
	r.auditor.Record(audit.Event{
		ID:         uuid.New().String(),
		TraceID:    infra.TraceIDFromContext(ctx),
		Kind:       audit.EventClaimApproved,
		Actor:      actor,
		ShipmentID: p.ShipmentID,
		PolicyID:   policyID,
	})
	return nil
}

// DeclineClaim сбрасывает isClaimed. Полис остается активным и с оплаченной
// премией — держатель вправе подать заявку снова. После approve отклонение
// уже невозможно.
func (r *PolicyRegistry) DeclineClaim(ctx context.Context, actor, policyID string) error {
	if err := r.acl.RequireActive(); err != nil {
		return err
	}
	if err := r.acl.Require(domain.RoleAdministrator, actor); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.policies[policyID]
	if !ok {
		return fmt.Errorf("%w: policy %s", domain.ErrNotFound, policyID)
	}

	work := p.Clone()
	if err := work.Decline(); err != nil {
		return err
	}

	if err := r.store.SavePolicy(ctx, work); err != nil {
		return fmt.Errorf("insurance: failed to persist decline: %w", err)
	}
	r.policies[policyID] = work

	r.metrics.OperationsTotal.WithLabelValues("decline_claim").Inc()
	r.auditor.Record(audit.Event{
		ID:       uuid.New().String(),
		TraceID:  infra.TraceIDFromContext(ctx),
		Kind:     audit.EventClaimDeclined,
		Actor:    actor,
		PolicyID: policyID,
	})
	return nil
}

// PayClaim — протокол расчета (§ самый горячий участок системы), по шагам:
//  1. Валидация состояния полиса (active && claimed && approved).
//  2. Резерв средств в казначействе (InsufficientFunds — без мутаций).
//  3. Commit ДО перевода: полис закрывается, повторный/реентерабельный
//     вызов уже видит isActive == false.
//  4. Внешний перевод — единственная точка подвеса.
//  5. При отказе перевода — компенсирующий откат шагов 2-3 целиком.
func (r *PolicyRegistry) PayClaim(ctx context.Context, actor, policyID string) error {
	if err := r.acl.RequireActive(); err != nil {
		return err
	}
	if err := r.acl.Require(domain.RoleAdministrator, actor); err != nil {
		return err
	}

	// Шаг 1 + установка settlement-guard
	r.mu.Lock()
	p, ok := r.policies[policyID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: policy %s", domain.ErrNotFound, policyID)
	}
	if _, busy := r.settling[policyID]; busy {
		r.mu.Unlock()
		return fmt.Errorf("%w: settlement for policy %s is already in progress", domain.ErrInvalidState, policyID)
	}
	if !p.Payable() {
		r.mu.Unlock()
		return fmt.Errorf("%w: policy %s is not payable", domain.ErrInvalidState, policyID)
	}
	r.settling[policyID] = struct{}{}
	holder, amount := p.Holder, p.ClaimAmount
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.settling, policyID)
		r.mu.Unlock()
	}()

	// Шаг 2: резерв средств. При нехватке пул и полис остаются нетронутыми.
	if err := r.treasury.Reserve(ctx, amount); err != nil {
		return err
	}

	// Шаг 3: закрываем полис ДО перевода и фиксируем в БД
	r.mu.Lock()
	if err := p.Close(); err != nil {
		r.mu.Unlock()
		r.treasury.Release(ctx, amount)
		return err
	}
	if err := r.store.SavePolicy(ctx, p); err != nil {
		p.Reopen()
		r.mu.Unlock()
		r.treasury.Release(ctx, amount)
		return fmt.Errorf("insurance: failed to persist settlement commit: %w", err)
	}
	r.mu.Unlock()

	// Шаг 4: внешний перевод. Реентерабельный PayClaim отсюда и до конца
	// видит закрытый полис (и settling-маркер) — InvalidState.
	if err := r.treasury.Transfer(ctx, holder, amount); err != nil {
		// Шаг 5: полный откат, как будто вызова не было
		r.mu.Lock()
		p.Reopen()
		if perr := r.store.SavePolicy(ctx, p); perr != nil {
			r.logger.Error("settlement rollback persist failed", zap.Error(perr), zap.String("policy", policyID))
		}
		r.mu.Unlock()
		r.treasury.Release(ctx, amount)
		return err
	}

	r.metrics.OperationsTotal.WithLabelValues("pay_claim").Inc()
	traceID := infra.TraceIDFromContext(ctx)
	r.auditor.Record(audit.Event{
		ID:       uuid.New().String(),
		TraceID:  traceID,
		Kind:     audit.EventClaimPaid,
		Actor:    actor,
		PolicyID: policyID,
		Fields:   map[string]interface{}{"payee": holder, "amount": amount},
	})
	r.auditor.Record(audit.Event{
		ID:       uuid.New().String(),
		TraceID:  traceID,
		Kind:     audit.EventPolicyDeactivated,
		Actor:    actor,
		PolicyID: policyID,
	})
	r.logger.Info("claim settled",
		zap.String("policy", policyID), zap.String("payee", holder), zap.Int64("amount", amount))
	return nil
}

// GetPolicy возвращает read-проекцию; деактивированные полисы остаются доступны
func (r *PolicyRegistry) GetPolicy(ctx context.Context, policyID string) (*domain.InsurancePolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[policyID]
	if !ok {
		return nil, fmt.Errorf("%w: policy %s", domain.ErrNotFound, policyID)
	}
	return p.Clone(), nil
}
