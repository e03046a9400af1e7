package insurance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meditrack/coldchain/internal/access"
	"github.com/meditrack/coldchain/internal/audit"
	"github.com/meditrack/coldchain/internal/domain"
	"github.com/meditrack/coldchain/internal/infra"
)

type fakeOracle struct {
	mu       sync.Mutex
	breached map[string]bool
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{breached: make(map[string]bool)}
}

func (o *fakeOracle) set(shipmentID string, breached bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.breached[shipmentID] = breached
}

func (o *fakeOracle) IsBreached(ctx context.Context, shipmentID string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.breached[shipmentID]
	if !ok {
		return false, fmt.Errorf("%w: shipment %s", domain.ErrNotFound, shipmentID)
	}
	return b, nil
}

// fakeSettler имитирует казначейство: баланс в памяти, управляемый отказ
// перевода и перехват для реентерабельных сценариев
type fakeSettler struct {
	mu           sync.Mutex
	balance      int64
	failTransfer bool
	transfers    []int64
	onTransfer   func() // Вызывается ВНУТРИ Transfer (реентерабельная атака)
}

func (s *fakeSettler) CreditPremium(ctx context.Context, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance += amount
	return nil
}

func (s *fakeSettler) Reserve(ctx context.Context, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance < amount {
		return fmt.Errorf("%w: balance %d < claim %d", domain.ErrInsufficientFunds, s.balance, amount)
	}
	s.balance -= amount
	return nil
}

func (s *fakeSettler) Release(ctx context.Context, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance += amount
}

func (s *fakeSettler) Transfer(ctx context.Context, payee string, amount int64) error {
	if s.onTransfer != nil {
		s.onTransfer()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTransfer {
		return fmt.Errorf("%w: downstream processor error", domain.ErrTransferFailed)
	}
	s.transfers = append(s.transfers, amount)
	return nil
}

type fakePolicyStore struct {
	mu       sync.Mutex
	policies map[string]domain.InsurancePolicy
	failNext bool
}

func newFakePolicyStore() *fakePolicyStore {
	return &fakePolicyStore{policies: make(map[string]domain.InsurancePolicy)}
}

func (s *fakePolicyStore) SavePolicy(ctx context.Context, p *domain.InsurancePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("db is down")
	}
	s.policies[p.ID] = *p.Clone()
	return nil
}

func (s *fakePolicyStore) GetAllPolicies(ctx context.Context) ([]domain.InsurancePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.InsurancePolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	return out, nil
}

type fakeRoleStore struct{}

func (fakeRoleStore) GetAllAssignments(ctx context.Context) ([]access.Assignment, error) {
	return nil, nil
}
func (fakeRoleStore) SaveAssignment(ctx context.Context, a access.Assignment) error { return nil }
func (fakeRoleStore) DeleteAssignment(ctx context.Context, a access.Assignment) error { return nil }

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureSink) Record(e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Kind)
	}
	return out
}

func insuranceRig(t *testing.T) (*PolicyRegistry, *fakeOracle, *fakeSettler, *fakePolicyStore, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	acl := access.NewControl(fakeRoleStore{}, nil, sink, zap.NewNop(), "admin")
	oracle := newFakeOracle()
	settler := &fakeSettler{}
	store := newFakePolicyStore()
	reg := NewPolicyRegistry(oracle, settler, acl, store, sink, zap.NewNop(), infra.NewMetrics(nil))
	return reg, oracle, settler, store, sink
}

// preparePayable доводит полис до payable: создание, премия, breach, заявка, approve
func preparePayable(t *testing.T, reg *PolicyRegistry, oracle *fakeOracle, settler *fakeSettler) {
	t.Helper()
	ctx := context.Background()

	_, err := reg.CreatePolicy(ctx, "admin", "pol-1", "shp-1", "pharmacy-1", 1000, 50000)
	require.NoError(t, err)
	require.NoError(t, reg.PayPremium(ctx, "pharmacy-1", "pol-1", 1000))

	// Фонд пополняется депозитом поверх премии
	settler.mu.Lock()
	settler.balance += 100000
	settler.mu.Unlock()

	oracle.set("shp-1", true)
	require.NoError(t, reg.FileClaim(ctx, "pharmacy-1", "pol-1"))
	require.NoError(t, reg.ApproveClaim(ctx, "admin", "pol-1"))
}

func TestCreatePolicy(t *testing.T) {
	reg, _, _, _, _ := insuranceRig(t)
	ctx := context.Background()

	// Только администратор
	_, err := reg.CreatePolicy(ctx, "pharmacy-1", "pol-1", "shp-1", "pharmacy-1", 1000, 50000)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	p, err := reg.CreatePolicy(ctx, "admin", "pol-1", "shp-1", "pharmacy-1", 1000, 50000)
	require.NoError(t, err)
	assert.True(t, p.Active)

	// Дубликат
	_, err = reg.CreatePolicy(ctx, "admin", "pol-1", "shp-1", "pharmacy-1", 1000, 50000)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// Висячая ссылка на отправление допустима при выпуске...
	_, err = reg.CreatePolicy(ctx, "admin", "pol-dangling", "ghost", "pharmacy-1", 1000, 50000)
	require.NoError(t, err)
}

func TestPayPremium(t *testing.T) {
	reg, _, settler, _, _ := insuranceRig(t)
	ctx := context.Background()

	_, err := reg.CreatePolicy(ctx, "admin", "pol-1", "shp-1", "pharmacy-1", 1000, 50000)
	require.NoError(t, err)

	// Только держатель
	err = reg.PayPremium(ctx, "admin", "pol-1", 1000)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Ровно premium_amount
	err = reg.PayPremium(ctx, "pharmacy-1", "pol-1", 999)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, reg.PayPremium(ctx, "pharmacy-1", "pol-1", 1000))
	assert.Equal(t, int64(1000), settler.balance)

	// Двойная оплата отклоняется, пул не задваивается
	err = reg.PayPremium(ctx, "pharmacy-1", "pol-1", 1000)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, int64(1000), settler.balance)
}

func TestFileClaimRequiresBreach(t *testing.T) {
	reg, oracle, _, _, _ := insuranceRig(t)
	ctx := context.Background()

	_, err := reg.CreatePolicy(ctx, "admin", "pol-1", "shp-1", "pharmacy-1", 1000, 50000)
	require.NoError(t, err)

	// До оплаты премии заявка невозможна
	err = reg.FileClaim(ctx, "pharmacy-1", "pol-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	require.NoError(t, reg.PayPremium(ctx, "pharmacy-1", "pol-1", 1000))

	// Отправление цело — заявки нет
	oracle.set("shp-1", false)
	err = reg.FileClaim(ctx, "pharmacy-1", "pol-1")
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)

	oracle.set("shp-1", true)
	require.NoError(t, reg.FileClaim(ctx, "pharmacy-1", "pol-1"))

	p, err := reg.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.True(t, p.Claimed)
}

func TestFileClaimDanglingShipment(t *testing.T) {
	reg, _, _, _, _ := insuranceRig(t)
	ctx := context.Background()

	// ...но всплывает NotFound-ом при первом обращении к оракулу
	_, err := reg.CreatePolicy(ctx, "admin", "pol-1", "ghost", "pharmacy-1", 1000, 50000)
	require.NoError(t, err)
	require.NoError(t, reg.PayPremium(ctx, "pharmacy-1", "pol-1", 1000))

	err = reg.FileClaim(ctx, "pharmacy-1", "pol-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeclineAndRefile(t *testing.T) {
	reg, oracle, _, _, _ := insuranceRig(t)
	ctx := context.Background()

	_, err := reg.CreatePolicy(ctx, "admin", "pol-1", "shp-1", "pharmacy-1", 1000, 50000)
	require.NoError(t, err)
	require.NoError(t, reg.PayPremium(ctx, "pharmacy-1", "pol-1", 1000))
	oracle.set("shp-1", true)
	require.NoError(t, reg.FileClaim(ctx, "pharmacy-1", "pol-1"))

	// Отклонение — только администратор
	err = reg.DeclineClaim(ctx, "pharmacy-1", "pol-1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, reg.DeclineClaim(ctx, "admin", "pol-1"))
	p, err := reg.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.False(t, p.Claimed)
	assert.True(t, p.PremiumPaid) // Премия не возвращается

	// Держатель вправе подать снова и получить approve
	require.NoError(t, reg.FileClaim(ctx, "pharmacy-1", "pol-1"))
	require.NoError(t, reg.ApproveClaim(ctx, "admin", "pol-1"))

	// После approve отклонение невозможно
	err = reg.DeclineClaim(ctx, "admin", "pol-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestApproveRechecksBreach(t *testing.T) {
	reg, oracle, _, _, _ := insuranceRig(t)
	ctx := context.Background()

	_, err := reg.CreatePolicy(ctx, "admin", "pol-1", "shp-1", "pharmacy-1", 1000, 50000)
	require.NoError(t, err)
	require.NoError(t, reg.PayPremium(ctx, "pharmacy-1", "pol-1", 1000))
	oracle.set("shp-1", true)
	require.NoError(t, reg.FileClaim(ctx, "pharmacy-1", "pol-1"))

	// Оракул «передумал» между подачей и решением
	oracle.set("shp-1", false)
	err = reg.ApproveClaim(ctx, "admin", "pol-1")
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)

	p, err := reg.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.False(t, p.ClaimApproved)
}

func TestPayClaimHappyPath(t *testing.T) {
	reg, oracle, settler, _, sink := insuranceRig(t)
	ctx := context.Background()
	preparePayable(t, reg, oracle, settler)

	startBalance := settler.balance
	require.NoError(t, reg.PayClaim(ctx, "admin", "pol-1"))

	// Деньги ушли ровно один раз
	assert.Equal(t, []int64{50000}, settler.transfers)
	assert.Equal(t, startBalance-50000, settler.balance)

	// Полис закрыт, но остается доступен на чтение
	p, err := reg.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.False(t, p.Active)

	// Повторная выплата невозможна
	err = reg.PayClaim(ctx, "admin", "pol-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, []int64{50000}, settler.transfers)

	// claim_paid раньше policy_deactivated
	kinds := sink.kinds()
	paidIdx, deactIdx := -1, -1
	for i, k := range kinds {
		if k == audit.EventClaimPaid {
			paidIdx = i
		}
		if k == audit.EventPolicyDeactivated {
			deactIdx = i
		}
	}
	require.NotEqual(t, -1, paidIdx)
	assert.Greater(t, deactIdx, paidIdx)
}

func TestPayClaimInsufficientFunds(t *testing.T) {
	reg, oracle, settler, _, _ := insuranceRig(t)
	ctx := context.Background()
	preparePayable(t, reg, oracle, settler)

	// Опустошаем пул ниже суммы выплаты
	settler.mu.Lock()
	settler.balance = 100
	settler.mu.Unlock()

	err := reg.PayClaim(ctx, "admin", "pol-1")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Никаких мутаций: полис остается payable, переводов не было
	p, err := reg.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.True(t, p.Payable())
	assert.Empty(t, settler.transfers)
	assert.Equal(t, int64(100), settler.balance)
}

func TestPayClaimTransferFailureRollsBack(t *testing.T) {
	reg, oracle, settler, _, _ := insuranceRig(t)
	ctx := context.Background()
	preparePayable(t, reg, oracle, settler)

	startBalance := settler.balance
	settler.failTransfer = true

	err := reg.PayClaim(ctx, "admin", "pol-1")
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	// Полный откат: резерв возвращен, полис снова payable
	assert.Equal(t, startBalance, settler.balance)
	p, err := reg.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.True(t, p.Payable())

	// Повтор после починки процессора проходит
	settler.failTransfer = false
	require.NoError(t, reg.PayClaim(ctx, "admin", "pol-1"))
	assert.Equal(t, []int64{50000}, settler.transfers)
	assert.Equal(t, startBalance-50000, settler.balance)
}

// TestPayClaimReentrancy воспроизводит реентерабельную атаку: «процессор»
// изнутри перевода зовет PayClaim по тому же полису. Вложенный вызов обязан
// упереться в закрытый полис/settling-guard, а деньги — уйти один раз.
func TestPayClaimReentrancy(t *testing.T) {
	reg, oracle, settler, _, _ := insuranceRig(t)
	ctx := context.Background()
	preparePayable(t, reg, oracle, settler)

	var nestedErr error
	settler.onTransfer = func() {
		nestedErr = reg.PayClaim(ctx, "admin", "pol-1")
	}

	require.NoError(t, reg.PayClaim(ctx, "admin", "pol-1"))

	assert.ErrorIs(t, nestedErr, domain.ErrInvalidState)
	assert.Equal(t, []int64{50000}, settler.transfers)
}

func TestPayClaimPersistFailureReleasesReserve(t *testing.T) {
	reg, oracle, settler, store, _ := insuranceRig(t)
	ctx := context.Background()
	preparePayable(t, reg, oracle, settler)

	startBalance := settler.balance
	store.mu.Lock()
	store.failNext = true
	store.mu.Unlock()

	err := reg.PayClaim(ctx, "admin", "pol-1")
	require.Error(t, err)

	// Резерв возвращен, полис payable, перевода не было
	assert.Equal(t, startBalance, settler.balance)
	assert.Empty(t, settler.transfers)
	p, err := reg.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.True(t, p.Payable())
}

func TestWarmupRestoresPolicies(t *testing.T) {
	reg, oracle, settler, store, sink := insuranceRig(t)
	ctx := context.Background()
	preparePayable(t, reg, oracle, settler)

	// «Рестарт»: новый реестр поверх того же хранилища
	acl := access.NewControl(fakeRoleStore{}, nil, sink, zap.NewNop(), "admin")
	reborn := NewPolicyRegistry(oracle, settler, acl, store, sink, zap.NewNop(), infra.NewMetrics(nil))
	require.NoError(t, reborn.Warmup(ctx))

	p, err := reborn.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.True(t, p.Payable())

	// Расчет доступен и после рестарта
	require.NoError(t, reborn.PayClaim(ctx, "admin", "pol-1"))
}
