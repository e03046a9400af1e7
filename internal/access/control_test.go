package access

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meditrack/coldchain/internal/audit"
	"github.com/meditrack/coldchain/internal/domain"
)

type fakeRoleStore struct {
	mu          sync.Mutex
	assignments map[Assignment]struct{}
	saves       int
	deletes     int
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{assignments: make(map[Assignment]struct{})}
}

func (s *fakeRoleStore) GetAllAssignments(ctx context.Context) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Assignment, 0, len(s.assignments))
	for a := range s.assignments {
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeRoleStore) SaveAssignment(ctx context.Context, a Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a] = struct{}{}
	s.saves++
	return nil
}

func (s *fakeRoleStore) DeleteAssignment(ctx context.Context, a Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, a)
	s.deletes++
	return nil
}

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

func newTestControl(t *testing.T) (*Control, *fakeRoleStore, *captureSink) {
	t.Helper()
	store := newFakeRoleStore()
	sink := &captureSink{}
	return NewControl(store, nil, sink, zap.NewNop(), "admin"), store, sink
}

func TestBootstrapAdmin(t *testing.T) {
	c, _, _ := newTestControl(t)

	assert.True(t, c.HasRole(domain.RoleAdministrator, "admin"))
	assert.False(t, c.HasRole(domain.RoleAdministrator, "stranger"))
	assert.NoError(t, c.Require(domain.RoleAdministrator, "admin"))
	assert.ErrorIs(t, c.Require(domain.RoleAdministrator, "stranger"), domain.ErrUnauthorized)
}

func TestGrantAndRevoke(t *testing.T) {
	c, store, sink := newTestControl(t)
	ctx := context.Background()

	// Не-администратор не управляет ролями
	err := c.Grant(ctx, "stranger", "courier-1", domain.RoleOracle)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, c.Grant(ctx, "admin", "courier-1", domain.RoleOracle))
	assert.True(t, c.HasRole(domain.RoleOracle, "courier-1"))
	assert.Equal(t, 1, store.saves)

	// Повторная выдача — no-op: ни персиста, ни события
	require.NoError(t, c.Grant(ctx, "admin", "courier-1", domain.RoleOracle))
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, []string{audit.EventRoleGranted}, sink.kinds())

	require.NoError(t, c.Revoke(ctx, "admin", "courier-1", domain.RoleOracle))
	assert.False(t, c.HasRole(domain.RoleOracle, "courier-1"))

	// Отзыв несуществующей роли — no-op
	require.NoError(t, c.Revoke(ctx, "admin", "courier-1", domain.RoleOracle))
	assert.Equal(t, 1, store.deletes)
}

func TestAdministratorRoleIsNotGrantable(t *testing.T) {
	c, _, _ := newTestControl(t)
	ctx := context.Background()

	err := c.Grant(ctx, "admin", "mole", domain.RoleAdministrator)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.False(t, c.HasRole(domain.RoleAdministrator, "mole"))

	err = c.Grant(ctx, "admin", "mole", domain.Role("superuser"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = c.Grant(ctx, "admin", "", domain.RoleSupplier)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPauseSemantics(t *testing.T) {
	c, _, sink := newTestControl(t)
	ctx := context.Background()

	assert.NoError(t, c.RequireActive())

	// Пауза — только администратор
	assert.ErrorIs(t, c.Pause(ctx, "stranger"), domain.ErrUnauthorized)

	require.NoError(t, c.Pause(ctx, "admin"))
	assert.True(t, c.IsPaused())
	assert.ErrorIs(t, c.RequireActive(), domain.ErrInvalidState)

	// Идемпотентность: повторная пауза не эмитит второе событие
	require.NoError(t, c.Pause(ctx, "admin"))
	assert.Equal(t, []string{audit.EventServicePaused}, sink.kinds())

	// Чтения и управление доступом на паузе живы: Grant не ходит через RequireActive
	require.NoError(t, c.Grant(ctx, "admin", "lab-7", domain.RoleSupplier))

	require.NoError(t, c.Unpause(ctx, "admin"))
	assert.NoError(t, c.RequireActive())
}

func TestWarmupLoadsAssignments(t *testing.T) {
	store := newFakeRoleStore()
	store.assignments[Assignment{Actor: "courier-1", Role: domain.RoleOracle}] = struct{}{}
	store.assignments[Assignment{Actor: "lab-7", Role: domain.RoleSupplier}] = struct{}{}

	c := NewControl(store, nil, &captureSink{}, zap.NewNop(), "admin")
	require.NoError(t, c.Warmup(context.Background()))

	assert.True(t, c.HasRole(domain.RoleOracle, "courier-1"))
	assert.True(t, c.HasRole(domain.RoleSupplier, "lab-7"))
}
