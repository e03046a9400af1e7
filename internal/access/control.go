package access

/*
Файл control.go реализует AccessControl — таблицу ролей и глобальный флаг
паузы. Горячий путь (HasRole/IsPaused) работает только с RAM: карта под
RWMutex, холодная загрузка из PostgreSQL при старте, синхронизация между
инстансами через Redis Pub/Sub. Личность вызывающего всегда передается
явным аргументом — никаких неявных «current caller».
*/

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meditrack/coldchain/internal/audit"
	"github.com/meditrack/coldchain/internal/domain"
	"github.com/meditrack/coldchain/internal/infra"
)

// Assignment — пара (актор, роль) из таблицы ролей
type Assignment struct {
	Actor string
	Role  domain.Role
}

// Store описывает требования к долговременному хранилищу ролей
type Store interface {
	GetAllAssignments(ctx context.Context) ([]Assignment, error)
	SaveAssignment(ctx context.Context, a Assignment) error
	DeleteAssignment(ctx context.Context, a Assignment) error
}

type Control struct {
	mu     sync.RWMutex
	roles  map[domain.Role]map[string]struct{}
	paused bool

	store   Store
	rdb     *redis.Client // nil => одноинстансный режим, без фан-аута сигналов
	auditor audit.Sink
	logger  *zap.Logger
}

// NewControl собирает таблицу ролей. adminActor — bootstrap-администратор:
// роль administrator не выдается через API, только отсюда и из БД.
func NewControl(store Store, rdb *redis.Client, auditor audit.Sink, logger *zap.Logger, adminActor string) *Control {
	c := &Control{
		roles:   make(map[domain.Role]map[string]struct{}),
		store:   store,
		rdb:     rdb,
		auditor: auditor,
		logger:  logger.Named("access"),
	}
	if adminActor != "" {
		c.apply(adminActor, domain.RoleAdministrator, true)
	}
	return c
}

// HasRole — горячий путь, только RAM
func (c *Control) HasRole(role domain.Role, actor string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.roles[role][actor]
	return ok
}

// IsPaused — горячий путь, только RAM
func (c *Control) IsPaused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// RequireActive возвращает ErrInvalidState, пока сервис на паузе.
// Вызывается в начале каждой мутирующей операции других компонентов.
func (c *Control) RequireActive() error {
	if c.IsPaused() {
		return fmt.Errorf("%w: service is paused", domain.ErrInvalidState)
	}
	return nil
}

// Require проверяет роль и возвращает ErrUnauthorized при отказе
func (c *Control) Require(role domain.Role, actor string) error {
	if !c.HasRole(role, actor) {
		return fmt.Errorf("%w: actor %q lacks role %q", domain.ErrUnauthorized, actor, role)
	}
	return nil
}

// Grant выдает роль target-актору. Только администратор; только supplier/oracle.
// Повторная выдача — no-op (идемпотентность, как у паузы).
func (c *Control) Grant(ctx context.Context, actor, target string, role domain.Role) error {
	if err := c.Require(domain.RoleAdministrator, actor); err != nil {
		return err
	}
	if target == "" {
		return fmt.Errorf("%w: target actor is empty", domain.ErrInvalidInput)
	}
	if !role.Grantable() {
		return fmt.Errorf("%w: role %q cannot be granted through the API", domain.ErrInvalidInput, role)
	}

	if c.HasRole(role, target) {
		return nil
	}

	if err := c.store.SaveAssignment(ctx, Assignment{Actor: target, Role: role}); err != nil {
		return fmt.Errorf("access: failed to persist role grant: %w", err)
	}
	c.apply(target, role, true)
	c.broadcastRole(ctx, target, role, true)

	c.auditor.Record(audit.Event{
		ID:      uuid.New().String(),
		TraceID: infra.TraceIDFromContext(ctx),
		Kind:    audit.EventRoleGranted,
		Actor:   actor,
		Fields:  map[string]interface{}{"target": target, "role": string(role)},
	})
	return nil
}

// Revoke снимает роль. Отзыв несуществующей роли — no-op.
func (c *Control) Revoke(ctx context.Context, actor, target string, role domain.Role) error {
	if err := c.Require(domain.RoleAdministrator, actor); err != nil {
		return err
	}
	if !role.Grantable() {
		return fmt.Errorf("%w: role %q cannot be revoked through the API", domain.ErrInvalidInput, role)
	}

	if !c.HasRole(role, target) {
		return nil
	}

	if err := c.store.DeleteAssignment(ctx, Assignment{Actor: target, Role: role}); err != nil {
		return fmt.Errorf("access: failed to persist role revoke: %w", err)
	}
	c.apply(target, role, false)
	c.broadcastRole(ctx, target, role, false)

	c.auditor.Record(audit.Event{
		ID:      uuid.New().String(),
		TraceID: infra.TraceIDFromContext(ctx),
		Kind:    audit.EventRoleRevoked,
		Actor:   actor,
		Fields:  map[string]interface{}{"target": target, "role": string(role)},
	})
	return nil
}

// Pause останавливает все мутирующие операции платформы.
// Идемпотентна, обратима, ничего не разрушает.
func (c *Control) Pause(ctx context.Context, actor string) error {
	return c.setPaused(ctx, actor, true)
}

// Unpause снимает паузу
func (c *Control) Unpause(ctx context.Context, actor string) error {
	return c.setPaused(ctx, actor, false)
}

func (c *Control) setPaused(ctx context.Context, actor string, paused bool) error {
	if err := c.Require(domain.RoleAdministrator, actor); err != nil {
		return err
	}

	c.mu.Lock()
	changed := c.paused != paused
	c.paused = paused
	c.mu.Unlock()

	if !changed {
		return nil
	}

	if c.rdb != nil {
		if paused {
			if err := c.rdb.Set(ctx, infra.RedisKeyPaused, "1", 0).Err(); err != nil {
				c.logger.Error("failed to persist pause flag", zap.Error(err))
			}
		} else {
			if err := c.rdb.Del(ctx, infra.RedisKeyPaused).Err(); err != nil {
				c.logger.Error("failed to clear pause flag", zap.Error(err))
			}
		}
		signal := "off"
		if paused {
			signal = "on"
		}
		if err := c.rdb.Publish(ctx, infra.RedisChanPauseSignal, signal).Err(); err != nil {
			c.logger.Error("failed to broadcast pause signal", zap.Error(err))
		}
	}

	kind := audit.EventServiceResumed
	if paused {
		kind = audit.EventServicePaused
	}
	c.auditor.Record(audit.Event{
		ID:      uuid.New().String(),
		TraceID: infra.TraceIDFromContext(ctx),
		Kind:    kind,
		Actor:   actor,
	})
	c.logger.Info("pause flag changed", zap.Bool("paused", paused), zap.String("actor", actor))
	return nil
}

// apply — внутренняя мутация RAM-таблицы (используется и слушателем сигналов)
func (c *Control) apply(actor string, role domain.Role, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		if c.roles[role] == nil {
			c.roles[role] = make(map[string]struct{})
		}
		c.roles[role][actor] = struct{}{}
	} else {
		delete(c.roles[role], actor)
	}
}

func (c *Control) applyPause(paused bool) {
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
}

func (c *Control) broadcastRole(ctx context.Context, actor string, role domain.Role, on bool) {
	if c.rdb == nil {
		return
	}
	key := infra.RoleSetKey(string(role))
	var err error
	if on {
		err = c.rdb.SAdd(ctx, key, actor).Err()
	} else {
		err = c.rdb.SRem(ctx, key, actor).Err()
	}
	if err != nil {
		c.logger.Error("failed to sync role set in redis", zap.Error(err))
	}

	signal := fmt.Sprintf("%s:%s:off", actor, role)
	if on {
		signal = fmt.Sprintf("%s:%s:on", actor, role)
	}
	if err := c.rdb.Publish(ctx, infra.RedisChanRoleSignal, signal).Err(); err != nil {
		c.logger.Error("failed to broadcast role signal", zap.Error(err))
	}
}

// Warmup выполняет холодную загрузку таблицы ролей из PostgreSQL,
// подхватывает флаг паузы и прогревает Redis-множества при необходимости.
func (c *Control) Warmup(ctx context.Context) error {
	assignments, err := c.store.GetAllAssignments(ctx)
	if err != nil {
		return fmt.Errorf("access: cold load failed: %w", err)
	}

	byRole := make(map[domain.Role][]string)
	for _, a := range assignments {
		c.apply(a.Actor, a.Role, true)
		byRole[a.Role] = append(byRole[a.Role], a.Actor)
	}
	c.logger.Info("role table loaded", zap.Int("assignments", len(assignments)))

	if c.rdb == nil {
		return nil
	}

	// Пауза переживает рестарт через Redis-ключ
	exists, err := c.rdb.Exists(ctx, infra.RedisKeyPaused).Result()
	if err != nil {
		c.logger.Warn("could not read pause flag from redis", zap.Error(err))
	} else if exists > 0 {
		c.applyPause(true)
		c.logger.Warn("service starts in PAUSED state")
	}

	for role, actors := range byRole {
		if err := warmupSet(ctx, c.rdb, c.logger, actors, infra.RoleSetKey(string(role)), infra.WarmupLockKey(string(role))); err != nil {
			c.logger.Warn("role set warm-up failed", zap.String("role", string(role)), zap.Error(err))
		}
	}
	return nil
}

// warmupSet — прогрев Redis-множества из БД под распределенной блокировкой,
// чтобы при старте флота инстансов заливал только один.
func warmupSet(ctx context.Context, rdb *redis.Client, logger *zap.Logger, ids []string, redisKey, lockKey string) error {
	ok, err := rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой инстанс уже греет кэш
	}

	count, err := rdb.SCard(ctx, redisKey).Result()
	if err != nil {
		count = 0
		logger.Warn("could not check redis set size, proceeding with warm-up",
			zap.String("key", redisKey), zap.Error(err))
	}

	if count == 0 && len(ids) > 0 {
		logger.Info("redis set is empty, performing warm-up from DB",
			zap.String("key", redisKey), zap.Int("count", len(ids)))

		pipe := rdb.Pipeline()
		for _, id := range ids {
			pipe.SAdd(ctx, redisKey, id)
		}
		_, err = pipe.Exec(ctx)
		return err
	}
	return nil
}
