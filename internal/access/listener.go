package access

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meditrack/coldchain/internal/domain"
	"github.com/meditrack/coldchain/internal/infra"
)

// StartListeners подписывается на control-plane сигналы других инстансов:
// grant/revoke ролей и pause/unpause. Блокирует, запускать в горутинах.
func (c *Control) StartListeners(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	go listenResilient(ctx, c.rdb, c.logger, infra.RedisChanRoleSignal,
		func() error { return nil },
		c.onRoleSignal,
	)
	go listenResilient(ctx, c.rdb, c.logger, infra.RedisChanPauseSignal,
		func() error { return nil },
		c.onPauseSignal,
	)
}

// onRoleSignal разбирает формат "actor:role:on|off"
func (c *Control) onRoleSignal(payload string) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		c.logger.Error("invalid role signal format", zap.String("payload", payload))
		return
	}
	actor, role, state := parts[0], domain.Role(parts[1]), parts[2]
	if !role.Valid() {
		c.logger.Error("role signal for unknown role", zap.String("payload", payload))
		return
	}
	c.apply(actor, role, state == "on" || state == "true")
	c.logger.Info("role table synced from signal",
		zap.String("actor", actor), zap.String("role", string(role)), zap.String("state", state))
}

// onPauseSignal разбирает формат "on|off"
func (c *Control) onPauseSignal(payload string) {
	paused := payload == "on" || payload == "true"
	c.applyPause(paused)
	c.logger.Warn("pause flag synced from signal", zap.Bool("paused", paused))
}

// listenResilient — «живучая» подписка на канал Redis:
// переподключение с ресинком, разбор сообщений через callback.
func listenResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error,
	onMessage func(payload string),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Синхронизация при каждом успешном коннекте
		if err := onReconnect(); err != nil {
			logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				onMessage(msg.Payload)
			}
		}

		pubsub.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
