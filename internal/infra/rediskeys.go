package infra

import "fmt"

const (
	// RedisNamespace — базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "coldchain"
)

// Ключи для Sets и флагов (состояние control-plane)
const (
	// Множества акторов по ролям: coldchain:roles:<role>:set
	redisKeyRoleSetPrefix = RedisNamespace + ":roles:"

	// Глобальная пауза: ключ существует => сервис на паузе
	RedisKeyPaused = RedisNamespace + ":paused"
)

// Каналы Pub/Sub (сигналы между инстансами)
const (
	// RedisChanRoleSignal — трансляция grant/revoke ("actor:role:on|off")
	RedisChanRoleSignal = RedisNamespace + ":roles:signal"

	// RedisChanPauseSignal — трансляция pause/unpause ("on|off")
	RedisChanPauseSignal = RedisNamespace + ":pause:signal"
)

// RoleSetKey возвращает ключ множества акторов для роли
func RoleSetKey(role string) string {
	return redisKeyRoleSetPrefix + role + ":set"
}

// WarmupLockKey — ключ распределенной блокировки прогрева кэша
func WarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
