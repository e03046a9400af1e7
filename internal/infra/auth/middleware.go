package auth

import (
	"context"
	"net/http"

	"github.com/meditrack/coldchain/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — контракт проверки входящего токена
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.AccessClaims, error)
}

type ctxKey int

const actorIDKey ctxKey = iota

// WithActor кладет ID актора в контекст
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

// ActorFromContext достает ID актора, положенный миддлварой.
// Пустая строка — запрос прошел мимо миддлвары (так быть не должно).
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorIDKey).(string)
	return actor
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем личность в контекст; роли проверит каждый компонент сам
			ctx := WithActor(r.Context(), claims.ActorID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
