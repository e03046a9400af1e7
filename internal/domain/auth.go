package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims — полезная нагрузка RS256 токена.
// Токен удостоверяет только личность (ActorID); права проверяются
// по живой таблице ролей AccessControl на каждой операции,
// поэтому отзыв роли действует мгновенно, без инвалидации токенов.
type AccessClaims struct {
	ActorID string `json:"actor_id"`
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Никогда не отдаем наружу
	CreatedAt    time.Time `json:"created_at"`
}
