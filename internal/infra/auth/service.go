package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/meditrack/coldchain/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// TokenService выпускает RS256 токены операторам платформы
type TokenService struct {
	repo       UserProvider
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
}

func NewTokenService(repo UserProvider, privateKey *rsa.PrivateKey, tokenTTL time.Duration) *TokenService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &TokenService{
		repo:       repo,
		privateKey: privateKey,
		tokenTTL:   tokenTTL,
	}
}

func (s *TokenService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды — Postgres).
	// Ошибку не детализируем: «нет такого пользователя» и «неверный пароль»
	// снаружи неразличимы.
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка пароля (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 3. Формирование Claims: только личность, без прав.
	// Роли выдаются и отзываются живой таблицей доступа.
	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.AccessClaims{
		ActorID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "coldchain-api",
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// 4. Подпись токена закрытым ключом (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
