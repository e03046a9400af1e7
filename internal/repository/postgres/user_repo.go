package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/meditrack/coldchain/internal/domain"
)

// GetUserByUsername возвращает учетную запись оператора для логина.
// Отсутствие пользователя — ErrNotFound, чтобы сервис аутентификации
// не отличал его от неверного пароля в ответе клиенту.
func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query user: %w", err)
	}
	return &u, nil
}
