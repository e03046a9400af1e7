package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetBalance читает баланс резервного фонда. Таблица treasury — одна
// строка с фиксированным id; пустая таблица трактуется как нулевой баланс.
func (r *Repo) GetBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM treasury WHERE id = 1`).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to read treasury balance: %w", err)
	}
	return balance, nil
}

// SaveBalance фиксирует баланс после каждого движения средств
func (r *Repo) SaveBalance(ctx context.Context, balance int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO treasury (id, balance, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()`,
		balance,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save treasury balance: %w", err)
	}
	return nil
}
