package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// Repo — общий репозиторий платформы поверх пула database/sql.
// Методы по доменам разнесены по файлам: shipment_repo.go, policy_repo.go,
// role_repo.go, treasury_repo.go, user_repo.go, audit_repo.go.
type Repo struct {
	db *sql.DB
}

// NewRepo открывает пул подключений. Доступность базы проверяется
// отдельно через Ping в main (с ретраями на старте).
func NewRepo(connString string, maxConns int) (*Repo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Repo{db: db}, nil
}

// Ping проверяет доступность базы при старте
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close закрывает пул
func (r *Repo) Close() error {
	return r.db.Close()
}
