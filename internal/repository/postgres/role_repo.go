package postgres

import (
	"context"
	"fmt"

	"github.com/meditrack/coldchain/internal/access"
	"github.com/meditrack/coldchain/internal/domain"
)

// GetAllAssignments — холодная загрузка таблицы ролей при старте
func (r *Repo) GetAllAssignments(ctx context.Context) ([]access.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT actor_id, role FROM role_assignments`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query role assignments: %w", err)
	}
	defer rows.Close()

	results := make([]access.Assignment, 0)
	for rows.Next() {
		var actor, role string
		if err := rows.Scan(&actor, &role); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan role assignment: %w", err)
		}
		results = append(results, access.Assignment{Actor: actor, Role: domain.Role(role)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// SaveAssignment идемпотентно выдает роль
func (r *Repo) SaveAssignment(ctx context.Context, a access.Assignment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_assignments (actor_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		a.Actor, string(a.Role),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save role assignment: %w", err)
	}
	return nil
}

// DeleteAssignment снимает роль
func (r *Repo) DeleteAssignment(ctx context.Context, a access.Assignment) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE actor_id = $1 AND role = $2`,
		a.Actor, string(a.Role),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete role assignment: %w", err)
	}
	return nil
}
