package postgres

/*
Файл policy_repo.go — долговременное хранение страховых полисов.
SavePolicy — upsert: используется и при выпуске, и на каждом переходе
конечного автомата (премия, заявка, approve/decline, расчет).
*/

import (
	"context"
	"fmt"

	"github.com/meditrack/coldchain/internal/domain"
)

// SavePolicy фиксирует текущее состояние полиса
func (r *Repo) SavePolicy(ctx context.Context, p *domain.InsurancePolicy) error {
	query := `
		INSERT INTO policies (id, shipment_id, holder, premium_amount, claim_amount,
		                      active, premium_paid, claimed, claim_approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			premium_paid = EXCLUDED.premium_paid,
			claimed = EXCLUDED.claimed,
			claim_approved = EXCLUDED.claim_approved,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.ShipmentID, p.Holder, p.PremiumAmount, p.ClaimAmount,
		p.Active, p.PremiumPaid, p.Claimed, p.ClaimApproved, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save policy: %w", err)
	}
	return nil
}

// GetAllPolicies выполняет холодную загрузку всех полисов при старте.
// Деактивированные тоже: они остаются доступны на чтение пожизненно.
func (r *Repo) GetAllPolicies(ctx context.Context) ([]domain.InsurancePolicy, error) {
	query := `
		SELECT id, shipment_id, holder, premium_amount, claim_amount,
		       active, premium_paid, claimed, claim_approved, created_at, updated_at
		FROM policies`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query policies: %w", err)
	}
	defer rows.Close()

	var results []domain.InsurancePolicy
	for rows.Next() {
		var p domain.InsurancePolicy
		if err := rows.Scan(&p.ID, &p.ShipmentID, &p.Holder, &p.PremiumAmount, &p.ClaimAmount,
			&p.Active, &p.PremiumPaid, &p.Claimed, &p.ClaimApproved, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan policy: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
