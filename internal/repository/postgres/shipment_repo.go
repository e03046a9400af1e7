package postgres

/*
Файл shipment_repo.go — долговременное хранение отправлений и телеметрии.
RAM-таблица реестра — источник правды для guards; сюда пишем write-through
после успешной проверки, отсюда — холодная загрузка при старте.
*/

import (
	"context"
	"fmt"

	"github.com/meditrack/coldchain/internal/domain"
)

// SaveShipment создает запись отправления
func (r *Repo) SaveShipment(ctx context.Context, s *domain.Shipment) error {
	query := `
		INSERT INTO shipments (id, sender, receiver, threshold_min, threshold_max, delivered, breached, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Sender, s.Receiver, s.ThresholdMin, s.ThresholdMax,
		s.Delivered, s.Breached, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert shipment: %w", err)
	}
	return nil
}

// AppendReading атомарно дописывает показание и обновляет флаг breach.
// Обе записи в одной транзакции: показание без обновленного флага
// (или наоборот) в базе оказаться не может.
func (r *Repo) AppendReading(ctx context.Context, shipmentID string, reading domain.TemperatureReading, breached bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO shipment_readings (shipment_id, temperature, location, recorded_at) VALUES ($1, $2, $3, $4)`,
		shipmentID, reading.Temperature, reading.Location, reading.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert reading: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE shipments SET breached = $1, updated_at = NOW() WHERE id = $2`,
		breached, shipmentID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update breach flag: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("postgres: shipment %s not found", shipmentID)
	}

	return tx.Commit()
}

// MarkDelivered проставляет терминальный флаг доставки
func (r *Repo) MarkDelivered(ctx context.Context, shipmentID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE shipments SET delivered = TRUE, updated_at = NOW() WHERE id = $1`,
		shipmentID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark delivered: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("postgres: shipment %s not found", shipmentID)
	}
	return nil
}

// GetAllShipments выполняет холодную загрузку всей таблицы с телеметрией
func (r *Repo) GetAllShipments(ctx context.Context) ([]domain.Shipment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sender, receiver, threshold_min, threshold_max, delivered, breached, created_at, updated_at
		FROM shipments`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query shipments: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*domain.Shipment)
	order := make([]string, 0)
	for rows.Next() {
		var s domain.Shipment
		if err := rows.Scan(&s.ID, &s.Sender, &s.Receiver, &s.ThresholdMin, &s.ThresholdMax,
			&s.Delivered, &s.Breached, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan shipment: %w", err)
		}
		s.Readings = make([]domain.TemperatureReading, 0)
		byID[s.ID] = &s
		order = append(order, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	// Телеметрию подтягиваем вторым проходом, сохраняя порядок записи
	rrows, err := r.db.QueryContext(ctx, `
		SELECT shipment_id, temperature, location, recorded_at
		FROM shipment_readings
		ORDER BY recorded_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query readings: %w", err)
	}
	defer rrows.Close()

	for rrows.Next() {
		var shipmentID string
		var reading domain.TemperatureReading
		if err := rrows.Scan(&shipmentID, &reading.Temperature, &reading.Location, &reading.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan reading: %w", err)
		}
		if s, ok := byID[shipmentID]; ok {
			s.Readings = append(s.Readings, reading)
		}
	}
	if err := rrows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	results := make([]domain.Shipment, 0, len(order))
	for _, id := range order {
		results = append(results, *byID[id])
	}
	return results, nil
}
