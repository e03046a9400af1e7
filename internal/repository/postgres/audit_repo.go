package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meditrack/coldchain/internal/audit"
)

// WriteBatch сохраняет пачку событий журнала за один запрос
func (r *Repo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_log
	numFields := 8
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8)

		fields, _ := json.Marshal(e.Fields)

		vals = append(vals,
			e.ID, e.TraceID, e.Kind, e.Actor,
			e.ShipmentID, e.PolicyID, fields, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO audit_log (id, trace_id, kind, actor, shipment_id, policy_id, fields, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// FetchLogs возвращает последние записи журнала с опциональными фильтрами.
// Пустое значение фильтра означает «не фильтровать».
func (r *Repo) FetchLogs(ctx context.Context, kind, shipmentID, policyID string, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, trace_id, kind, actor, shipment_id, policy_id, fields, timestamp
		FROM audit_log WHERE 1=1`
	args := make([]interface{}, 0, 4)
	if kind != "" {
		args = append(args, kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if shipmentID != "" {
		args = append(args, shipmentID)
		query += fmt.Sprintf(" AND shipment_id = $%d", len(args))
	}
	if policyID != "" {
		args = append(args, policyID)
		query += fmt.Sprintf(" AND policy_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit log: %w", err)
	}
	defer rows.Close()

	results := make([]audit.Event, 0, limit)
	for rows.Next() {
		var e audit.Event
		var fieldsRaw []byte
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Kind, &e.Actor,
			&e.ShipmentID, &e.PolicyID, &fieldsRaw, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit event: %w", err)
		}
		if len(fieldsRaw) > 0 {
			if err := json.Unmarshal(fieldsRaw, &e.Fields); err != nil {
				return nil, fmt.Errorf("postgres: failed to decode event fields: %w", err)
			}
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
