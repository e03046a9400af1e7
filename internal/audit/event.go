package audit

import "time"

// Виды доменных событий. Имена попадают в БД и наружу в API как есть.
const (
	EventShipmentRegistered = "shipment_registered"
	EventReadingLogged      = "reading_logged"
	EventBreachDetected     = "breach_detected"
	EventShipmentDelivered  = "shipment_delivered"
	EventThresholdsUpdated  = "thresholds_updated"

	EventPolicyCreated     = "policy_created"
	EventPremiumPaid       = "premium_paid"
	EventClaimFiled        = "claim_filed"
	EventClaimApproved     = "claim_approved"
	EventClaimDeclined     = "claim_declined"
	EventClaimPaid         = "claim_paid"
	EventPolicyDeactivated = "policy_deactivated"

	EventFundsDeposited = "funds_deposited"

	EventRoleGranted    = "role_granted"
	EventRoleRevoked    = "role_revoked"
	EventServicePaused  = "service_paused"
	EventServiceResumed = "service_resumed"
)

// Event — запись журнала аудита (append-only)
type Event struct {
	ID      string `json:"id"`       // UUID события
	TraceID string `json:"trace_id"` // Сквозной ID запроса
	Kind    string `json:"kind"`     // Что произошло (константы выше)
	Actor   string `json:"actor"`    // Кто инициировал

	// Ссылки на сущности (пустые, если не применимо)
	ShipmentID string `json:"shipment_id,omitempty"`
	PolicyID   string `json:"policy_id,omitempty"`

	Fields    map[string]interface{} `json:"fields,omitempty"` // Детали (сумма, температура, роль...)
	Timestamp time.Time              `json:"timestamp"`
}

// Sink — контракт «запиши событие». Fire-and-forget: доменные компоненты
// не ждут подтверждения записи и не получают ошибок транспорта.
type Sink interface {
	Record(event Event)
}
