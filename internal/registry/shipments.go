package registry

/*
Файл shipments.go реализует реестр отправлений: регистрация, прием
телеметрии с детекцией нарушений холодовой цепи, финальность доставки.
Источник правды для инвариантов — RAM-таблица под единственным писателем
(мьютекс на таблицу = сериализованная транзакционная модель); PostgreSQL —
долговременное хранилище, write-through после проверки guards. Если запись
в БД не удалась, RAM не мутируется — эффект вызова «все или ничего».
*/

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meditrack/coldchain/internal/access"
	"github.com/meditrack/coldchain/internal/audit"
	"github.com/meditrack/coldchain/internal/domain"
	"github.com/meditrack/coldchain/internal/infra"
)

// Store описывает требования реестра к долговременному хранилищу
type Store interface {
	SaveShipment(ctx context.Context, s *domain.Shipment) error
	AppendReading(ctx context.Context, shipmentID string, r domain.TemperatureReading, breached bool) error
	MarkDelivered(ctx context.Context, shipmentID string) error
	GetAllShipments(ctx context.Context) ([]domain.Shipment, error)
}

// Limits — снимок конфигурации cap-ов телеметрии
type Limits struct {
	MaxLogEntries int
	MaxGPSLen     int
}

type ShipmentRegistry struct {
	mu        sync.RWMutex
	shipments map[string]*domain.Shipment

	// Глобальные дефолты порогов; снимаются в снапшот при регистрации.
	// Смена через UpdateDefaultThresholds не трогает существующие записи.
	defaultMin float64
	defaultMax float64

	limits  Limits
	acl     *access.Control
	store   Store
	auditor audit.Sink
	logger  *zap.Logger
	metrics *infra.Metrics
}

func NewShipmentRegistry(
	acl *access.Control,
	store Store,
	auditor audit.Sink,
	logger *zap.Logger,
	metrics *infra.Metrics,
	cfg infra.ShippingConfig,
) *ShipmentRegistry {
	return &ShipmentRegistry{
		shipments:  make(map[string]*domain.Shipment),
		defaultMin: cfg.DefaultMinTemp,
		defaultMax: cfg.DefaultMaxTemp,
		limits:     Limits{MaxLogEntries: cfg.MaxLogEntries, MaxGPSLen: cfg.MaxGPSLen},
		acl:        acl,
		store:      store,
		auditor:    auditor,
		logger:     logger.Named("registry"),
		metrics:    metrics,
	}
}

// Warmup выполняет холодную загрузку таблицы отправлений из БД
func (r *ShipmentRegistry) Warmup(ctx context.Context) error {
	rows, err := r.store.GetAllShipments(ctx)
	if err != nil {
		return fmt.Errorf("registry: cold load failed: %w", err)
	}
	r.mu.Lock()
	for i := range rows {
		s := rows[i]
		r.shipments[s.ID] = &s
	}
	r.mu.Unlock()
	r.logger.Info("shipment table loaded", zap.Int("shipments", len(rows)))
	return nil
}

// RegisterShipment создает отправление. Только supplier-роль.
// Пороги снимаются с текущих глобальных дефолтов.
func (r *ShipmentRegistry) RegisterShipment(ctx context.Context, actor, id, sender, receiver string) (*domain.Shipment, error) {
	if err := r.acl.RequireActive(); err != nil {
		return nil, err
	}
	if err := r.acl.Require(domain.RoleSupplier, actor); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.shipments[id]; ok {
		return nil, fmt.Errorf("%w: shipment %s", domain.ErrAlreadyExists, id)
	}

	s, err := domain.NewShipment(id, sender, receiver, r.defaultMin, r.defaultMax)
	if err != nil {
		return nil, err
	}

	if err := r.store.SaveShipment(ctx, s); err != nil {
		return nil, fmt.Errorf("registry: failed to persist shipment: %w", err)
	}
	r.shipments[id] = s

	r.metrics.OperationsTotal.WithLabelValues("register_shipment").Inc()
	r.auditor.Record(audit.Event{
		ID:         uuid.New().String(),
		TraceID:    infra.TraceIDFromContext(ctx),
		Kind:       audit.EventShipmentRegistered,
		Actor:      actor,
		ShipmentID: id,
		Fields: map[string]interface{}{
			"sender":        sender,
			"receiver":      receiver,
			"threshold_min": s.ThresholdMin,
			"threshold_max": s.ThresholdMax,
		},
	})
	r.logger.Info("shipment registered",
		zap.String("id", id), zap.String("sender", sender), zap.String("receiver", receiver))

	return s.Clone(), nil
}

// LogReading принимает показание от oracle-роли и применяет детекцию breach.
// Breach монотонный: однажды нарушенное отправление обратно не «чинится».
// Порядок событий внутри вызова фиксирован: breach_detected раньше reading_logged.
func (r *ShipmentRegistry) LogReading(ctx context.Context, actor, shipmentID, location string, temperature float64) error {
	if err := r.acl.RequireActive(); err != nil {
		return err
	}
	if err := r.acl.Require(domain.RoleOracle, actor); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.shipments[shipmentID]
	if !ok {
		return fmt.Errorf("%w: shipment %s", domain.ErrNotFound, shipmentID)
	}

	// Guards проверяем на копии: при отказе хранилища запись остается нетронутой
	work := s.Clone()
	reading := domain.TemperatureReading{Temperature: temperature, Location: location}
	breachedNow, err := work.AppendReading(reading, r.limits.MaxLogEntries, r.limits.MaxGPSLen)
	if err != nil {
		return err
	}

	persisted := work.Readings[len(work.Readings)-1]
	if err := r.store.AppendReading(ctx, shipmentID, persisted, work.Breached); err != nil {
		return fmt.Errorf("registry: failed to persist reading: %w", err)
	}
	r.shipments[shipmentID] = work

	r.metrics.OperationsTotal.WithLabelValues("log_reading").Inc()
	traceID := infra.TraceIDFromContext(ctx)

	if breachedNow {
		r.metrics.BreachesTotal.Inc()
		r.auditor.Record(audit.Event{
			ID:         uuid.New().String(),
			TraceID:    traceID,
			Kind:       audit.EventBreachDetected,
			Actor:      actor,
			ShipmentID: shipmentID,
			Fields: map[string]interface{}{
				"temperature":   temperature,
				"threshold_min": work.ThresholdMin,
				"threshold_max": work.ThresholdMax,
			},
		})
		r.logger.Warn("cold chain breach detected",
			zap.String("shipment", shipmentID), zap.Float64("temperature", temperature))
	}

	// data logged эмитится всегда, независимо от breach
	r.auditor.Record(audit.Event{
		ID:         uuid.New().String(),
		TraceID:    traceID,
		Kind:       audit.EventReadingLogged,
		Actor:      actor,
		ShipmentID: shipmentID,
		Fields: map[string]interface{}{
			"temperature": temperature,
			"location":    location,
		},
	})
	return nil
}

// MarkDelivered — только получатель отправления. Терминально для телеметрии.
func (r *ShipmentRegistry) MarkDelivered(ctx context.Context, actor, shipmentID string) error {
	if err := r.acl.RequireActive(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.shipments[shipmentID]
	if !ok {
		return fmt.Errorf("%w: shipment %s", domain.ErrNotFound, shipmentID)
	}
	if s.Receiver != actor {
		return fmt.Errorf("%w: only the receiver may mark delivery", domain.ErrUnauthorized)
	}

	work := s.Clone()
	if err := work.MarkDelivered(); err != nil {
		return err
	}
	if err := r.store.MarkDelivered(ctx, shipmentID); err != nil {
		return fmt.Errorf("registry: failed to persist delivery: %w", err)
	}
	r.shipments[shipmentID] = work

	r.metrics.OperationsTotal.WithLabelValues("mark_delivered").Inc()
	r.auditor.Record(audit.Event{
		ID:         uuid.New().String(),
		TraceID:    infra.TraceIDFromContext(ctx),
		Kind:       audit.EventShipmentDelivered,
		Actor:      actor,
		ShipmentID: shipmentID,
	})
	r.logger.Info("shipment delivered", zap.String("shipment", shipmentID))
	return nil
}

// IsBreached — чистое чтение без побочных эффектов.
// Ровно эта сигнатура отдается страховому реестру как BreachOracleLink.
func (r *ShipmentRegistry) IsBreached(ctx context.Context, shipmentID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.shipments[shipmentID]
	if !ok {
		return false, fmt.Errorf("%w: shipment %s", domain.ErrNotFound, shipmentID)
	}
	return s.Breached, nil
}

// GetShipment возвращает read-проекцию полной записи
func (r *ShipmentRegistry) GetShipment(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.shipments[shipmentID]
	if !ok {
		return nil, fmt.Errorf("%w: shipment %s", domain.ErrNotFound, shipmentID)
	}
	return s.Clone(), nil
}

// UpdateDefaultThresholds меняет глобальные дефолты. Только администратор.
// Действует исключительно на отправления, зарегистрированные позже.
func (r *ShipmentRegistry) UpdateDefaultThresholds(ctx context.Context, actor string, min, max float64) error {
	if err := r.acl.RequireActive(); err != nil {
		return err
	}
	if err := r.acl.Require(domain.RoleAdministrator, actor); err != nil {
		return err
	}
	if min >= max {
		return fmt.Errorf("%w: threshold min %.2f >= max %.2f", domain.ErrInvalidInput, min, max)
	}

	r.mu.Lock()
	r.defaultMin = min
	r.defaultMax = max
	r.mu.Unlock()

	r.auditor.Record(audit.Event{
		ID:      uuid.New().String(),
		TraceID: infra.TraceIDFromContext(ctx),
		Kind:    audit.EventThresholdsUpdated,
		Actor:   actor,
		Fields:  map[string]interface{}{"min": min, "max": max},
	})
	r.logger.Info("default thresholds updated", zap.Float64("min", min), zap.Float64("max", max))
	return nil
}
