package domain

import (
	"fmt"
	"time"
)

// TemperatureReading — одно показание телеметрии, присланное oracle-ролью.
// Записи append-only: однажды записанное показание не редактируется.
type TemperatureReading struct {
	Temperature float64   `json:"temperature"`
	Location    string    `json:"location"`
	Timestamp   time.Time `json:"timestamp"`
}

// Shipment — отправление под холодовой цепью (cold chain custody).
// Пороговые значения снимаются (snapshot) с глобальных дефолтов в момент
// создания: смена дефолтов не влияет на уже зарегистрированные отправления.
type Shipment struct {
	ID       string `json:"id"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"` // Единственный актор, который может отметить доставку

	ThresholdMin float64 `json:"threshold_min"`
	ThresholdMax float64 `json:"threshold_max"`

	// Монотонные флаги: false -> true, обратного пути нет
	Delivered bool `json:"is_delivered"`
	Breached  bool `json:"is_breached"`

	Readings []TemperatureReading `json:"readings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewShipment валидирует входные данные и снимает снапшот порогов
func NewShipment(id, sender, receiver string, thresholdMin, thresholdMax float64) (*Shipment, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: shipment id is empty", ErrInvalidInput)
	}
	if receiver == "" {
		return nil, fmt.Errorf("%w: receiver identity is empty", ErrInvalidInput)
	}
	if thresholdMin >= thresholdMax {
		return nil, fmt.Errorf("%w: threshold min %.2f >= max %.2f", ErrInvalidInput, thresholdMin, thresholdMax)
	}

	now := time.Now()
	return &Shipment{
		ID:           id,
		Sender:       sender,
		Receiver:     receiver,
		ThresholdMin: thresholdMin,
		ThresholdMax: thresholdMax,
		Readings:     make([]TemperatureReading, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// InRange сообщает, укладывается ли температура в пороговый коридор
func (s *Shipment) InRange(temperature float64) bool {
	return temperature >= s.ThresholdMin && temperature <= s.ThresholdMax
}

// AppendReading проверяет guards конечного автомата и дописывает показание.
// Возвращает breachedNow = true, если именно это показание перевело
// отправление в состояние breach (для эмиссии breach-события ровно один раз
// недостаточно — флаг монотонный, событие шлем на каждое нарушение).
func (s *Shipment) AppendReading(r TemperatureReading, maxLogEntries, maxGPSLen int) (breachedNow bool, err error) {
	if s.Delivered {
		return false, fmt.Errorf("%w: shipment %s already delivered, readings are frozen", ErrInvalidState, s.ID)
	}
	if len(s.Readings) >= maxLogEntries {
		return false, fmt.Errorf("%w: shipment %s reached the cap of %d readings", ErrLimitExceeded, s.ID, maxLogEntries)
	}
	if len(r.Location) > maxGPSLen {
		return false, fmt.Errorf("%w: location string exceeds %d bytes", ErrLimitExceeded, maxGPSLen)
	}

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	s.Readings = append(s.Readings, r)
	s.UpdatedAt = time.Now()

	if !s.InRange(r.Temperature) {
		s.Breached = true // Монотонно: обратно не сбрасывается
		return true, nil
	}
	return false, nil
}

// MarkDelivered — терминальный переход. Повторный вызов отклоняется,
// запись остается нетронутой.
func (s *Shipment) MarkDelivered() error {
	if s.Delivered {
		return fmt.Errorf("%w: shipment %s already delivered", ErrInvalidState, s.ID)
	}
	s.Delivered = true
	s.UpdatedAt = time.Now()
	return nil
}

// Clone возвращает глубокую копию для read-проекций,
// чтобы хендлеры не держали ссылку на живую запись реестра
func (s *Shipment) Clone() *Shipment {
	cp := *s
	cp.Readings = make([]TemperatureReading, len(s.Readings))
	copy(cp.Readings, s.Readings)
	return &cp
}
