package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShipmentValidation(t *testing.T) {
	_, err := NewShipment("", "sender", "receiver", 2, 8)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewShipment("shp-1", "sender", "", 2, 8)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Вырожденный коридор min >= max
	_, err = NewShipment("shp-1", "sender", "receiver", 8, 8)
	assert.ErrorIs(t, err, ErrInvalidInput)

	s, err := NewShipment("shp-1", "sender", "receiver", 2, 8)
	require.NoError(t, err)
	assert.False(t, s.Delivered)
	assert.False(t, s.Breached)
	assert.Empty(t, s.Readings)
}

func TestAppendReadingBreachIsMonotonic(t *testing.T) {
	s, err := NewShipment("shp-1", "sender", "receiver", 2, 8)
	require.NoError(t, err)

	// Границы коридора включительны
	breached, err := s.AppendReading(TemperatureReading{Temperature: 2.0}, 100, 128)
	require.NoError(t, err)
	assert.False(t, breached)

	breached, err = s.AppendReading(TemperatureReading{Temperature: 8.0}, 100, 128)
	require.NoError(t, err)
	assert.False(t, breached)

	// Выход за коридор фиксирует breach
	breached, err = s.AppendReading(TemperatureReading{Temperature: 12.5}, 100, 128)
	require.NoError(t, err)
	assert.True(t, breached)
	assert.True(t, s.Breached)

	// Возврат в коридор breach НЕ снимает
	breached, err = s.AppendReading(TemperatureReading{Temperature: 5.0}, 100, 128)
	require.NoError(t, err)
	assert.False(t, breached)
	assert.True(t, s.Breached)

	assert.Len(t, s.Readings, 4)
}

func TestAppendReadingCaps(t *testing.T) {
	s, err := NewShipment("shp-1", "sender", "receiver", 2, 8)
	require.NoError(t, err)

	_, err = s.AppendReading(TemperatureReading{Temperature: 5}, 2, 128)
	require.NoError(t, err)
	_, err = s.AppendReading(TemperatureReading{Temperature: 5}, 2, 128)
	require.NoError(t, err)

	// Журнал заполнен
	_, err = s.AppendReading(TemperatureReading{Temperature: 5}, 2, 128)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Len(t, s.Readings, 2)

	// Слишком длинная GPS-строка
	_, err = s.AppendReading(TemperatureReading{Temperature: 5, Location: "xxxxxxxxxxx"}, 100, 10)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestMarkDeliveredIsTerminal(t *testing.T) {
	s, err := NewShipment("shp-1", "sender", "receiver", 2, 8)
	require.NoError(t, err)

	require.NoError(t, s.MarkDelivered())
	assert.ErrorIs(t, s.MarkDelivered(), ErrInvalidState)

	// После доставки телеметрия заморожена
	_, err = s.AppendReading(TemperatureReading{Temperature: 5}, 100, 128)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestShipmentCloneIsDeep(t *testing.T) {
	s, err := NewShipment("shp-1", "sender", "receiver", 2, 8)
	require.NoError(t, err)
	_, err = s.AppendReading(TemperatureReading{Temperature: 5}, 100, 128)
	require.NoError(t, err)

	cp := s.Clone()
	cp.Readings[0].Temperature = 99

	assert.Equal(t, 5.0, s.Readings[0].Temperature)
}
