package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(t *testing.T) *InsurancePolicy {
	t.Helper()
	p, err := NewInsurancePolicy("pol-1", "shp-1", "holder-1", 1000, 50000)
	require.NoError(t, err)
	return p
}

func TestNewInsurancePolicyValidation(t *testing.T) {
	_, err := NewInsurancePolicy("", "shp-1", "holder", 1000, 50000)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewInsurancePolicy("pol-1", "shp-1", "", 1000, 50000)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewInsurancePolicy("pol-1", "shp-1", "holder", 0, 50000)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewInsurancePolicy("pol-1", "shp-1", "holder", 1000, -5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordPremiumExactAmount(t *testing.T) {
	p := newTestPolicy(t)

	// Недоплата и переплата отклоняются одинаково
	assert.ErrorIs(t, p.RecordPremium(999), ErrInvalidInput)
	assert.ErrorIs(t, p.RecordPremium(1001), ErrInvalidInput)
	assert.False(t, p.PremiumPaid)

	require.NoError(t, p.RecordPremium(1000))
	assert.True(t, p.PremiumPaid)

	// Двойная оплата отклоняется, а не принимается молча
	assert.ErrorIs(t, p.RecordPremium(1000), ErrInvalidState)
}

func TestClaimLifecycle(t *testing.T) {
	p := newTestPolicy(t)

	// Заявка до оплаты премии невозможна
	assert.ErrorIs(t, p.RecordClaim(), ErrInvalidState)

	require.NoError(t, p.RecordPremium(1000))
	require.NoError(t, p.RecordClaim())
	assert.ErrorIs(t, p.RecordClaim(), ErrInvalidState) // Повторная подача

	// Decline сбрасывает заявку, но не премию
	require.NoError(t, p.Decline())
	assert.False(t, p.Claimed)
	assert.True(t, p.PremiumPaid)

	// Цикл подача -> отклонение -> подача допустим
	require.NoError(t, p.RecordClaim())
	require.NoError(t, p.Approve())
	assert.True(t, p.Payable())

	// После approve отклонение и повторный approve невозможны
	assert.ErrorIs(t, p.Decline(), ErrInvalidState)
	assert.ErrorIs(t, p.Approve(), ErrInvalidState)
}

func TestCloseAndReopen(t *testing.T) {
	p := newTestPolicy(t)

	// Не payable — закрывать нечего
	assert.ErrorIs(t, p.Close(), ErrInvalidState)

	require.NoError(t, p.RecordPremium(1000))
	require.NoError(t, p.RecordClaim())
	require.NoError(t, p.Approve())

	require.NoError(t, p.Close())
	assert.False(t, p.Active)
	assert.False(t, p.Payable())

	// Деактивированный полис отвергает любые переходы
	assert.ErrorIs(t, p.RecordClaim(), ErrInvalidState)
	assert.ErrorIs(t, p.Approve(), ErrInvalidState)
	assert.ErrorIs(t, p.Decline(), ErrInvalidState)

	// Компенсирующий откат возвращает полис в payable
	p.Reopen()
	assert.True(t, p.Payable())
}
