package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meditrack/coldchain/internal/infra"
)

type stubProcessor struct {
	fail  bool
	calls int
}

func (p *stubProcessor) Transfer(ctx context.Context, payee string, amount int64) error {
	p.calls++
	if p.fail {
		return errors.New("processor unavailable")
	}
	return nil
}

func testTreasuryConfig() infra.TreasuryConfig {
	return infra.TreasuryConfig{
		CBMaxRequests: 3,
		CBInterval:    5 * time.Second,
		CBTimeout:     30 * time.Second,
		RatePerSecond: 1000,
		RateBurst:     100,
	}
}

func TestProtectedGatewayPassThrough(t *testing.T) {
	next := &stubProcessor{}
	gw := NewProtectedGateway(next, testTreasuryConfig(), infra.NewMetrics(nil), zap.NewNop())

	require.NoError(t, gw.Transfer(context.Background(), "pharmacy-1", 500))
	assert.Equal(t, 1, next.calls)
}

func TestProtectedGatewayOpensAfterConsecutiveFailures(t *testing.T) {
	next := &stubProcessor{fail: true}
	gw := NewProtectedGateway(next, testTreasuryConfig(), infra.NewMetrics(nil), zap.NewNop())
	ctx := context.Background()

	// Первые 6 отказов доходят до процессора
	for i := 0; i < 6; i++ {
		require.Error(t, gw.Transfer(ctx, "pharmacy-1", 500))
	}
	assert.Equal(t, 6, next.calls)

	// Предохранитель открыт: запрос отбивается без вызова процессора
	err := gw.Transfer(ctx, "pharmacy-1", 500)
	require.Error(t, err)
	assert.Equal(t, 6, next.calls)
}

func TestMockProcessorValidation(t *testing.T) {
	p := &MockProcessor{}
	ctx := context.Background()

	var terr *TransferError
	err := p.Transfer(ctx, "", 500)
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "UNKNOWN_PAYEE", terr.Code)

	err = p.Transfer(ctx, "pharmacy-1", 0)
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "INVALID_AMOUNT", terr.Code)

	err = p.Transfer(ctx, "unstable.payee", 500)
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "PROCESSOR_UNAVAILABLE", terr.Code)

	assert.NoError(t, p.Transfer(ctx, "pharmacy-1", 500))
}
