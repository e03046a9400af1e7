package gateway

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// MockProcessor имитирует внешний платежный процессор для dev-стенда.
// Задержка 50-300мс, отказ для специально помеченного получателя.
type MockProcessor struct{}

func (p *MockProcessor) Transfer(ctx context.Context, payee string, amount int64) error {
	latency := time.Duration(50+rand.Intn(250)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация работы
	case <-ctx.Done():
		return ctx.Err()
	}

	if payee == "" {
		return &TransferError{Code: "UNKNOWN_PAYEE", Cause: errors.New("empty payee identity")}
	}
	if amount <= 0 {
		return &TransferError{Code: "INVALID_AMOUNT", Cause: errors.New("non-positive amount")}
	}

	// Стендовый сценарий сбоя: перевод в адрес "unstable.payee" всегда падает,
	// чтобы прогонять откат расчета руками
	if payee == "unstable.payee" {
		return &TransferError{Code: "PROCESSOR_UNAVAILABLE", Cause: errors.New("downstream processor error")}
	}

	return nil
}
