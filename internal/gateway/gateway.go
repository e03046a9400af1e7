package gateway

import (
	"context"
	"fmt"
)

// FundGateway — внешний платежный процессор. Единственная точка подвеса
// (suspension point) во всей системе: пока идет перевод, злонамеренный
// получатель может попытаться дернуть API повторно. Протокол расчета
// в казначействе обязан это переживать.
type FundGateway interface {
	Transfer(ctx context.Context, payee string, amount int64) error
}

// TransferError — типизированный отказ процессора (код для диагностики)
type TransferError struct {
	Code  string
	Cause error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer rejected: %s (cause: %v)", e.Code, e.Cause)
}

func (e *TransferError) Unwrap() error {
	return e.Cause
}
