package domain

import "errors"

// Единая таксономия ошибок платформы. Каждая публичная операция возвращает
// конкретный вид отказа, чтобы клиент мог отличить «повторить позже»
// (ErrInsufficientFunds) от «запрещено навсегда» (ErrInvalidState, ErrUnauthorized).
var (
	ErrNotFound           = errors.New("record not found")
	ErrAlreadyExists      = errors.New("record already exists")
	ErrUnauthorized       = errors.New("actor is not permitted to perform this action")
	ErrInvalidState       = errors.New("operation is not valid for the current lifecycle state")
	ErrInvalidInput       = errors.New("malformed or out-of-range input")
	ErrLimitExceeded      = errors.New("configured limit exceeded")
	ErrPreconditionFailed = errors.New("business precondition not satisfied")
	ErrInsufficientFunds  = errors.New("treasury balance is below the claim amount")
	ErrTransferFailed     = errors.New("external fund transfer failed")
)
