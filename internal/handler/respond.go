package handler

/*
Файл respond.go — единый вывод ответов для HTTP-слоя.
Доменные ошибки переводятся в коды статусов здесь, в одном месте;
хендлеры не знают про HTTP-семантику ошибок.
*/

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meditrack/coldchain/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// writeError транслирует доменную ошибку в HTTP-статус
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrLimitExceeded):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPreconditionFailed):
		status = http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrTransferFailed):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, errorBody{Error: err.Error()})
}
