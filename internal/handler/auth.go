package handler

import (
	"encoding/json"
	"net/http"

	"github.com/meditrack/coldchain/internal/domain"
	"github.com/meditrack/coldchain/internal/infra/auth"
)

type AuthHandler struct {
	service *auth.TokenService
}

func NewAuthHandler(s *auth.TokenService) *AuthHandler {
	return &AuthHandler{service: s}
}

// Login выпускает RS256 токен по логину и паролю.
// POST /auth/token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	if err != nil {
		// не уточняем, что именно неверно (логин или пароль) для защиты от перебора
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
