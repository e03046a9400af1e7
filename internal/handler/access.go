package handler

import (
	"encoding/json"
	"net/http"

	"github.com/meditrack/coldchain/internal/access"
	"github.com/meditrack/coldchain/internal/domain"
	"github.com/meditrack/coldchain/internal/infra/auth"
)

type AccessHandler struct {
	acl *access.Control
}

func NewAccessHandler(acl *access.Control) *AccessHandler {
	return &AccessHandler{acl: acl}
}

type roleRequest struct {
	Actor string `json:"actor"`
	Role  string `json:"role"`
}

// Grant выдает роль supplier или oracle. Только администратор.
// POST /v1/roles/grant
func (h *AccessHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	caller := auth.ActorFromContext(r.Context())
	if err := h.acl.Grant(r.Context(), caller, req.Actor, domain.Role(req.Role)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Revoke снимает роль. Идемпотентен.
// POST /v1/roles/revoke
func (h *AccessHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	caller := auth.ActorFromContext(r.Context())
	if err := h.acl.Revoke(r.Context(), caller, req.Actor, domain.Role(req.Role)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pause останавливает все мутирующие операции платформы (kill-switch).
// POST /v1/pause
func (h *AccessHandler) Pause(w http.ResponseWriter, r *http.Request) {
	caller := auth.ActorFromContext(r.Context())
	if err := h.acl.Pause(r.Context(), caller); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unpause возобновляет работу.
// POST /v1/unpause
func (h *AccessHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	caller := auth.ActorFromContext(r.Context())
	if err := h.acl.Unpause(r.Context(), caller); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
