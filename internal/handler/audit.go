package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/meditrack/coldchain/internal/audit"
)

// AuditReader — чтение журнала из долговременного хранилища
type AuditReader interface {
	FetchLogs(ctx context.Context, kind, shipmentID, policyID string, limit int) ([]audit.Event, error)
}

type AuditHandler struct {
	reader AuditReader
}

func NewAuditHandler(reader AuditReader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

// GetLogs возвращает события аудита с поддержкой фильтрации
// GET /v1/audit?kind=...&shipment_id=...&policy_id=...&limit=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	// Извлекаем фильтры из Query-параметров
	q := r.URL.Query()
	kind := q.Get("kind")
	shipmentID := q.Get("shipment_id")
	policyID := q.Get("policy_id")
	limit, _ := strconv.Atoi(q.Get("limit"))

	logs, err := h.reader.FetchLogs(r.Context(), kind, shipmentID, policyID, limit)
	if err != nil {
		http.Error(w, "Failed to fetch audit logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, logs)
}
