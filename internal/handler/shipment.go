package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meditrack/coldchain/internal/infra/auth"
	"github.com/meditrack/coldchain/internal/registry"
)

type ShipmentHandler struct {
	registry *registry.ShipmentRegistry
}

func NewShipmentHandler(r *registry.ShipmentRegistry) *ShipmentHandler {
	return &ShipmentHandler{registry: r}
}

type registerShipmentRequest struct {
	ID       string `json:"id"`
	Receiver string `json:"receiver"`
}

// Register регистрирует новое отправление.
// POST /v1/shipments
func (h *ShipmentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Отправитель — аутентифицированный актор, не поле запроса
	actor := auth.ActorFromContext(r.Context())
	shipment, err := h.registry.RegisterShipment(r.Context(), actor, req.ID, actor, req.Receiver)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shipment)
}

type logReadingRequest struct {
	Temperature float64 `json:"temperature"`
	Location    string  `json:"location"`
}

// LogReading фиксирует показание датчика.
// POST /v1/shipments/{id}/readings
func (h *ShipmentHandler) LogReading(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req logReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	actor := auth.ActorFromContext(r.Context())
	if err := h.registry.LogReading(r.Context(), actor, id, req.Location, req.Temperature); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkDelivered закрывает отправление. Доступно только получателю.
// POST /v1/shipments/{id}/delivered
func (h *ShipmentHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := auth.ActorFromContext(r.Context())
	if err := h.registry.MarkDelivered(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get возвращает отправление вместе с телеметрией.
// GET /v1/shipments/{id}
func (h *ShipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	shipment, err := h.registry.GetShipment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shipment)
}

// GetBreached возвращает только флаг нарушения холодовой цепи.
// GET /v1/shipments/{id}/breached
func (h *ShipmentHandler) GetBreached(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	breached, err := h.registry.IsBreached(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"breached": breached})
}

type thresholdsRequest struct {
	MinTemperature float64 `json:"min_temperature"`
	MaxTemperature float64 `json:"max_temperature"`
}

// UpdateThresholds меняет дефолтный температурный коридор для НОВЫХ
// отправлений. Уже зарегистрированные сохраняют свой коридор.
// PUT /v1/config/thresholds
func (h *ShipmentHandler) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	actor := auth.ActorFromContext(r.Context())
	if err := h.registry.UpdateDefaultThresholds(r.Context(), actor, req.MinTemperature, req.MaxTemperature); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"min_temperature": req.MinTemperature,
		"max_temperature": req.MaxTemperature,
	})
}
