// handler.go — основной обработчик API инспектора архива.
// Объединяет health endpoints и обработчики архива.
package handlers

import (
	"encoding/json"
	"net/http"
)

// APIHandler — основной обработчик API.
type APIHandler struct {
	*HealthHandler
	*ArchiveHandler
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, archive *ArchiveHandler) *APIHandler {
	return &APIHandler{HealthHandler: health, ArchiveHandler: archive}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
