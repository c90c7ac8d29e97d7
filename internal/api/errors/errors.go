// Пакет errors — ответы с ошибками в формате Artstore.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// Коды ошибок API инспектора архива.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeConfigurationError = "ARCHIVE_CONFIGURATION_ERROR"
	CodeArchiveUnavailable = "ARCHIVE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате Artstore.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт состояния.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromDomain отображает ошибку подсистемы архивирования в HTTP-ответ.
// Возвращает HTTP-статус записанного ответа.
func FromDomain(w http.ResponseWriter, err error) int {
	var (
		cfgErr   *model.ConfigurationError
		uniqErr  *model.UniquenessViolation
		ioErr    *model.BackendIOError
		cacheErr *model.CacheRefreshError
	)

	switch {
	case errors.Is(err, model.ErrNotFound):
		NotFound(w, err.Error())
		return http.StatusNotFound
	case errors.Is(err, model.ErrArchivedRecordWrite):
		Conflict(w, err.Error())
		return http.StatusConflict
	case errors.As(err, &uniqErr):
		Conflict(w, err.Error())
		return http.StatusConflict
	case errors.As(err, &cfgErr):
		WriteError(w, http.StatusUnprocessableEntity, CodeConfigurationError, err.Error())
		return http.StatusUnprocessableEntity
	case errors.As(err, &ioErr), errors.As(err, &cacheErr):
		WriteError(w, http.StatusBadGateway, CodeArchiveUnavailable, err.Error())
		return http.StatusBadGateway
	default:
		InternalError(w, "Внутренняя ошибка сервера")
		return http.StatusInternalServerError
	}
}
