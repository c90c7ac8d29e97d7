// health.go — обработчики health endpoints инспектора архива.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (управляющая БД и JWKS доступны)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/archive-module/internal/config"
)

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "archive-inspector"

// statusDisabled — проверка зависимости отключена конфигурацией.
const statusDisabled = "disabled"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	dbChecker   ReadinessChecker
	jwksChecker ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// dbChecker — проверка управляющей БД (nil — readiness вернёт "fail").
// jwksChecker — проверка JWKS; nil, если JWT выключен.
func NewHealthHandler(dbChecker, jwksChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		dbChecker:   dbChecker,
		jwksChecker: jwksChecker,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		ControlDB healthCheckResult `json:"control_db"`
		JWKS      healthCheckResult `json:"jwks"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200, если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe. Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	if h.dbChecker != nil {
		status, msg := h.dbChecker.CheckReady()
		resp.Checks.ControlDB = healthCheckResult{Status: status, Message: msg}
	} else {
		resp.Checks.ControlDB = healthCheckResult{Status: "fail", Message: "не инициализирован"}
	}

	if h.jwksChecker != nil {
		status, msg := h.jwksChecker.CheckReady()
		resp.Checks.JWKS = healthCheckResult{Status: status, Message: msg}
	} else {
		resp.Checks.JWKS = healthCheckResult{Status: statusDisabled}
	}

	resp.Status = overallStatus(resp.Checks.ControlDB.Status, resp.Checks.JWKS.Status)

	status := http.StatusOK
	if resp.Status == "fail" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok. Отключённые проверки не учитываются.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
