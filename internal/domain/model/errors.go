// errors.go — таксономия ошибок подсистемы архивирования.
// Отсутствие данных (политики, батча, payload) — штатный исход и
// выражается через ErrNotFound; нарушения целостности управляющих
// таблиц — типизированные ошибки, которые всегда возвращаются вызывающему.
package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — политика, батч или payload отсутствуют.
	ErrNotFound = errors.New("архивные данные не найдены")
	// ErrArchivedRecordWrite — запись загружена из архива записей и не может
	// быть сохранена до разархивирования.
	ErrArchivedRecordWrite = errors.New("нельзя сохранить запись, загруженную из архива")
)

// ConfigurationError — некорректная конфигурация архива: неизвестный тип
// метода, битая строка диапазона, битая строка archive info.
type ConfigurationError struct {
	What string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ошибка конфигурации архива: %s: %v", e.What, e.Err)
	}
	return "ошибка конфигурации архива: " + e.What
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError создаёт ConfigurationError с форматированным описанием.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{What: fmt.Sprintf(format, args...)}
}

// UniquenessViolation — один и тот же archive info используется
// несколькими батчами одного вида для одной таблицы.
type UniquenessViolation struct {
	TablePath string
	Kind      Kind
	Info      string
}

func (e *UniquenessViolation) Error() string {
	return fmt.Sprintf("повторное использование archive info для %s (вид %c): %s", e.TablePath, e.Kind, e.Info)
}

// BackendIOError — ошибка ввода-вывода метода архивирования.
// Не повторяется на этом уровне.
type BackendIOError struct {
	Method MethodType
	Op     string
	Err    error
}

func (e *BackendIOError) Error() string {
	return fmt.Sprintf("ошибка архивного хранилища %s (%s): %v", e.Method, e.Op, e.Err)
}

func (e *BackendIOError) Unwrap() error { return e.Err }

// CacheRefreshError — кэш не удалось загрузить впервые, либо превышен
// допустимый порог последовательных ошибок обновления.
type CacheRefreshError struct {
	Cache    string
	Attempts int
	Err      error
}

func (e *CacheRefreshError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("не удалось обновить кэш %s за %d попыток: %v", e.Cache, e.Attempts, e.Err)
	}
	return fmt.Sprintf("не удалось инициализировать кэш %s: %v", e.Cache, e.Err)
}

func (e *CacheRefreshError) Unwrap() error { return e.Err }

// IsConfigurationError проверяет, является ли ошибка ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
