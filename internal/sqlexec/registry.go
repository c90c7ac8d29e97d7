package sqlexec

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// Locator находит исполнителя для логической базы данных "server;database".
type Locator interface {
	Locate(ctx context.Context, server, database string) (Executor, error)
}

// OpenFunc открывает исполнителя для незарегистрированной базы данных.
type OpenFunc func(ctx context.Context, server, database string) (Executor, error)

// Registry — потокобезопасный реестр исполнителей по логическим базам данных.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]Executor
	open    OpenFunc
	opening singleflight.Group
}

// NewRegistry создаёт реестр. open может быть nil — тогда незарегистрированные
// базы данных приводят к ошибке конфигурации.
func NewRegistry(open OpenFunc) *Registry {
	return &Registry{targets: make(map[string]Executor), open: open}
}

// TargetKey — ключ логической базы данных в реестре.
func TargetKey(server, database string) string {
	return strings.ToLower(server) + ";" + strings.ToLower(database)
}

// Register регистрирует исполнителя для "server;database".
func (r *Registry) Register(server, database string, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[TargetKey(server, database)] = ex
}

// Locate возвращает исполнителя, при необходимости открывая его через OpenFunc.
func (r *Registry) Locate(ctx context.Context, server, database string) (Executor, error) {
	key := TargetKey(server, database)

	r.mu.RLock()
	ex, ok := r.targets[key]
	r.mu.RUnlock()
	if ok {
		return ex, nil
	}

	if r.open == nil {
		return nil, model.NewConfigurationError("неизвестная база данных %q", key)
	}

	// подключение открывается без блокировки реестра; параллельные
	// вызовы для одной базы ждут одно открытие
	v, err, _ := r.opening.Do(key, func() (any, error) {
		ex, err := r.open(ctx, server, database)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к %s: %w", key, err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.targets[key]; ok {
			return cur, nil
		}
		r.targets[key] = ex
		return ex, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Executor), nil
}
