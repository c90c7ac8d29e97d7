package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/archive-module/internal/domain/model"
)

// FileSystem — хранилище payload'ов в файлах.
// Раскладка: <root>/<batchID>/<high>/<mid>/<id>, где high и mid —
// сегменты id, дополненного нулями до 11 цифр. В каждом каталоге
// не больше 10 000 элементов.
type FileSystem struct {
	root    string
	batchID int64
}

// NewFileSystem создаёт хранилище батча. Корень — archive_info батча.
func NewFileSystem(batch *model.ArchiveBatch) *FileSystem {
	return &FileSystem{root: batch.Info, batchID: batch.ID}
}

// PayloadPath возвращает путь файла payload'а записи id.
func PayloadPath(root string, batchID, id int64) string {
	padded := fmt.Sprintf("%011d", id)
	n := len(padded)
	high := padded[:n-8]
	mid := padded[n-8 : n-4]
	return filepath.Join(root, strconv.FormatInt(batchID, 10), high, mid, strconv.FormatInt(id, 10))
}

func (s *FileSystem) path(id int64) string {
	return PayloadPath(s.root, s.batchID, id)
}

// Write записывает payload, заменяя прежний.
//
// Паттерн: temp файл → запись → fsync → atomic rename. Прежний файл
// остаётся на месте до rename, поэтому сбой посреди записи не оставляет
// ни пустого, ни обрезанного payload'а.
func (s *FileSystem) Write(_ context.Context, id int64, data []byte) (err error) {
	start := time.Now()
	defer func() { err = observe(model.MethodFileSystem, "write", start, err) }()

	fullPath := s.path(id)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("ошибка создания каталога %s: %w", filepath.Dir(fullPath), err)
	}

	tmpPath := fullPath + "." + uuid.New().String() + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// Read читает payload записи id.
func (s *FileSystem) Read(_ context.Context, id int64) (data []byte, err error) {
	start := time.Now()
	defer func() { err = observe(model.MethodFileSystem, "read", start, err) }()

	data, err = os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения payload id=%d: %w", id, err)
	}
	return data, nil
}

// Delete удаляет payload записи id. Отсутствие файла — 0, не ошибка.
func (s *FileSystem) Delete(_ context.Context, id int64) (n int64, err error) {
	start := time.Now()
	defer func() { err = observe(model.MethodFileSystem, "delete", start, err) }()

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("ошибка удаления payload id=%d: %w", id, err)
	}
	return 1, nil
}

// WriteHash не поддерживается: файловое хранилище хранит только blob.
func (s *FileSystem) WriteHash(context.Context, int64, map[string]any) error {
	return s.hashUnsupported()
}

// ReadHash не поддерживается.
func (s *FileSystem) ReadHash(context.Context, int64) (map[string]any, error) {
	return nil, s.hashUnsupported()
}

// DeleteHash не поддерживается.
func (s *FileSystem) DeleteHash(context.Context, int64) (int64, error) {
	return 0, s.hashUnsupported()
}

func (s *FileSystem) hashUnsupported() error {
	return model.NewConfigurationError("батч %d: метод FileSystem не поддерживает hash-режим (нужно сжатие или упаковка)", s.batchID)
}
