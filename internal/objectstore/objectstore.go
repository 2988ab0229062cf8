package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound возвращается при удалении отсутствующего объекта.
var ErrNotFound = errors.New("object not found")

// Store - контракт объектного хранилища: пути выбирает вызывающий.
type Store interface {
	// Upload сохраняет байты по пути и возвращает URL для чтения.
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, path string) error
}

// Object - сохранённый объект.
type Object struct {
	ContentType string
	Data        []byte
}

// Reader - хранилище, отдающее объекты по пути напрямую.
type Reader interface {
	Get(path string) (Object, bool)
}
