package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/UkralStul/social-feed/internal/objectstore"
)

// Store реализует objectstore.Store в памяти.
type Store struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]objectstore.Object
}

// New создает хранилище; URL объектов строятся как baseURL + "/" + path.
func New(baseURL string) *Store {
	return &Store{baseURL: baseURL, objects: make(map[string]objectstore.Object)}
}

func (s *Store) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[path] = objectstore.Object{ContentType: contentType, Data: buf}
	return fmt.Sprintf("%s/%s", s.baseURL, path), nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[path]; !ok {
		return fmt.Errorf("%s: %w", path, objectstore.ErrNotFound)
	}
	delete(s.objects, path)
	return nil
}

// Get возвращает объект по пути.
func (s *Store) Get(path string) (objectstore.Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[path]
	return o, ok
}

// Len возвращает число хранимых объектов.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
