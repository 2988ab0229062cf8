// Package notify разносит сигналы "данные изменились" между живыми запросами.
// Сигнал не несёт данных: подписчик сам перечитывает актуальный снимок.
package notify

import (
	"context"
	"sync"

	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/google/uuid"
)

const (
	TopicPosts = "posts"
)

// TopicFollowing - топик изменений набора подписок пользователя.
func TopicFollowing(userID string) string {
	return "following:" + userID
}

// Notifier публикует и доставляет сигналы изменений по топикам.
// Канал подписки закрывается после отмены ctx.
type Notifier interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, error)
}

// Local - Notifier внутри одного процесса.
type Local struct {
	mu   sync.Mutex
	subs map[string]map[string]chan struct{}
}

// NewLocal создает in-process нотификатор.
func NewLocal() *Local {
	return &Local{subs: make(map[string]map[string]chan struct{})}
}

func (l *Local) Publish(ctx context.Context, topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs[topic] {
		storage.Offer(ch, struct{}{})
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	subID := uuid.NewString()

	l.mu.Lock()
	if l.subs[topic] == nil {
		l.subs[topic] = make(map[string]chan struct{})
	}
	l.subs[topic][subID] = ch
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		if topicSubs, ok := l.subs[topic]; ok {
			delete(topicSubs, subID)
			if len(topicSubs) == 0 {
				delete(l.subs, topic)
			}
		}
		close(ch)
		l.mu.Unlock()
	}()

	return ch, nil
}
