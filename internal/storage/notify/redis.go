package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "feed:changes:"

// Redis - Notifier поверх redis pub/sub, чтобы живые запросы видели
// изменения, сделанные другими экземплярами сервиса.
type Redis struct {
	rdb *redis.Client
}

// NewRedis оборачивает готовый клиент redis.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Publish(ctx context.Context, topic string) error {
	if err := r.rdb.Publish(ctx, channelPrefix+topic, "1").Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	ps := r.rdb.Subscribe(ctx, channelPrefix+topic)
	// Дожидаемся подтверждения подписки, иначе первые публикации могут потеряться
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					log.Printf("notify: redis channel %s closed", topic)
					return
				}
				storage.Offer(out, struct{}{})
			}
		}
	}()

	return out, nil
}
