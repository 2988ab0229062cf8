package dataloader

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader"
)

// LikeReader - точечные чтения членства в лайках.
type LikeReader interface {
	LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
}

// NewLikedLoader создает лоадер "лайкнуто пользователем userID" по id поста.
// Кэш лоадера живёт один раунд сверки, следующая доставка берёт новый лоадер.
func NewLikedLoader(store LikeReader, userID string) *dataloader.Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		postIDs := keys.Keys()
		results := make([]*dataloader.Result, len(postIDs))

		// Весь батч - одно чтение членства
		liked, err := store.LikedPostIDs(ctx, userID, postIDs)
		for i, postID := range postIDs {
			if err != nil {
				results[i] = &dataloader.Result{Error: err}
				continue
			}
			results[i] = &dataloader.Result{Data: liked[postID]}
		}
		return results
	}

	return dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond))
}

// LoadLiked выполняет разовую проверку для набора постов.
func LoadLiked(ctx context.Context, loader *dataloader.Loader, postIDs []string) (map[string]bool, error) {
	values, errs := loader.LoadMany(ctx, dataloader.NewKeysFromStrings(postIDs))()
	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("liked lookup: %w", err)
		}
	}
	if len(values) != len(postIDs) {
		return nil, fmt.Errorf("liked lookup: got %d results for %d posts", len(values), len(postIDs))
	}

	result := make(map[string]bool, len(postIDs))
	for i, v := range values {
		liked, _ := v.(bool)
		result[postIDs[i]] = liked
	}
	return result, nil
}
