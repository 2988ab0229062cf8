package inmemory

import (
	"context"
	"fmt"

	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/storage"
)

// RunTransaction выполняет fn под эксклюзивной блокировкой хранилища.
// Записи копятся в tx и применяются только если fn вернула nil,
// так что транзакции полностью сериализуемы и не теряют обновлений.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:       s,
		likes:   make(map[likeKey]*domain.Like),
		unlikes: make(map[likeKey]struct{}),
		counts:  make(map[string]int64),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commitLocked()
	return nil
}

type likeKey struct {
	postID string
	userID string
}

type memTx struct {
	s       *Store
	likes   map[likeKey]*domain.Like
	unlikes map[likeKey]struct{}
	counts  map[string]int64
}

func (tx *memTx) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
	p, ok := tx.s.posts[postID]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	c := p.Clone()
	if n, ok := tx.counts[postID]; ok {
		c.LikeCount = n
	}
	return c, nil
}

func (tx *memTx) LikeExists(ctx context.Context, postID, userID string) (bool, error) {
	k := likeKey{postID, userID}
	if _, ok := tx.likes[k]; ok {
		return true, nil
	}
	if _, ok := tx.unlikes[k]; ok {
		return false, nil
	}
	_, ok := tx.s.likes[postID][userID]
	return ok, nil
}

func (tx *memTx) CreateLike(ctx context.Context, like *domain.Like) error {
	if _, ok := tx.s.posts[like.PostID]; !ok {
		return fmt.Errorf("post %s: %w", like.PostID, storage.ErrNotFound)
	}
	k := likeKey{like.PostID, like.UserID}
	delete(tx.unlikes, k)
	l := *like
	if l.CreatedAt.IsZero() {
		l.CreatedAt = tx.s.now()
	}
	tx.likes[k] = &l
	return nil
}

func (tx *memTx) DeleteLike(ctx context.Context, postID, userID string) error {
	k := likeKey{postID, userID}
	delete(tx.likes, k)
	tx.unlikes[k] = struct{}{}
	return nil
}

func (tx *memTx) SetLikeCount(ctx context.Context, postID string, count int64) error {
	if _, ok := tx.s.posts[postID]; !ok {
		return fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	if count < 0 {
		return fmt.Errorf("post %s: negative like count %d", postID, count)
	}
	tx.counts[postID] = count
	return nil
}

func (tx *memTx) commitLocked() {
	s := tx.s
	for k := range tx.unlikes {
		if m := s.likes[k.postID]; m != nil {
			delete(m, k.userID)
		}
	}
	for k, l := range tx.likes {
		if s.likes[k.postID] == nil {
			s.likes[k.postID] = make(map[string]*domain.Like)
		}
		s.likes[k.postID][k.userID] = l
	}

	authors := make(map[string]struct{}, len(tx.counts))
	for postID, n := range tx.counts {
		p, ok := s.posts[postID]
		if !ok {
			continue
		}
		p.LikeCount = n
		authors[p.AuthorID] = struct{}{}
	}
	for a := range authors {
		s.notifyPostsLocked(a)
	}
}
