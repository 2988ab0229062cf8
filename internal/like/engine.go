// Package like переключает лайк пользователя и держит денормализованный
// счётчик поста согласованным: оптимистичное локальное применение,
// транзакционная запись, откат при ошибке.
package like

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/metrics"
	"github.com/UkralStul/social-feed/internal/storage"
)

// FailureNotice - сообщение пользователю при неудачном переключении.
const FailureNotice = "Failed to update like."

// LocalState - локальное состояние ленты, на которое действует движок.
type LocalState interface {
	ApplyToggle(postID string) (token uint64, wasLiked bool)
	ConfirmToggle(postID string, token uint64, liked bool, count int64)
	RollbackToggle(postID string, token uint64)
	Notify(message string)
}

// Transactor - транзакции документного хранилища.
type Transactor interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Result - итог закоммиченного переключения.
type Result struct {
	Liked     bool
	LikeCount int64
}

type Engine struct {
	store  Transactor
	state  LocalState
	userID string
	now    func() time.Time
}

func NewEngine(store Transactor, state LocalState, userID string) *Engine {
	return &Engine{
		store:  store,
		state:  state,
		userID: userID,
		now:    time.Now,
	}
}

// Pending - переключение, применённое локально и ещё не закоммиченное.
type Pending struct {
	PostID   string
	token    uint64
	wasLiked bool
}

// Apply применяет переключение к локальному состоянию сразу, в порядке вызовов.
func (e *Engine) Apply(postID string) Pending {
	token, wasLiked := e.state.ApplyToggle(postID)
	return Pending{PostID: postID, token: token, wasLiked: wasLiked}
}

// Commit отправляет транзакцию для применённого переключения. Вызовы
// независимы: каждый коммит может идти в своей горутине. При ошибке
// откатывается только это переключение.
func (e *Engine) Commit(ctx context.Context, p Pending) error {
	res, err := e.commit(ctx, p.PostID)
	if err != nil {
		e.state.RollbackToggle(p.PostID, p.token)
		e.state.Notify(FailureNotice)
		metrics.LikeRollbacks.Inc()
		if errors.Is(err, storage.ErrNotFound) {
			metrics.LikeToggles.WithLabelValues("not_found").Inc()
		} else {
			metrics.LikeToggles.WithLabelValues("failed").Inc()
		}
		log.Printf("like: toggle post %s by %s (was liked: %t) failed: %v", p.PostID, e.userID, p.wasLiked, err)
		return fmt.Errorf("toggle like on %s: %w", p.PostID, err)
	}

	e.state.ConfirmToggle(p.PostID, p.token, res.Liked, res.LikeCount)
	metrics.LikeToggles.WithLabelValues("committed").Inc()
	return nil
}

// Toggle - Apply и Commit подряд.
func (e *Engine) Toggle(ctx context.Context, postID string) error {
	return e.Commit(ctx, e.Apply(postID))
}

// commit решает по согласованному снимку внутри транзакции,
// а не по локальному флагу, который мог устареть.
func (e *Engine) commit(ctx context.Context, postID string) (Result, error) {
	var res Result
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		post, err := tx.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		exists, err := tx.LikeExists(ctx, postID, e.userID)
		if err != nil {
			return err
		}

		if exists {
			if err := tx.DeleteLike(ctx, postID, e.userID); err != nil {
				return err
			}
			res = Result{Liked: false, LikeCount: max(0, post.LikeCount-1)}
		} else {
			like := &domain.Like{PostID: postID, UserID: e.userID, CreatedAt: e.now()}
			if err := tx.CreateLike(ctx, like); err != nil {
				return err
			}
			res = Result{Liked: true, LikeCount: post.LikeCount + 1}
		}
		return tx.SetLikeCount(ctx, postID, res.LikeCount)
	})
	return res, err
}
