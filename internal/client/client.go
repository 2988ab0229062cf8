// Package client собирает клиентское ядро: живой клиент одного пользователя
// (сессия, лента, лайки) и операции без живого состояния (Services).
// Лента клиента следует за потоком личности сессии.
package client

import (
	"context"
	"errors"
	"sync"

	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/feed"
	"github.com/UkralStul/social-feed/internal/like"
	"github.com/UkralStul/social-feed/internal/session"
	"github.com/UkralStul/social-feed/internal/storage"
)

// ErrSignedOut - операция требует вошедшего пользователя.
var ErrSignedOut = errors.New("sign in to continue")

var _ like.LocalState = (*feed.View)(nil)

type Client struct {
	store   storage.Storage
	session *session.Session
	view    *feed.View
	feed    *feed.Manager

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func New(svc *Services) *Client {
	view := feed.NewView()
	c := &Client{
		store:   svc.store,
		session: session.New(svc.auth),
		view:    view,
		feed:    feed.NewManager(svc.store, view),
		done:    make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.followSession(ctx)
	return c
}

// followSession переоткрывает подписки ленты на каждый вход и выход.
func (c *Client) followSession(ctx context.Context) {
	defer close(c.done)
	for id := range c.session.Watch(ctx) {
		c.feed.SetIdentity(id)
	}
}

// Close отменяет все подписки клиента.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		<-c.done
		c.feed.Close()
	})
}

// Restore поднимает сессию по токену, выданному ранее.
func (c *Client) Restore(ctx context.Context, token string) (*domain.Identity, error) {
	return c.session.Restore(ctx, token)
}

// SignOut отзывает токен сессии; лента сбрасывается вслед за личностью.
func (c *Client) SignOut(ctx context.Context) error {
	return c.session.SignOut(ctx)
}

// Feed - локальное состояние ленты.
func (c *Client) Feed() *feed.View { return c.view }

func (c *Client) SetScope(scope feed.Scope) error {
	if !scope.Valid() {
		return feed.ErrUnknownScope
	}
	c.feed.SetScope(scope)
	return nil
}

// ApplyLike сразу применяет переключение лайка к ленте и возвращает
// коммит, который можно выполнить позже и в другой горутине.
func (c *Client) ApplyLike(postID string) (func(ctx context.Context) error, error) {
	id, ok := c.session.Current()
	if !ok {
		return nil, ErrSignedOut
	}
	engine := like.NewEngine(c.store, c.view, id.UID)
	pending := engine.Apply(postID)
	return func(ctx context.Context) error {
		return engine.Commit(ctx, pending)
	}, nil
}
