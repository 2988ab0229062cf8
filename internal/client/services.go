package client

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/UkralStul/social-feed/internal/auth"
	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/media"
	"github.com/UkralStul/social-feed/internal/objectstore"
	"github.com/UkralStul/social-feed/internal/post"
	"github.com/UkralStul/social-feed/internal/profile"
	"github.com/UkralStul/social-feed/internal/storage"
)

// ErrFollowSelf - подписка на самого себя.
var ErrFollowSelf = errors.New("cannot follow yourself")

// Deps - внешние коллабораторы клиента.
type Deps struct {
	Auth    auth.Provider
	Storage storage.Storage
	Objects objectstore.Store
}

// Services - операции, которым не нужна живая лента: учётная запись,
// профиль, посты и подписки. Личность вызывающего передаётся явно.
type Services struct {
	auth     auth.Provider
	store    storage.Storage
	objects  objectstore.Store
	profiles *profile.Store
	posts    *post.Service
}

func NewServices(deps Deps) *Services {
	profiles := profile.NewStore(deps.Storage, deps.Objects)
	return &Services{
		auth:     deps.Auth,
		store:    deps.Storage,
		objects:  deps.Objects,
		profiles: profiles,
		posts:    post.NewService(deps.Storage, deps.Objects, profiles),
	}
}

// Objects - объектное хранилище, через которое идут загрузки.
func (s *Services) Objects() objectstore.Store { return s.objects }

// === Учётная запись ===

// SignUp регистрирует пользователя и сразу создаёт его профиль.
// Неудача профиля не отменяет регистрацию: профиль создастся при первом чтении.
func (s *Services) SignUp(ctx context.Context, email, password string) (*auth.Token, error) {
	tok, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if _, err := s.profiles.Get(ctx, tok.Identity); err != nil {
		log.Printf("client: profile for %s not created on sign-up: %v", tok.Identity.UID, err)
	}
	return tok, nil
}

func (s *Services) SignIn(ctx context.Context, email, password string) (*auth.Token, error) {
	return s.auth.SignIn(ctx, email, password)
}

func (s *Services) SignOut(ctx context.Context, token string) error {
	return s.auth.SignOut(ctx, token)
}

func (s *Services) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	return s.auth.Verify(ctx, token)
}

// === Профиль ===

func (s *Services) Profile(ctx context.Context, id domain.Identity) (*domain.Profile, error) {
	return s.profiles.Get(ctx, id)
}

func (s *Services) UpdateProfile(ctx context.Context, id domain.Identity, upd storage.ProfileUpdate) (*domain.Profile, error) {
	return s.profiles.Update(ctx, id, id.UID, upd)
}

func (s *Services) SetAvatar(ctx context.Context, id domain.Identity, img media.Image) (*domain.Profile, error) {
	return s.profiles.SetAvatar(ctx, id, img)
}

// === Посты ===

func (s *Services) CreatePost(ctx context.Context, id domain.Identity, in post.CreateInput) (*domain.Post, error) {
	return s.posts.Create(ctx, id, in)
}

func (s *Services) EditPost(ctx context.Context, id domain.Identity, postID, text string) (*domain.Post, error) {
	return s.posts.Edit(ctx, id, postID, text)
}

func (s *Services) DeletePost(ctx context.Context, id domain.Identity, postID string, confirmed bool) error {
	return s.posts.Delete(ctx, id, postID, confirmed)
}

// === Подписки ===

// Follow подписывает id на followeeID. Подписаться можно только на
// пользователя с профилем; повторная подписка ничего не меняет.
func (s *Services) Follow(ctx context.Context, id domain.Identity, followeeID string) error {
	if followeeID == id.UID {
		return ErrFollowSelf
	}
	if _, err := s.store.GetProfile(ctx, followeeID); err != nil {
		return fmt.Errorf("failed to read followee: %w", err)
	}
	if err := s.store.Follow(ctx, id.UID, followeeID); err != nil {
		return fmt.Errorf("failed to follow %s: %w", followeeID, err)
	}
	return nil
}

func (s *Services) Unfollow(ctx context.Context, id domain.Identity, followeeID string) error {
	if err := s.store.Unfollow(ctx, id.UID, followeeID); err != nil {
		return fmt.Errorf("failed to unfollow %s: %w", followeeID, err)
	}
	return nil
}
