package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/media"
	"github.com/UkralStul/social-feed/internal/objectstore"
	"github.com/UkralStul/social-feed/internal/storage"
)

var (
	ErrNotOwner         = errors.New("only the owner can edit this profile")
	ErrEmptyDisplayName = errors.New("display name cannot be empty")
)

// Store читает и обновляет профиль пользователя.
type Store struct {
	profiles storage.ProfileStore
	objects  objectstore.Store
}

func NewStore(profiles storage.ProfileStore, objects objectstore.Store) *Store {
	return &Store{profiles: profiles, objects: objects}
}

// Get возвращает профиль; при первом обращении создаёт его из учётной записи.
func (s *Store) Get(ctx context.Context, id domain.Identity) (*domain.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, id.UID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	p, err = s.profiles.CreateProfile(ctx, &domain.Profile{
		UserID:      id.UID,
		DisplayName: id.DefaultDisplayName(),
		Email:       id.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

// Update - merge-обновление имени, био и аватара; только владелец.
func (s *Store) Update(ctx context.Context, caller domain.Identity, userID string, upd storage.ProfileUpdate) (*domain.Profile, error) {
	if caller.UID != userID {
		return nil, ErrNotOwner
	}
	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		if name == "" {
			return nil, ErrEmptyDisplayName
		}
		upd.DisplayName = &name
	}
	if _, err := s.Get(ctx, caller); err != nil {
		return nil, err
	}
	p, err := s.profiles.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return p, nil
}

// SetAvatar загружает аватар и сохраняет его URL в профиле.
func (s *Store) SetAvatar(ctx context.Context, caller domain.Identity, img media.Image) (*domain.Profile, error) {
	if err := media.Validate(&img); err != nil {
		return nil, err
	}
	url, err := s.objects.Upload(ctx, media.AvatarPath(caller.UID, img.ContentType), img.ContentType, img.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}
	return s.Update(ctx, caller, caller.UID, storage.ProfileUpdate{PhotoURL: &url})
}
