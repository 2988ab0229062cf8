// Package post создаёт, редактирует и удаляет посты и их изображения.
// Счётчик лайков здесь не пишется никогда.
package post

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/media"
	"github.com/UkralStul/social-feed/internal/metrics"
	"github.com/UkralStul/social-feed/internal/objectstore"
	"github.com/UkralStul/social-feed/internal/storage"
)

var (
	ErrEmptyText    = errors.New("post text cannot be empty")
	ErrNotAuthor    = errors.New("only the author can modify this post")
	ErrNotConfirmed = errors.New("post deletion must be confirmed")
	// ErrImageUpload - пост создан, но изображение к нему не приложено.
	ErrImageUpload = errors.New("post created without image")
)

// AuthorProfiles - источник снимка автора для нового поста.
type AuthorProfiles interface {
	Get(ctx context.Context, id domain.Identity) (*domain.Profile, error)
}

// CreateInput - данные нового поста. Image необязателен.
type CreateInput struct {
	Text  string
	Image *media.Image
}

type Service struct {
	posts    storage.PostStore
	objects  objectstore.Store
	profiles AuthorProfiles
}

func NewService(posts storage.PostStore, objects objectstore.Store, profiles AuthorProfiles) *Service {
	return &Service{posts: posts, objects: objects, profiles: profiles}
}

// Create создаёт пост, затем (если есть) загружает изображение и прописывает его в пост.
// Ошибка загрузки оставляет пост без изображения: возвращаются и пост, и ErrImageUpload.
func (s *Service) Create(ctx context.Context, author domain.Identity, in CreateInput) (*domain.Post, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if err := media.Validate(in.Image); err != nil {
		return nil, err
	}

	p := &domain.Post{
		AuthorID:   author.UID,
		AuthorName: author.DefaultDisplayName(),
		Text:       text,
	}
	if prof, err := s.profiles.Get(ctx, author); err != nil {
		log.Printf("post: author profile %s unavailable, using defaults: %v", author.UID, err)
	} else {
		if name := strings.TrimSpace(prof.DisplayName); name != "" {
			p.AuthorName = name
		}
		p.AuthorPhotoURL = prof.PhotoURL
	}

	created, err := s.posts.CreatePost(ctx, p)
	if err != nil {
		metrics.PostMutations.WithLabelValues("create", "failed").Inc()
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	if in.Image == nil {
		metrics.PostMutations.WithLabelValues("create", "ok").Inc()
		return created, nil
	}

	path := media.PostImagePath(author.UID, created.ID, in.Image.ContentType)
	url, err := s.objects.Upload(ctx, path, in.Image.ContentType, in.Image.Data)
	if err == nil {
		err = s.posts.SetPostImage(ctx, created.ID, url, path)
	}
	if err != nil {
		metrics.PostMutations.WithLabelValues("create", "partial").Inc()
		log.Printf("post: image for %s not attached: %v", created.ID, err)
		return created, fmt.Errorf("%w: %w", ErrImageUpload, err)
	}

	created.ImageURL = &url
	created.ImagePath = &path
	metrics.PostMutations.WithLabelValues("create", "ok").Inc()
	return created, nil
}

// Edit меняет текст поста; только автор.
func (s *Service) Edit(ctx context.Context, caller domain.Identity, postID, text string) (*domain.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if _, err := s.authored(ctx, caller, postID); err != nil {
		return nil, err
	}

	err := s.posts.UpdatePostText(ctx, postID, text)
	metrics.PostMutations.WithLabelValues("edit", metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	return s.posts.GetPostByID(ctx, postID)
}

// Delete удаляет изображение (ошибка лишь логируется), затем сам пост.
func (s *Service) Delete(ctx context.Context, caller domain.Identity, postID string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	p, err := s.authored(ctx, caller, postID)
	if err != nil {
		return err
	}

	if p.HasImage() {
		if err := s.objects.Delete(ctx, *p.ImagePath); err != nil {
			log.Printf("post: failed to delete image %s of %s: %v", *p.ImagePath, postID, err)
		}
	}

	err = s.posts.DeletePost(ctx, postID)
	metrics.PostMutations.WithLabelValues("delete", metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

func (s *Service) authored(ctx context.Context, caller domain.Identity, postID string) (*domain.Post, error) {
	p, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to read post: %w", err)
	}
	if p.AuthorID != caller.UID {
		return nil, ErrNotAuthor
	}
	return p, nil
}
