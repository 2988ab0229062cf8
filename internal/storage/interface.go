package storage

import (
	"context"
	"errors"

	"github.com/UkralStul/social-feed/internal/domain"
)

// ErrNotFound возвращается, когда документ отсутствует.
var ErrNotFound = errors.New("not found")

// PostQuery - предикат выборки постов: порядок всегда createdAt DESC.
// AuthorIDs == nil означает "все авторы"; пустой не-nil срез не совпадает ни с чем.
type PostQuery struct {
	AuthorIDs []string
	Limit     int
}

// PostsSnapshot - полная замена видимой последовательности постов (не дельта).
// Err != nil означает, что подписка прервана бэкендом.
type PostsSnapshot struct {
	Posts []*domain.Post
	Err   error
}

// FollowingSnapshot - полный текущий набор followee пользователя.
type FollowingSnapshot struct {
	FolloweeIDs []string
	Err         error
}

// ProfileUpdate - merge-обновление профиля: nil-поля не трогаются.
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	PhotoURL    *string
}

// Tx - операции, доступные внутри атомарной транзакции чтения-записи.
type Tx interface {
	GetPost(ctx context.Context, postID string) (*domain.Post, error)
	LikeExists(ctx context.Context, postID, userID string) (bool, error)
	CreateLike(ctx context.Context, like *domain.Like) error
	DeleteLike(ctx context.Context, postID, userID string) error
	SetLikeCount(ctx context.Context, postID string, count int64) error
}

// PostStore - CRUD постов и живые запросы по ним.
type PostStore interface {
	CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	GetPosts(ctx context.Context, q PostQuery) ([]*domain.Post, error)
	SetPostImage(ctx context.Context, postID, imageURL, imagePath string) error
	UpdatePostText(ctx context.Context, postID, text string) error
	DeletePost(ctx context.Context, postID string) error

	// WatchPosts открывает живую подписку. Первый снимок приходит сразу,
	// далее - после каждого изменения подходящих постов. Канал закрывается
	// после отмены ctx или после снимка с ошибкой.
	WatchPosts(ctx context.Context, q PostQuery) (<-chan PostsSnapshot, error)
}

// LikeStore - точечные чтения членства и транзакции.
type LikeStore interface {
	LikeExists(ctx context.Context, postID, userID string) (bool, error)
	LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
	CountLikes(ctx context.Context, postID string) (int64, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// FollowStore - граф подписок.
type FollowStore interface {
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	GetFollowing(ctx context.Context, userID string) ([]string, error)
	WatchFollowing(ctx context.Context, userID string) (<-chan FollowingSnapshot, error)
}

// ProfileStore - документы профилей.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	CreateProfile(ctx context.Context, profile *domain.Profile) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*domain.Profile, error)
}

// Storage определяет контракт документного хранилища.
type Storage interface {
	PostStore
	LikeStore
	FollowStore
	ProfileStore
}
