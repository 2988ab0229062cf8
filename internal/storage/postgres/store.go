package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/UkralStul/social-feed/internal/storage/notify"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store реализует интерфейс Storage с использованием PostgreSQL.
// Живые запросы перечитывают выборку по сигналу notifier'а.
type Store struct {
	db       *gorm.DB
	notifier notify.Notifier
}

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string, notifier notify.Notifier) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Выполняем миграцию схемы
	if err := db.AutoMigrate(&domain.Post{}, &domain.Like{}, &domain.Follow{}, &domain.Profile{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return NewWithDB(db, notifier), nil
}

// NewWithDB оборачивает уже открытое соединение, без миграции схемы.
func NewWithDB(db *gorm.DB, notifier notify.Notifier) *Store {
	return &Store{db: db, notifier: notifier}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrNotFound)
	}
	return err
}

func (s *Store) publish(ctx context.Context, topic string) {
	if err := s.notifier.Publish(ctx, topic); err != nil {
		log.Printf("postgres: publish %s: %v", topic, err)
	}
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	p := post.Clone()
	p.ID = ""
	p.LikeCount = 0
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	// GORM заполнит ID, CreatedAt и UpdatedAt после создания
	s.publish(ctx, notify.TopicPosts)
	return p, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	var post domain.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "post", id)
	}
	return &post, nil
}

func (s *Store) GetPosts(ctx context.Context, q storage.PostQuery) ([]*domain.Post, error) {
	posts := []*domain.Post{}
	if q.AuthorIDs != nil && len(q.AuthorIDs) == 0 {
		return posts, nil
	}
	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if q.AuthorIDs != nil {
		query = query.Where("author_id IN ?", q.AuthorIDs)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	err := query.Find(&posts).Error
	return posts, err
}

func (s *Store) SetPostImage(ctx context.Context, postID, imageURL, imagePath string) error {
	return s.updatePost(ctx, postID, map[string]any{
		"image_url":  imageURL,
		"image_path": imagePath,
	})
}

func (s *Store) UpdatePostText(ctx context.Context, postID, text string) error {
	return s.updatePost(ctx, postID, map[string]any{"text": text})
}

func (s *Store) updatePost(ctx context.Context, postID string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&domain.Post{}).Where("id = ?", postID).UpdateColumns(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	s.publish(ctx, notify.TopicPosts)
	return nil
}

func (s *Store) DeletePost(ctx context.Context, postID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&domain.Like{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", postID).Delete(&domain.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, notify.TopicPosts)
	return nil
}

func (s *Store) WatchPosts(ctx context.Context, q storage.PostQuery) (<-chan storage.PostsSnapshot, error) {
	return watch(ctx, s.notifier, notify.TopicPosts, func(ctx context.Context) storage.PostsSnapshot {
		posts, err := s.GetPosts(ctx, q)
		return storage.PostsSnapshot{Posts: posts, Err: err}
	}, func(snap storage.PostsSnapshot) error { return snap.Err })
}

// watch подписывается на топик до первого чтения, чтобы не пропустить
// изменение между снимком и подпиской, и перечитывает выборку на каждый сигнал.
func watch[T any](ctx context.Context, n notify.Notifier, topic string, read func(ctx context.Context) T, errOf func(T) error) (<-chan T, error) {
	subCtx, cancel := context.WithCancel(ctx)
	changes, err := n.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, err
	}

	first := read(ctx)
	if err := errOf(first); err != nil {
		cancel()
		return nil, err
	}

	ch := make(chan T, 1)
	ch <- first
	go func() {
		defer close(ch)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				snap := read(ctx)
				if ctx.Err() != nil {
					return
				}
				storage.Offer(ch, snap)
				if err := errOf(snap); err != nil {
					log.Printf("postgres: live query on %s stopped: %v", topic, err)
					return
				}
			}
		}
	}()
	return ch, nil
}

// === Like Methods ===

func (s *Store) LikeExists(ctx context.Context, postID, userID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&n).Error
	return n > 0, err
}

func (s *Store) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}
	var liked []string
	err := s.db.WithContext(ctx).Model(&domain.Like{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &liked).Error
	if err != nil {
		return nil, err
	}
	for _, id := range postIDs {
		result[id] = false
	}
	for _, id := range liked {
		result[id] = true
	}
	return result, nil
}

func (s *Store) CountLikes(ctx context.Context, postID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Like{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}

// RunTransaction выполняет fn в транзакции БД. Чтение поста через Tx берёт
// блокировку строки (SELECT ... FOR UPDATE), так что конкурентные
// переключения лайка одного поста сериализуются и не теряют инкременты.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	var dirty bool
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx := &pgTx{db: db}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		dirty = tx.dirty
		return nil
	})
	if err != nil {
		return err
	}
	if dirty {
		s.publish(ctx, notify.TopicPosts)
	}
	return nil
}

type pgTx struct {
	db    *gorm.DB
	dirty bool
}

func (tx *pgTx) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
	var post domain.Post
	err := tx.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, "id = ?", postID).Error
	if err != nil {
		return nil, notFound(err, "post", postID)
	}
	return &post, nil
}

func (tx *pgTx) LikeExists(ctx context.Context, postID, userID string) (bool, error) {
	var n int64
	err := tx.db.Model(&domain.Like{}).Where("post_id = ? AND user_id = ?", postID, userID).Count(&n).Error
	return n > 0, err
}

func (tx *pgTx) CreateLike(ctx context.Context, like *domain.Like) error {
	return tx.db.Create(like).Error
}

func (tx *pgTx) DeleteLike(ctx context.Context, postID, userID string) error {
	return tx.db.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&domain.Like{}).Error
}

func (tx *pgTx) SetLikeCount(ctx context.Context, postID string, count int64) error {
	if count < 0 {
		return fmt.Errorf("post %s: negative like count %d", postID, count)
	}
	// UpdateColumn не трогает updated_at: счётчик не является правкой автора
	res := tx.db.Model(&domain.Post{}).Where("id = ?", postID).UpdateColumn("like_count", count)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	tx.dirty = true
	return nil
}

// === Follow Methods ===

func (s *Store) Follow(ctx context.Context, followerID, followeeID string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.Follow{FollowerID: followerID, FolloweeID: followeeID}).Error
	if err != nil {
		return err
	}
	s.publish(ctx, notify.TopicFollowing(followerID))
	return nil
}

func (s *Store) Unfollow(ctx context.Context, followerID, followeeID string) error {
	err := s.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&domain.Follow{}).Error
	if err != nil {
		return err
	}
	s.publish(ctx, notify.TopicFollowing(followerID))
	return nil
}

func (s *Store) GetFollowing(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).Model(&domain.Follow{}).
		Where("follower_id = ?", userID).
		Order("followee_id").
		Pluck("followee_id", &ids).Error
	return ids, err
}

func (s *Store) WatchFollowing(ctx context.Context, userID string) (<-chan storage.FollowingSnapshot, error) {
	return watch(ctx, s.notifier, notify.TopicFollowing(userID), func(ctx context.Context) storage.FollowingSnapshot {
		ids, err := s.GetFollowing(ctx, userID)
		return storage.FollowingSnapshot{FolloweeIDs: ids, Err: err}
	}, func(snap storage.FollowingSnapshot) error { return snap.Err })
}

// === Profile Methods ===

func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err, "profile", userID)
	}
	return &p, nil
}

func (s *Store) CreateProfile(ctx context.Context, profile *domain.Profile) (*domain.Profile, error) {
	p := profile.Clone()
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error; err != nil {
		return nil, err
	}
	// При конфликте возвращаем уже существующий документ
	return s.GetProfile(ctx, profile.UserID)
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, upd storage.ProfileUpdate) (*domain.Profile, error) {
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if upd.DisplayName != nil {
		fields["display_name"] = *upd.DisplayName
	}
	if upd.Bio != nil {
		fields["bio"] = *upd.Bio
	}
	if upd.PhotoURL != nil {
		fields["photo_url"] = *upd.PhotoURL
	}
	res := s.db.WithContext(ctx).Model(&domain.Profile{}).Where("user_id = ?", userID).UpdateColumns(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("profile %s: %w", userID, storage.ErrNotFound)
	}
	return s.GetProfile(ctx, userID)
}
