package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/google/uuid"
)

// Store реализует интерфейс Storage в памяти.
// Транзакции сериализуются общей блокировкой, живые запросы получают
// полные снимки после каждого изменения.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	seq      int64
	posts    map[string]*domain.Post
	postSeq  map[string]int64                      // порядок вставки для разрешения равных createdAt
	likes    map[string]map[string]*domain.Like    // map[postID]map[userID]
	follows  map[string]map[string]*domain.Follow  // map[followerID]map[followeeID]
	profiles map[string]*domain.Profile

	postWatchers   map[string]*postWatcher
	followWatchers map[string]*followWatcher
}

type postWatcher struct {
	q  storage.PostQuery
	ch chan storage.PostsSnapshot
}

type followWatcher struct {
	userID string
	ch     chan storage.FollowingSnapshot
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник серверного времени.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New создает новый экземпляр in-memory хранилища.
func New(opts ...Option) *Store {
	s := &Store{
		now:            func() time.Time { return time.Now().UTC() },
		posts:          make(map[string]*domain.Post),
		postSeq:        make(map[string]int64),
		likes:          make(map[string]map[string]*domain.Like),
		follows:        make(map[string]map[string]*domain.Follow),
		profiles:       make(map[string]*domain.Profile),
		postWatchers:   make(map[string]*postWatcher),
		followWatchers: make(map[string]*followWatcher),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := post.Clone()
	p.ID = uuid.NewString()
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	p.LikeCount = 0
	s.seq++
	s.posts[p.ID] = p
	s.postSeq[p.ID] = s.seq

	s.notifyPostsLocked(p.AuthorID)
	return p.Clone(), nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	return post.Clone(), nil
}

func (s *Store) GetPosts(ctx context.Context, q storage.PostQuery) ([]*domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPostsLocked(q), nil
}

func (s *Store) SetPostImage(ctx context.Context, postID, imageURL, imagePath string) error {
	return s.updatePost(ctx, postID, func(p *domain.Post) {
		p.ImageURL = &imageURL
		p.ImagePath = &imagePath
	})
}

func (s *Store) UpdatePostText(ctx context.Context, postID, text string) error {
	return s.updatePost(ctx, postID, func(p *domain.Post) {
		p.Text = text
	})
}

func (s *Store) updatePost(ctx context.Context, postID string, mutate func(p *domain.Post)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	mutate(p)
	p.UpdatedAt = s.now()
	s.notifyPostsLocked(p.AuthorID)
	return nil
}

func (s *Store) DeletePost(ctx context.Context, postID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	delete(s.posts, postID)
	delete(s.postSeq, postID)
	delete(s.likes, postID)
	s.notifyPostsLocked(p.AuthorID)
	return nil
}

func (s *Store) WatchPosts(ctx context.Context, q storage.PostQuery) (<-chan storage.PostsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan storage.PostsSnapshot, 1)
	subID := uuid.NewString()

	s.mu.Lock()
	s.postWatchers[subID] = &postWatcher{q: q, ch: ch}
	ch <- storage.PostsSnapshot{Posts: s.queryPostsLocked(q)}
	s.mu.Unlock()

	// Горутина для очистки при отмене подписки
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.postWatchers, subID)
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

// queryPostsLocked - createdAt DESC, при равенстве - более поздняя вставка первой.
func (s *Store) queryPostsLocked(q storage.PostQuery) []*domain.Post {
	var authors map[string]struct{}
	if q.AuthorIDs != nil {
		authors = make(map[string]struct{}, len(q.AuthorIDs))
		for _, a := range q.AuthorIDs {
			authors[a] = struct{}{}
		}
	}

	result := make([]*domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if authors != nil {
			if _, ok := authors[p.AuthorID]; !ok {
				continue
			}
		}
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return s.postSeq[result[i].ID] > s.postSeq[result[j].ID]
	})

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	for i, p := range result {
		result[i] = p.Clone()
	}
	return result
}

// notifyPostsLocked рассылает новые снимки подпискам, которые видят посты автора.
// Отправка неблокирующая, поэтому безопасна под блокировкой.
func (s *Store) notifyPostsLocked(authorID string) {
	for _, w := range s.postWatchers {
		if !matchesAuthor(w.q, authorID) {
			continue
		}
		storage.Offer(w.ch, storage.PostsSnapshot{Posts: s.queryPostsLocked(w.q)})
	}
}

func matchesAuthor(q storage.PostQuery, authorID string) bool {
	if q.AuthorIDs == nil {
		return true
	}
	for _, a := range q.AuthorIDs {
		if a == authorID {
			return true
		}
	}
	return false
}

// === Like Methods ===

func (s *Store) LikeExists(ctx context.Context, postID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.likes[postID][userID]
	return ok, nil
}

func (s *Store) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		_, ok := s.likes[id][userID]
		result[id] = ok
	}
	return result, nil
}

func (s *Store) CountLikes(ctx context.Context, postID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.likes[postID])), nil
}

// === Follow Methods ===

func (s *Store) Follow(ctx context.Context, followerID, followeeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.follows[followerID] == nil {
		s.follows[followerID] = make(map[string]*domain.Follow)
	}
	if _, ok := s.follows[followerID][followeeID]; ok {
		return nil
	}
	s.follows[followerID][followeeID] = &domain.Follow{FollowerID: followerID, FolloweeID: followeeID, CreatedAt: s.now()}
	s.notifyFollowingLocked(followerID)
	return nil
}

func (s *Store) Unfollow(ctx context.Context, followerID, followeeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.follows[followerID][followeeID]; !ok {
		return nil
	}
	delete(s.follows[followerID], followeeID)
	s.notifyFollowingLocked(followerID)
	return nil
}

func (s *Store) GetFollowing(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.followingLocked(userID), nil
}

func (s *Store) WatchFollowing(ctx context.Context, userID string) (<-chan storage.FollowingSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan storage.FollowingSnapshot, 1)
	subID := uuid.NewString()

	s.mu.Lock()
	s.followWatchers[subID] = &followWatcher{userID: userID, ch: ch}
	ch <- storage.FollowingSnapshot{FolloweeIDs: s.followingLocked(userID)}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.followWatchers, subID)
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

// followingLocked возвращает followee, упорядоченных по id документа.
func (s *Store) followingLocked(userID string) []string {
	ids := make([]string, 0, len(s.follows[userID]))
	for id := range s.follows[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) notifyFollowingLocked(userID string) {
	for _, w := range s.followWatchers {
		if w.userID != userID {
			continue
		}
		storage.Offer(w.ch, storage.FollowingSnapshot{FolloweeIDs: s.followingLocked(userID)})
	}
}

// === Profile Methods ===

func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, storage.ErrNotFound)
	}
	return p.Clone(), nil
}

// CreateProfile создаёт профиль, если его ещё нет; иначе возвращает существующий.
func (s *Store) CreateProfile(ctx context.Context, profile *domain.Profile) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[profile.UserID]; ok {
		return existing.Clone(), nil
	}
	p := profile.Clone()
	p.UpdatedAt = s.now()
	s.profiles[p.UserID] = p
	return p.Clone(), nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, upd storage.ProfileUpdate) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, storage.ErrNotFound)
	}
	if upd.DisplayName != nil {
		p.DisplayName = *upd.DisplayName
	}
	if upd.Bio != nil {
		p.Bio = *upd.Bio
	}
	if upd.PhotoURL != nil {
		url := *upd.PhotoURL
		p.PhotoURL = &url
	}
	p.UpdatedAt = s.now()
	return p.Clone(), nil
}
