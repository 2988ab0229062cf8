package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/UkralStul/social-feed/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var me = &domain.Identity{UID: "me", Email: "me@example.com"}

func start(t *testing.T, b Backend) (*Manager, <-chan Snapshot) {
	t.Helper()
	m := NewManager(b, NewView())
	t.Cleanup(m.Close)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return m, m.View().Subscribe(ctx)
}

func waitFor(t *testing.T, ch <-chan Snapshot, ok func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatal("expected snapshot not delivered")
			return Snapshot{}
		}
	}
}

func postBy(t *testing.T, s *inmemory.Store, author, text string) *domain.Post {
	t.Helper()
	p, err := s.CreatePost(context.Background(), &domain.Post{AuthorID: author, AuthorName: author, Text: text})
	require.NoError(t, err)
	return p
}

func authors(s Snapshot) map[string]bool {
	out := make(map[string]bool)
	for _, p := range s.Posts {
		out[p.AuthorID] = true
	}
	return out
}

func texts(s Snapshot) []string {
	out := make([]string, len(s.Posts))
	for i, p := range s.Posts {
		out[i] = p.Text
	}
	return out
}

func TestManager_GlobalFeedIsLive(t *testing.T) {
	store := inmemory.New()
	postBy(t, store, "a", "first")
	m, ch := start(t, store)

	m.SetIdentity(me)
	snap := waitFor(t, ch, func(s Snapshot) bool { return !s.Loading && len(s.Posts) == 1 })
	assert.Equal(t, ScopeGlobal, snap.Scope)
	assert.Zero(t, snap.AuthorLimit)

	postBy(t, store, "b", "second")
	snap = waitFor(t, ch, func(s Snapshot) bool { return len(s.Posts) == 2 })
	assert.Equal(t, []string{"second", "first"}, texts(snap))
}

func TestManager_LikedReconciliation(t *testing.T) {
	store := inmemory.New()
	liked := postBy(t, store, "a", "liked")
	postBy(t, store, "a", "plain")
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateLike(ctx, &domain.Like{PostID: liked.ID, UserID: me.UID})
	})
	require.NoError(t, err)

	m, ch := start(t, store)
	m.SetIdentity(me)
	snap := waitFor(t, ch, func(s Snapshot) bool { return len(s.Posts) == 2 && s.Liked[liked.ID] })
	assert.Len(t, snap.Liked, 2)
}

func TestManager_FollowingScopeIsolation(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()
	postBy(t, store, "me", "mine")
	postBy(t, store, "friend", "friend's")
	postBy(t, store, "stranger", "stranger's")
	require.NoError(t, store.Follow(ctx, "me", "friend"))

	m, ch := start(t, store)
	m.SetIdentity(me)
	waitFor(t, ch, func(s Snapshot) bool { return len(s.Posts) == 3 })

	m.SetScope(ScopeFollowing)
	snap := waitFor(t, ch, func(s Snapshot) bool { return s.Scope == ScopeFollowing && !s.Loading })
	assert.Equal(t, map[string]bool{"me": true, "friend": true}, authors(snap))
	assert.Equal(t, 1, snap.FollowingCount)
	assert.Equal(t, FollowingFanOutLimit, snap.AuthorLimit)

	// Новый пост постороннего не попадает в ленту подписок
	postBy(t, store, "stranger", "again")
	postBy(t, store, "friend", "more")
	snap = waitFor(t, ch, func(s Snapshot) bool { return len(s.Posts) == 3 })
	assert.Equal(t, map[string]bool{"me": true, "friend": true}, authors(snap))

	require.NoError(t, store.Follow(ctx, "me", "stranger"))
	snap = waitFor(t, ch, func(s Snapshot) bool { return authors(s)["stranger"] })
	assert.Len(t, snap.Posts, 5)

	require.NoError(t, store.Unfollow(ctx, "me", "friend"))
	snap = waitFor(t, ch, func(s Snapshot) bool { return !authors(s)["friend"] && len(s.Posts) > 0 })
	assert.Equal(t, map[string]bool{"me": true, "stranger": true}, authors(snap))

	m.SetScope(ScopeGlobal)
	waitFor(t, ch, func(s Snapshot) bool { return s.Scope == ScopeGlobal && len(s.Posts) == 5 })
}

func TestManager_FollowingFanOutIsCapped(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		uid := fmt.Sprintf("u%02d", i)
		require.NoError(t, store.Follow(ctx, "me", uid))
		postBy(t, store, uid, "post by "+uid)
	}

	m, ch := start(t, store)
	m.SetScope(ScopeFollowing)
	m.SetIdentity(me)

	snap := waitFor(t, ch, func(s Snapshot) bool { return !s.Loading && s.FollowingCount == 12 && len(s.Posts) > 0 })
	assert.Equal(t, 3, snap.Truncated)
	assert.Len(t, snap.Posts, FollowingFanOutLimit-1)
	assert.LessOrEqual(t, len(authors(snap)), FollowingFanOutLimit)
}

func TestAuthorSet(t *testing.T) {
	got, truncated := AuthorSet("me", []string{"a", "me", "b", "a"})
	assert.Equal(t, []string{"me", "a", "b"}, got)
	assert.Zero(t, truncated)

	many := make([]string, 15)
	for i := range many {
		many[i] = fmt.Sprintf("f%d", i)
	}
	got, truncated = AuthorSet("me", many)
	assert.Len(t, got, FollowingFanOutLimit)
	assert.Equal(t, "me", got[0])
	assert.Equal(t, 6, truncated)
}

func TestManager_SignOutClearsView(t *testing.T) {
	store := inmemory.New()
	postBy(t, store, "a", "hello")
	m, ch := start(t, store)

	m.SetIdentity(me)
	waitFor(t, ch, func(s Snapshot) bool { return len(s.Posts) == 1 })

	m.SetIdentity(nil)
	snap := waitFor(t, ch, func(s Snapshot) bool { return len(s.Posts) == 0 })
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Liked)

	// Подписок больше нет: новые посты не доставляются
	postBy(t, store, "a", "unseen")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, m.View().Snapshot().Posts)
}

func TestManager_ScopeSwitchKeepsOffscreenLikedEntries(t *testing.T) {
	store := inmemory.New()
	p := postBy(t, store, "stranger", "liked elsewhere")
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateLike(ctx, &domain.Like{PostID: p.ID, UserID: me.UID})
	})
	require.NoError(t, err)

	m, ch := start(t, store)
	m.SetIdentity(me)
	waitFor(t, ch, func(s Snapshot) bool { return s.Liked[p.ID] })

	m.SetScope(ScopeFollowing)
	snap := waitFor(t, ch, func(s Snapshot) bool { return s.Scope == ScopeFollowing && !s.Loading })
	assert.Empty(t, snap.Posts)
	assert.True(t, snap.Liked[p.ID])
}

// scriptedBackend отдаёт каналы постов, которыми управляет тест.
type scriptedBackend struct {
	*inmemory.Store

	mu       sync.Mutex
	feeds    []chan storage.PostsSnapshot
	watchErr error
}

func (b *scriptedBackend) WatchPosts(ctx context.Context, q storage.PostQuery) (<-chan storage.PostsSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watchErr != nil {
		return nil, b.watchErr
	}
	ch := make(chan storage.PostsSnapshot, 1)
	b.feeds = append(b.feeds, ch)
	return ch, nil
}

func (b *scriptedBackend) feed(t *testing.T, i int) chan storage.PostsSnapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.feeds) > i
	}, time.Second, 5*time.Millisecond)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.feeds[i]
}

func (b *scriptedBackend) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.feeds {
		close(ch)
	}
	b.feeds = nil
}

func TestManager_StaleDeliveryIgnored(t *testing.T) {
	backend := &scriptedBackend{Store: inmemory.New()}
	m, ch := start(t, backend)
	t.Cleanup(backend.closeAll)

	m.SetIdentity(me)
	global := backend.feed(t, 0)
	global <- storage.PostsSnapshot{Posts: []*domain.Post{{ID: "g1", AuthorID: "stranger", Text: "global"}}}
	waitFor(t, ch, func(s Snapshot) bool { return len(s.Posts) == 1 })

	m.SetScope(ScopeFollowing)
	following := backend.feed(t, 1)

	global <- storage.PostsSnapshot{Posts: []*domain.Post{{ID: "g2", AuthorID: "stranger", Text: "stale"}}}
	following <- storage.PostsSnapshot{Posts: []*domain.Post{{ID: "f1", AuthorID: "me", Text: "fresh"}}}

	waitFor(t, ch, func(s Snapshot) bool { return len(s.Posts) == 1 && s.Posts[0].ID == "f1" })
	time.Sleep(50 * time.Millisecond)
	snap := m.View().Snapshot()
	assert.Equal(t, []string{"fresh"}, texts(snap))
}

func TestManager_SubscriptionErrorStopsLoading(t *testing.T) {
	backend := &scriptedBackend{Store: inmemory.New(), watchErr: errors.New("permission denied")}
	m, ch := start(t, backend)

	m.SetIdentity(me)
	snap := waitFor(t, ch, func(s Snapshot) bool { return !s.Loading && s.Notice != "" })
	assert.Empty(t, snap.Posts)
}

func TestManager_ErrorSnapshotKeepsStalePosts(t *testing.T) {
	backend := &scriptedBackend{Store: inmemory.New()}
	m, ch := start(t, backend)
	t.Cleanup(backend.closeAll)

	m.SetIdentity(me)
	feed := backend.feed(t, 0)
	feed <- storage.PostsSnapshot{Posts: []*domain.Post{{ID: "p1", AuthorID: "a", Text: "kept"}}}
	waitFor(t, ch, func(s Snapshot) bool { return len(s.Posts) == 1 })

	feed <- storage.PostsSnapshot{Err: errors.New("connection lost")}
	snap := waitFor(t, ch, func(s Snapshot) bool { return s.Notice != "" })
	assert.False(t, snap.Loading)
	assert.Equal(t, []string{"kept"}, texts(snap))
}
