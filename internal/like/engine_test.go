package like

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/feed"
	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/UkralStul/social-feed/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingState - LocalState без отображения, только фиксирует вызовы.
type recordingState struct {
	mu        sync.Mutex
	next      uint64
	confirmed map[uint64]Result
	rolled    []uint64
	notices   []string
}

func newRecordingState() *recordingState {
	return &recordingState{confirmed: make(map[uint64]Result)}
}

func (s *recordingState) ApplyToggle(string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next, false
}

func (s *recordingState) ConfirmToggle(_ string, token uint64, liked bool, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed[token] = Result{Liked: liked, LikeCount: count}
}

func (s *recordingState) RollbackToggle(_ string, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolled = append(s.rolled, token)
}

func (s *recordingState) Notify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, msg)
}

type failingStore struct {
	*inmemory.Store
	err error
}

func (f failingStore) RunTransaction(context.Context, func(context.Context, storage.Tx) error) error {
	return f.err
}

// slowReplyStore коммитит транзакцию и только потом отвечает, с задержкой.
type slowReplyStore struct {
	*inmemory.Store
	delay time.Duration
}

func (s slowReplyStore) RunTransaction(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	err := s.Store.RunTransaction(ctx, fn)
	time.Sleep(s.delay)
	return err
}

// gatedStore держит транзакции до закрытия gate.
type gatedStore struct {
	*inmemory.Store
	gate chan struct{}
}

func (s gatedStore) RunTransaction(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Store.RunTransaction(ctx, fn)
}

func newPost(t *testing.T, s *inmemory.Store) *domain.Post {
	t.Helper()
	p, err := s.CreatePost(context.Background(), &domain.Post{AuthorID: "author", AuthorName: "author", Text: "hello"})
	require.NoError(t, err)
	return p
}

// seedLikes создаёт count лайков от посторонних пользователей.
func seedLikes(t *testing.T, s *inmemory.Store, postID string, count int) {
	t.Helper()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		for i := 0; i < count; i++ {
			if err := tx.CreateLike(ctx, &domain.Like{PostID: postID, UserID: fmt.Sprintf("seed-%d", i)}); err != nil {
				return err
			}
		}
		return tx.SetLikeCount(ctx, postID, int64(count))
	})
	require.NoError(t, err)
}

func assertAgreement(t *testing.T, s *inmemory.Store, postID string, want int64) {
	t.Helper()
	p, err := s.GetPostByID(context.Background(), postID)
	require.NoError(t, err)
	n, err := s.CountLikes(context.Background(), postID)
	require.NoError(t, err)
	assert.Equal(t, want, p.LikeCount)
	assert.Equal(t, want, n)
}

// watchFeed поднимает ленту пользователя uid и ждёт первой доставки.
func watchFeed(t *testing.T, s *inmemory.Store, uid string) (*feed.View, <-chan feed.Snapshot) {
	t.Helper()
	view := feed.NewView()
	m := feed.NewManager(s, view)
	t.Cleanup(m.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch := view.Subscribe(ctx)
	m.SetIdentity(&domain.Identity{UID: uid, Email: uid + "@example.com"})
	waitSnapshot(t, ch, func(s feed.Snapshot) bool { return !s.Loading && len(s.Posts) > 0 })
	return view, ch
}

func waitSnapshot(t *testing.T, ch <-chan feed.Snapshot, ok func(feed.Snapshot) bool) feed.Snapshot {
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
			return feed.Snapshot{}
		}
	}
}

func TestEngine_LikeThenUnlike(t *testing.T) {
	store := inmemory.New()
	post := newPost(t, store)
	view, ch := watchFeed(t, store, "u")
	engine := NewEngine(store, view, "u")

	require.NoError(t, engine.Toggle(context.Background(), post.ID))
	snap := waitSnapshot(t, ch, func(s feed.Snapshot) bool {
		return s.Liked[post.ID] && s.Posts[0].LikeCount == 1
	})
	assert.Empty(t, snap.Notice)
	assertAgreement(t, store, post.ID, 1)
	liked, err := store.LikeExists(context.Background(), post.ID, "u")
	require.NoError(t, err)
	assert.True(t, liked)

	require.NoError(t, engine.Toggle(context.Background(), post.ID))
	waitSnapshot(t, ch, func(s feed.Snapshot) bool {
		return !s.Liked[post.ID] && s.Posts[0].LikeCount == 0
	})
	assertAgreement(t, store, post.ID, 0)
	liked, err = store.LikeExists(context.Background(), post.ID, "u")
	require.NoError(t, err)
	assert.False(t, liked)
}

func TestEngine_DeliveryBeforeConfirmDoesNotDoubleCount(t *testing.T) {
	store := inmemory.New()
	post := newPost(t, store)
	view, ch := watchFeed(t, store, "u")

	var maxSeen atomic.Int64
	go func() {
		for s := range ch {
			if len(s.Posts) == 1 && s.Posts[0].LikeCount > maxSeen.Load() {
				maxSeen.Store(s.Posts[0].LikeCount)
			}
		}
	}()

	engine := NewEngine(slowReplyStore{Store: store, delay: 100 * time.Millisecond}, view, "u")
	require.NoError(t, engine.Toggle(context.Background(), post.ID))

	snap := view.Snapshot()
	assert.True(t, snap.Liked[post.ID])
	assert.Equal(t, int64(1), snap.Posts[0].LikeCount)
	require.Eventually(t, func() bool { return maxSeen.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), maxSeen.Load())
	assertAgreement(t, store, post.ID, 1)
}

func TestEngine_ApplyPrecedesCommit(t *testing.T) {
	store := inmemory.New()
	post := newPost(t, store)
	view, ch := watchFeed(t, store, "u")

	gate := make(chan struct{})
	engine := NewEngine(gatedStore{Store: store, gate: gate}, view, "u")

	// Двойное переключение: оба применены до любого коммита
	first := engine.Apply(post.ID)
	second := engine.Apply(post.ID)
	snap := view.Snapshot()
	assert.False(t, snap.Liked[post.ID])
	assert.Equal(t, int64(0), snap.Posts[0].LikeCount)

	errs := make(chan error, 2)
	for _, p := range []Pending{first, second} {
		go func(p Pending) { errs <- engine.Commit(context.Background(), p) }(p)
	}
	close(gate)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assertAgreement(t, store, post.ID, 0)
	waitSnapshot(t, ch, func(s feed.Snapshot) bool {
		return !s.Liked[post.ID] && s.Posts[0].LikeCount == 0
	})
}

func TestEngine_FailedCommitRollsBackExactly(t *testing.T) {
	store := inmemory.New()
	post := newPost(t, store)
	seedLikes(t, store, post.ID, 3)
	view, ch := watchFeed(t, store, "u")
	waitSnapshot(t, ch, func(s feed.Snapshot) bool { return s.Posts[0].LikeCount == 3 })

	engine := NewEngine(failingStore{Store: store, err: errors.New("unavailable")}, view, "u")
	err := engine.Toggle(context.Background(), post.ID)
	require.Error(t, err)

	snap := view.Snapshot()
	assert.False(t, snap.Liked[post.ID])
	assert.Equal(t, int64(3), snap.Posts[0].LikeCount)
	assert.Equal(t, FailureNotice, snap.Notice)
	assertAgreement(t, store, post.ID, 3)
}

func TestEngine_RollbackKeepsOtherPendingToggle(t *testing.T) {
	store := inmemory.New()
	post := newPost(t, store)
	view, ch := watchFeed(t, store, "u")

	// Первое переключение ещё не завершено, второе падает
	first, _ := view.ApplyToggle(post.ID)
	engine := NewEngine(failingStore{Store: store, err: errors.New("aborted")}, view, "u")
	require.Error(t, engine.Toggle(context.Background(), post.ID))

	snap := view.Snapshot()
	assert.True(t, snap.Liked[post.ID])
	assert.Equal(t, int64(1), snap.Posts[0].LikeCount)

	view.RollbackToggle(post.ID, first)
	waitSnapshot(t, ch, func(s feed.Snapshot) bool {
		return !s.Liked[post.ID] && s.Posts[0].LikeCount == 0
	})
}

func TestEngine_PostDeletedConcurrently(t *testing.T) {
	store := inmemory.New()
	post := newPost(t, store)
	require.NoError(t, store.DeletePost(context.Background(), post.ID))

	state := newRecordingState()
	err := NewEngine(store, state, "u").Toggle(context.Background(), post.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []uint64{1}, state.rolled)
	assert.Equal(t, []string{FailureNotice}, state.notices)
	assert.Empty(t, state.confirmed)
}

func TestEngine_UnlikeAtZeroClamps(t *testing.T) {
	store := inmemory.New()
	post := newPost(t, store)
	// Рассогласованное состояние: членство есть, счётчик 0
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateLike(ctx, &domain.Like{PostID: post.ID, UserID: "u"})
	})
	require.NoError(t, err)

	state := newRecordingState()
	require.NoError(t, NewEngine(store, state, "u").Toggle(context.Background(), post.ID))
	assert.Equal(t, Result{Liked: false, LikeCount: 0}, state.confirmed[1])
	assertAgreement(t, store, post.ID, 0)
}

func TestView_StaleLikedFlagShowsClampedCount(t *testing.T) {
	store := inmemory.New()
	post := newPost(t, store)
	view, _ := watchFeed(t, store, "u")

	// Два оптимистичных переключения подряд при нулевом счётчике
	view.ApplyToggle(post.ID)
	second, wasLiked := view.ApplyToggle(post.ID)
	assert.True(t, wasLiked)
	assert.Equal(t, int64(0), view.Snapshot().Posts[0].LikeCount)

	view.RollbackToggle(post.ID, second)
	assert.Equal(t, int64(1), view.Snapshot().Posts[0].LikeCount)
}

func TestEngine_ConcurrentLikers(t *testing.T) {
	store := inmemory.New()
	post := newPost(t, store)
	seedLikes(t, store, post.ID, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			errs[i] = NewEngine(store, newRecordingState(), uid).Toggle(context.Background(), post.ID)
		}(i, uid)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assertAgreement(t, store, post.ID, 7)
	liked, err := store.LikedPostIDs(context.Background(), "u1", []string{post.ID})
	require.NoError(t, err)
	assert.True(t, liked[post.ID])
	liked, err = store.LikedPostIDs(context.Background(), "u2", []string{post.ID})
	require.NoError(t, err)
	assert.True(t, liked[post.ID])
}

func TestEngine_CounterNeverNegative(t *testing.T) {
	store := inmemory.New()
	post := newPost(t, store)
	users := []string{"a", "b", "c"}

	var wg sync.WaitGroup
	for round := 0; round < 5; round++ {
		for _, uid := range users {
			wg.Add(1)
			go func(uid string) {
				defer wg.Done()
				_ = NewEngine(store, newRecordingState(), uid).Toggle(context.Background(), post.ID)
			}(uid)
		}
		wg.Wait()

		p, err := store.GetPostByID(context.Background(), post.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.LikeCount, int64(0))
	}
	// Нечётное число переключений: каждый пользователь в итоге лайкнул
	assertAgreement(t, store, post.ID, int64(len(users)))
}
