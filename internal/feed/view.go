package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/google/uuid"
)

// Scope - охват ленты.
type Scope string

const (
	ScopeGlobal    Scope = "global"
	ScopeFollowing Scope = "following"
)

// ErrUnknownScope - охват не из {global, following}.
var ErrUnknownScope = errors.New("unknown feed scope")

// Valid сообщает, известен ли охват.
func (s Scope) Valid() bool {
	return s == ScopeGlobal || s == ScopeFollowing
}

// Snapshot - неизменяемый снимок локального состояния ленты.
type Snapshot struct {
	Version        uint64          `json:"version"`
	Scope          Scope           `json:"scope"`
	Loading        bool            `json:"loading"`
	Posts          []*domain.Post  `json:"posts"`
	Liked          map[string]bool `json:"liked"`
	FollowingCount int             `json:"followingCount"`
	AuthorLimit    int             `json:"authorLimit,omitempty"`
	Truncated      int             `json:"truncated"`
	Notice         string          `json:"notice,omitempty"`
}

// pendingToggle - оптимистичное переключение, чья транзакция ещё не завершилась.
// seq - номер доставки постов, поверх которой применена дельта;
// overlapped - на том же посте одновременно ожидало другое переключение.
type pendingToggle struct {
	token      uint64
	liked      bool
	delta      int64
	seq        uint64
	overlapped bool
}

// View - локальное (эфемерное) состояние ленты одного клиента.
// Показанный счётчик = max(0, сохранённый + дельты ожидающих переключений,
// применённых после последней доставки); новая доставка вытесняет дельты.
// Показанный флаг = флаг последнего ожидающего переключения или базовый.
type View struct {
	mu             sync.Mutex
	version        uint64
	scope          Scope
	loading        bool
	posts          []*domain.Post
	liked          map[string]bool
	pending        map[string][]*pendingToggle // map[postID]
	nextToken      uint64
	delivered      uint64
	followingCount int
	truncated      int
	notice         string

	listeners map[string]chan Snapshot
}

// NewView создает пустое состояние с глобальным охватом.
func NewView() *View {
	return &View{
		scope:     ScopeGlobal,
		liked:     make(map[string]bool),
		pending:   make(map[string][]*pendingToggle),
		listeners: make(map[string]chan Snapshot),
	}
}

// Snapshot возвращает текущий снимок.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Subscribe доставляет текущий снимок и затем каждый следующий (последний побеждает).
func (v *View) Subscribe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	subID := uuid.NewString()

	v.mu.Lock()
	v.listeners[subID] = ch
	ch <- v.snapshotLocked()
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.listeners, subID)
		close(ch)
		v.mu.Unlock()
	}()
	return ch
}

// === LocalState для движка лайков ===

// Liked - показанный флаг "лайкнуто мной".
func (v *View) Liked(postID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.likedLocked(postID)
}

// ApplyToggle применяет оптимистичное переключение и возвращает его токен
// и флаг, который был показан до переключения.
func (v *View) ApplyToggle(postID string) (token uint64, wasLiked bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	wasLiked = v.likedLocked(postID)
	v.nextToken++
	delta := int64(1)
	if wasLiked {
		delta = -1
	}
	list := v.pending[postID]
	for _, t := range list {
		t.overlapped = true
	}
	v.pending[postID] = append(list, &pendingToggle{
		token:      v.nextToken,
		liked:      !wasLiked,
		delta:      delta,
		seq:        v.delivered,
		overlapped: len(list) > 0,
	})
	v.changedLocked()
	return v.nextToken, wasLiked
}

// ConfirmToggle снимает подтверждённое переключение. Флаг берётся из итога
// транзакции, счётчик тоже, если после применения не было доставки постов.
func (v *View) ConfirmToggle(postID string, token uint64, liked bool, count int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Переключение сброшено вместе с прежней личностью
	t := v.removePendingLocked(postID, token)
	if t == nil {
		return
	}
	// Подтверждения наложенных переключений приходят в произвольном
	// порядке: их итог принесёт следующая доставка
	if t.overlapped {
		v.changedLocked()
		return
	}
	v.liked[postID] = liked
	if t.seq == v.delivered {
		v.setCountLocked(postID, count)
	}
	v.changedLocked()
}

// RollbackToggle отменяет ровно это переключение: его дельта счётчика
// снимается, флаг возвращается к предыдущему намерению.
func (v *View) RollbackToggle(postID string, token uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.removePendingLocked(postID, token) != nil {
		v.changedLocked()
	}
}

// Notify показывает пользователю сообщение об ошибке.
func (v *View) Notify(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notice = message
	v.changedLocked()
}

// === Методы менеджера подписок ===

// reset сбрасывает состояние перед новой подпиской.
// clearLiked - при смене личности карта лайков принадлежит другому пользователю.
func (v *View) reset(scope Scope, loading, clearLiked bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.scope = scope
	v.loading = loading
	v.followingCount = 0
	v.truncated = 0
	v.posts = nil
	if clearLiked {
		v.liked = make(map[string]bool)
		v.pending = make(map[string][]*pendingToggle)
	}
	v.changedLocked()
}

// replacePosts заменяет видимую последовательность целиком.
// Доставленные счётчики вытесняют дельты уже ожидающих переключений.
func (v *View) replacePosts(posts []*domain.Post) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.delivered++
	v.posts = posts
	v.loading = false
	v.changedLocked()
}

// mergeLiked вливает результаты точечных проверок, сохраняя записи
// для постов, которых нет в текущей доставке.
func (v *View) mergeLiked(checks map[string]bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for postID, liked := range checks {
		v.liked[postID] = liked
	}
	v.changedLocked()
}

func (v *View) setFollowing(count, truncated int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.followingCount = count
	v.truncated = truncated
	v.changedLocked()
}

func (v *View) stopLoading(notice string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false
	if notice != "" {
		v.notice = notice
	}
	v.changedLocked()
}

// === внутреннее ===

func (v *View) likedLocked(postID string) bool {
	if list := v.pending[postID]; len(list) > 0 {
		return list[len(list)-1].liked
	}
	return v.liked[postID]
}

func (v *View) setCountLocked(postID string, count int64) {
	for i, p := range v.posts {
		if p.ID == postID {
			c := p.Clone()
			c.LikeCount = count
			posts := append([]*domain.Post(nil), v.posts...)
			posts[i] = c
			v.posts = posts
			return
		}
	}
}

func (v *View) removePendingLocked(postID string, token uint64) *pendingToggle {
	list := v.pending[postID]
	for i, p := range list {
		if p.token != token {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(v.pending, postID)
		} else {
			v.pending[postID] = list
		}
		return p
	}
	return nil
}

func (v *View) changedLocked() {
	v.version++
	if len(v.listeners) == 0 {
		return
	}
	snap := v.snapshotLocked()
	for _, ch := range v.listeners {
		storage.Offer(ch, snap)
	}
}

func (v *View) snapshotLocked() Snapshot {
	posts := make([]*domain.Post, len(v.posts))
	for i, p := range v.posts {
		c := p.Clone()
		var delta int64
		for _, t := range v.pending[p.ID] {
			if t.seq == v.delivered {
				delta += t.delta
			}
		}
		if delta != 0 {
			c.LikeCount += delta
			if c.LikeCount < 0 {
				c.LikeCount = 0
			}
		}
		posts[i] = c
	}

	liked := make(map[string]bool, len(v.liked)+len(v.pending))
	for id, l := range v.liked {
		liked[id] = l
	}
	for id := range v.pending {
		liked[id] = v.likedLocked(id)
	}

	snap := Snapshot{
		Version:        v.version,
		Scope:          v.scope,
		Loading:        v.loading,
		Posts:          posts,
		Liked:          liked,
		FollowingCount: v.followingCount,
		Truncated:      v.truncated,
		Notice:         v.notice,
	}
	if v.scope == ScopeFollowing {
		snap.AuthorLimit = FollowingFanOutLimit
	}
	return snap
}
