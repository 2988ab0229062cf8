package feed

import (
	"context"
	"log"
	"sync"

	"github.com/UkralStul/social-feed/internal/dataloader"
	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/metrics"
	"github.com/UkralStul/social-feed/internal/storage"
)

const (
	// PageSize - предел длины видимой ленты.
	PageSize = 50
	// FollowingFanOutLimit - предел авторов в предикате IN для ленты подписок.
	FollowingFanOutLimit = 10
)

// Backend - часть контракта хранилища, нужная ленте.
type Backend interface {
	storage.PostStore
	storage.FollowStore
	storage.LikeStore
}

// Manager владеет живыми подписками ленты: не более одной внешней
// (все посты или набор подписок) и не более одной вложенной (посты авторов).
// Каждая замена отменяет старую подписку и увеличивает поколение;
// доставки устаревших поколений отбрасываются.
type Manager struct {
	backend Backend
	view    *View

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	identity    *domain.Identity
	scope       Scope
	gen         uint64
	outerCancel context.CancelFunc
	innerGen    uint64
	innerCancel context.CancelFunc
	closed      bool
}

// NewManager создает менеджер, пишущий в view.
func NewManager(backend Backend, view *View) *Manager {
	root, cancel := context.WithCancel(context.Background())
	return &Manager{
		backend: backend,
		view:    view,
		root:    root,
		cancel:  cancel,
		scope:   ScopeGlobal,
	}
}

// View возвращает локальное состояние ленты.
func (m *Manager) View() *View { return m.view }

// Scope возвращает активный охват.
func (m *Manager) Scope() Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

// SetIdentity переоткрывает подписки для новой личности; nil закрывает их.
func (m *Manager) SetIdentity(id *domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := !sameIdentity(m.identity, id)
	if id != nil {
		c := *id
		id = &c
	}
	m.identity = id
	m.restartLocked(changed)
}

// SetScope переключает охват ленты.
func (m *Manager) SetScope(scope Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scope == m.scope && m.outerCancel != nil {
		return
	}
	m.scope = scope
	m.restartLocked(false)
}

// Close отменяет все подписки и дожидается их горутин.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.gen++
	m.cancelLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) restartLocked(identityChanged bool) {
	if m.closed {
		return
	}
	m.gen++
	m.cancelLocked()

	if m.identity == nil {
		m.view.reset(m.scope, false, true)
		return
	}
	// Посты прежнего охвата не должны показываться до первой доставки нового
	m.view.reset(m.scope, true, identityChanged)

	ctx, cancel := context.WithCancel(m.root)
	m.outerCancel = cancel
	gen, id := m.gen, *m.identity

	m.wg.Add(1)
	switch m.scope {
	case ScopeFollowing:
		go m.runFollowing(ctx, gen, id)
	default:
		go m.runPosts(ctx, gen, 0, id, storage.PostQuery{Limit: PageSize})
	}
}

func (m *Manager) cancelLocked() {
	if m.innerCancel != nil {
		m.innerCancel()
		m.innerCancel = nil
	}
	if m.outerCancel != nil {
		m.outerCancel()
		m.outerCancel = nil
	}
}

// runFollowing - внешняя подписка на набор подписок; на каждое его изменение
// вложенная подписка на посты атомарно заменяется новой.
func (m *Manager) runFollowing(ctx context.Context, gen uint64, id domain.Identity) {
	defer m.wg.Done()

	ch, err := m.backend.WatchFollowing(ctx, id.UID)
	if err != nil {
		m.fail(gen, 0, "following", err)
		return
	}
	metrics.LiveSubscriptions.WithLabelValues("following").Inc()
	defer metrics.LiveSubscriptions.WithLabelValues("following").Dec()

	for snap := range ch {
		if snap.Err != nil {
			m.fail(gen, 0, "following", snap.Err)
			return
		}
		authors, truncated := AuthorSet(id.UID, snap.FolloweeIDs)
		if !m.replaceInner(ctx, gen, id, authors, len(snap.FolloweeIDs), truncated) {
			return
		}
	}
}

func (m *Manager) replaceInner(ctx context.Context, gen uint64, id domain.Identity, authors []string, followingCount, truncated int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return false
	}
	if m.innerCancel != nil {
		m.innerCancel()
	}
	m.view.setFollowing(followingCount, truncated)

	innerCtx, cancel := context.WithCancel(ctx)
	m.innerGen++
	m.innerCancel = cancel

	m.wg.Add(1)
	go m.runPosts(innerCtx, gen, m.innerGen, id, storage.PostQuery{AuthorIDs: authors, Limit: PageSize})
	return true
}

// runPosts держит живой запрос постов. innerGen == 0 - внешняя подписка.
func (m *Manager) runPosts(ctx context.Context, gen, innerGen uint64, id domain.Identity, q storage.PostQuery) {
	defer m.wg.Done()

	label := "posts"
	if innerGen != 0 {
		label = "following_posts"
	}
	ch, err := m.backend.WatchPosts(ctx, q)
	if err != nil {
		m.fail(gen, innerGen, label, err)
		return
	}
	metrics.LiveSubscriptions.WithLabelValues(label).Inc()
	defer metrics.LiveSubscriptions.WithLabelValues(label).Dec()

	for snap := range ch {
		if snap.Err != nil {
			m.fail(gen, innerGen, label, snap.Err)
			return
		}
		if !m.deliver(gen, innerGen, snap.Posts) {
			return
		}
		m.reconcileLiked(ctx, gen, innerGen, id, snap.Posts)
	}
}

func (m *Manager) current(gen, innerGen uint64) bool {
	return gen == m.gen && (innerGen == 0 || innerGen == m.innerGen)
}

func (m *Manager) deliver(gen, innerGen uint64, posts []*domain.Post) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.current(gen, innerGen) {
		return false
	}
	m.view.replacePosts(posts)
	return true
}

// reconcileLiked - разовые точечные проверки "лайкнуто мной" для каждого
// поста доставки, без постоянных подписок на каждый пост.
func (m *Manager) reconcileLiked(ctx context.Context, gen, innerGen uint64, id domain.Identity, posts []*domain.Post) {
	if len(posts) == 0 {
		return
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	loader := dataloader.NewLikedLoader(m.backend, id.UID)
	checks, err := dataloader.LoadLiked(ctx, loader, ids)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("feed: liked-state check failed: %v", err)
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(gen, innerGen) {
		return
	}
	m.view.mergeLiked(checks)
}

func (m *Manager) fail(gen, innerGen uint64, what string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.current(gen, innerGen) {
		return
	}
	log.Printf("feed: %s subscription failed: %v", what, err)
	m.view.stopLoading("Failed to load the feed.")
}

// AuthorSet возвращает авторов ленты подписок: сам пользователь и followee
// без повторов, обрезанные до FollowingFanOutLimit, и число отброшенных.
func AuthorSet(self string, followees []string) ([]string, int) {
	seen := make(map[string]struct{}, len(followees)+1)
	all := make([]string, 0, len(followees)+1)
	for _, uid := range append([]string{self}, followees...) {
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		all = append(all, uid)
	}
	if len(all) <= FollowingFanOutLimit {
		return all, 0
	}
	return all[:FollowingFanOutLimit], len(all) - FollowingFanOutLimit
}

func sameIdentity(a, b *domain.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
