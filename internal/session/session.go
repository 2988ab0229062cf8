// Package session хранит текущую аутентифицированную личность клиента
// и оповещает зависимые компоненты о входе и выходе.
package session

import (
	"context"
	"sync"

	"github.com/UkralStul/social-feed/internal/auth"
	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/google/uuid"
)

// Session - контекст сессии: {identity | none}.
type Session struct {
	provider auth.Provider

	mu       sync.Mutex
	token    *auth.Token
	watchers map[string]chan *domain.Identity
}

func New(provider auth.Provider) *Session {
	return &Session{
		provider: provider,
		watchers: make(map[string]chan *domain.Identity),
	}
}

func (s *Session) SignUp(ctx context.Context, email, password string) (*auth.Token, error) {
	tok, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.set(tok)
	return tok, nil
}

func (s *Session) SignIn(ctx context.Context, email, password string) (*auth.Token, error) {
	tok, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.set(tok)
	return tok, nil
}

// Restore поднимает сессию по ранее выданному токену.
func (s *Session) Restore(ctx context.Context, token string) (*domain.Identity, error) {
	id, err := s.provider.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	s.set(&auth.Token{Identity: *id, Value: token})
	return id, nil
}

// SignOut отзывает токен у провайдера; локально сессия сбрасывается в любом случае.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()
	if tok == nil {
		return nil
	}
	err := s.provider.SignOut(ctx, tok.Value)
	s.set(nil)
	return err
}

// Current возвращает текущую личность.
func (s *Session) Current() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return domain.Identity{}, false
	}
	return s.token.Identity, true
}

// Token возвращает значение текущего токена или пустую строку.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return ""
	}
	return s.token.Value
}

// Watch - поток личности: текущее значение сразу, затем каждое изменение;
// nil означает выход. Промежуточные значения могут схлопываться.
func (s *Session) Watch(ctx context.Context) <-chan *domain.Identity {
	ch := make(chan *domain.Identity, 1)
	subID := uuid.NewString()

	s.mu.Lock()
	s.watchers[subID] = ch
	ch <- s.identityLocked()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, subID)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *Session) set(tok *auth.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.identityLocked()
	s.token = tok
	next := s.identityLocked()
	if sameIdentity(prev, next) {
		return
	}
	for _, ch := range s.watchers {
		storage.Offer(ch, next)
	}
}

func (s *Session) identityLocked() *domain.Identity {
	if s.token == nil {
		return nil
	}
	id := s.token.Identity
	return &id
}

func sameIdentity(a, b *domain.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
