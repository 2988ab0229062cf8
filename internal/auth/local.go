package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/UkralStul/social-feed/internal/domain"
	jw "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 24 * time.Hour

type account struct {
	uid          string
	email        string
	passwordHash []byte
}

// Claims - содержимое ID-токена.
type Claims struct {
	Email string `json:"email"`
	jw.RegisteredClaims
}

// LocalProvider - провайдер email/пароль: bcrypt-хэши в памяти, HS256 JWT.
type LocalProvider struct {
	mu       sync.RWMutex
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	accounts map[string]*account // map[email]
	revoked  map[string]time.Time // map[jti]exp
}

// LocalOption настраивает LocalProvider.
type LocalOption func(*LocalProvider)

// WithTokenTTL задаёт время жизни токена.
func WithTokenTTL(ttl time.Duration) LocalOption {
	return func(p *LocalProvider) { p.ttl = ttl }
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) LocalOption {
	return func(p *LocalProvider) { p.now = now }
}

// NewLocalProvider создает провайдер с секретом подписи токенов.
func NewLocalProvider(secret string, opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		secret:   []byte(secret),
		ttl:      defaultTokenTTL,
		now:      time.Now,
		accounts: make(map[string]*account),
		revoked:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*Token, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	if _, ok := p.accounts[email]; ok {
		p.mu.Unlock()
		return nil, ErrEmailAlreadyInUse
	}
	acc := &account{uid: uuid.NewString(), email: email, passwordHash: hash}
	p.accounts[email] = acc
	p.mu.Unlock()

	return p.issue(acc)
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Token, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	acc, ok := p.accounts[email]
	p.mu.RUnlock()
	// Не раскрываем, что именно неверно: email или пароль
	if !ok {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}
	return p.issue(acc)
}

// SignOut отзывает токен до истечения его срока.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	claims, err := p.parse(token)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for jti, exp := range p.revoked {
		if now.After(exp) {
			delete(p.revoked, jti)
		}
	}
	p.revoked[claims.ID] = claims.ExpiresAt.Time
	return nil
}

func (p *LocalProvider) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := p.parse(token)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	_, revoked := p.revoked[claims.ID]
	p.mu.RUnlock()
	if revoked {
		return nil, ErrInvalidToken
	}
	return &domain.Identity{UID: claims.Subject, Email: claims.Email}, nil
}

func (p *LocalProvider) issue(acc *account) (*Token, error) {
	now := p.now()
	exp := now.Add(p.ttl)
	claims := Claims{
		Email: acc.email,
		RegisteredClaims: jw.RegisteredClaims{
			Subject:   acc.uid,
			ID:        uuid.NewString(),
			IssuedAt:  jw.NewNumericDate(now),
			ExpiresAt: jw.NewNumericDate(exp),
		},
	}
	signed, err := jw.NewWithClaims(jw.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{
		Identity:  domain.Identity{UID: acc.uid, Email: acc.email},
		Value:     signed,
		ExpiresAt: exp,
	}, nil
}

func (p *LocalProvider) parse(token string) (*Claims, error) {
	claims := &Claims{}
	t, err := jw.ParseWithClaims(token, claims, func(t *jw.Token) (any, error) {
		return p.secret, nil
	}, jw.WithValidMethods([]string{jw.SigningMethodHS256.Alg()}), jw.WithTimeFunc(p.now))
	if err != nil || !t.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
