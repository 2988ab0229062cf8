package auth

import (
	"context"
	"errors"
	"time"

	"github.com/UkralStul/social-feed/internal/domain"
)

// Виды ошибок провайдера аутентификации.
var (
	ErrInvalidCredential = errors.New("auth/invalid-credential")
	ErrEmailAlreadyInUse = errors.New("auth/email-already-in-use")
	ErrWeakPassword      = errors.New("auth/weak-password")
	ErrInvalidEmail      = errors.New("auth/invalid-email")
	ErrInvalidToken      = errors.New("auth/invalid-token")
)

// MinPasswordLength - пароли короче считаются слабыми.
const MinPasswordLength = 6

// Token - выданный ID-токен вместе с личностью, которую он удостоверяет.
type Token struct {
	Identity  domain.Identity `json:"identity"`
	Value     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Provider - внешний провайдер аутентификации.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (*Token, error)
	SignIn(ctx context.Context, email, password string) (*Token, error)
	SignOut(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// Message переводит ошибку провайдера в текст для пользователя.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredential):
		return "Email or password is incorrect."
	case errors.Is(err, ErrEmailAlreadyInUse):
		return "This email is already in use."
	case errors.Is(err, ErrWeakPassword):
		return "Password is too weak (at least 6 characters)."
	case errors.Is(err, ErrInvalidEmail):
		return "Email address is not valid."
	case errors.Is(err, ErrInvalidToken):
		return "Your session has expired, please sign in again."
	default:
		return "Something went wrong while signing in."
	}
}
