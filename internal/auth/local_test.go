package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProvider_SignUpAndSignIn(t *testing.T) {
	p := NewLocalProvider("secret")
	ctx := context.Background()

	tok, err := p.SignUp(ctx, "Alice@Example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", tok.Identity.Email)
	assert.NotEmpty(t, tok.Identity.UID)

	id, err := p.Verify(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, tok.Identity, *id)

	again, err := p.SignIn(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, tok.Identity.UID, again.Identity.UID)
}

func TestLocalProvider_ErrorKinds(t *testing.T) {
	p := NewLocalProvider("secret")
	ctx := context.Background()
	_, err := p.SignUp(ctx, "bob@example.com", "password")
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"duplicate email", func() error { _, err := p.SignUp(ctx, "bob@example.com", "password"); return err }, ErrEmailAlreadyInUse},
		{"weak password", func() error { _, err := p.SignUp(ctx, "carl@example.com", "12345"); return err }, ErrWeakPassword},
		{"invalid email", func() error { _, err := p.SignUp(ctx, "not-an-email", "password"); return err }, ErrInvalidEmail},
		{"wrong password", func() error { _, err := p.SignIn(ctx, "bob@example.com", "nope!!"); return err }, ErrInvalidCredential},
		{"unknown user", func() error { _, err := p.SignIn(ctx, "dan@example.com", "password"); return err }, ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.want)
		})
	}
}

func TestLocalProvider_SignOutRevokesToken(t *testing.T) {
	p := NewLocalProvider("secret")
	ctx := context.Background()
	tok, err := p.SignUp(ctx, "eve@example.com", "password")
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx, tok.Value))
	_, err = p.Verify(ctx, tok.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLocalProvider_RejectsExpiredAndForeignTokens(t *testing.T) {
	now := time.Now()
	p := NewLocalProvider("secret", WithTokenTTL(time.Minute), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	tok, err := p.SignUp(ctx, "fay@example.com", "password")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = p.Verify(ctx, tok.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewLocalProvider("another-secret")
	foreign, err := other.SignUp(ctx, "gus@example.com", "password")
	require.NoError(t, err)
	_, err = p.Verify(ctx, foreign.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil))
	assert.Contains(t, Message(ErrWeakPassword), "6 characters")
	assert.Equal(t, "Something went wrong while signing in.", Message(assert.AnError))
}
