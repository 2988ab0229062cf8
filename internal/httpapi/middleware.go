package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/UkralStul/social-feed/internal/auth"
	"github.com/UkralStul/social-feed/internal/domain"
)

type ctxKey string

const (
	identityKey ctxKey = "identity"
	tokenKey    ctxKey = "token"
)

// authenticate проверяет Bearer-токен и кладёт личность в контекст.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, auth.Message(auth.ErrInvalidToken), "missing_bearer")
			return
		}
		id, err := s.svc.Verify(r.Context(), token)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, *id)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(identityKey).(domain.Identity)
	return id
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
