package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/UkralStul/social-feed/internal/auth"
	"github.com/UkralStul/social-feed/internal/client"
	"github.com/UkralStul/social-feed/internal/feed"
	"github.com/UkralStul/social-feed/internal/media"
	"github.com/UkralStul/social-feed/internal/post"
	"github.com/UkralStul/social-feed/internal/profile"
	"github.com/UkralStul/social-feed/internal/storage"
)

// APIError - тело ответа с ошибкой.
type APIError struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, reason string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, APIError{Error: msg, Reason: reason, Status: status}, status)
}

const (
	internalMessage = "Something went wrong, please try again."
	notFoundMessage = "The requested item no longer exists."
)

// publicErrors - ошибки, чей текст сам по себе годится пользователю.
var publicErrors = []error{
	post.ErrEmptyText,
	post.ErrNotConfirmed,
	post.ErrNotAuthor,
	media.ErrImageType,
	media.ErrImageTooLarge,
	media.ErrImageEmpty,
	profile.ErrEmptyDisplayName,
	profile.ErrNotOwner,
	feed.ErrUnknownScope,
	client.ErrSignedOut,
	client.ErrFollowSelf,
}

// publicMessage отображает ошибку в фиксированный текст: обёртки
// с id и внутренними подробностями наружу не уходят.
func publicMessage(err error) string {
	if isAuthError(err) {
		return auth.Message(err)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return notFoundMessage
	}
	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return internalMessage
}

// writeFailure отображает доменную ошибку в статус; внутренние ошибки
// логируются и наружу уходят одним общим сообщением.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch {
	case isAuthError(err):
		writeError(w, status, auth.Message(err), err.Error())
	case status == http.StatusInternalServerError:
		log.Printf("httpapi: %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, status, internalMessage, "")
	default:
		writeError(w, status, publicMessage(err), "")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, post.ErrEmptyText),
		errors.Is(err, post.ErrNotConfirmed),
		errors.Is(err, media.ErrImageType),
		errors.Is(err, media.ErrImageTooLarge),
		errors.Is(err, media.ErrImageEmpty),
		errors.Is(err, profile.ErrEmptyDisplayName),
		errors.Is(err, feed.ErrUnknownScope),
		errors.Is(err, client.ErrFollowSelf),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, client.ErrSignedOut):
		return http.StatusUnauthorized
	case errors.Is(err, post.ErrNotAuthor),
		errors.Is(err, profile.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrEmailAlreadyInUse):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, auth.ErrInvalidCredential) ||
		errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrEmailAlreadyInUse) ||
		errors.Is(err, auth.ErrWeakPassword) ||
		errors.Is(err, auth.ErrInvalidEmail)
}
