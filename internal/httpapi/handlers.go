package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/UkralStul/social-feed/internal/auth"
	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/media"
	"github.com/UkralStul/social-feed/internal/objectstore"
	"github.com/UkralStul/social-feed/internal/post"
	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/go-chi/chi/v5"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	UID       string `json:"uid"`
	Email     string `json:"email"`
	ExpiresAt int64  `json:"expiresAt"`
}

func newTokenResponse(tok *auth.Token) tokenResponse {
	return tokenResponse{
		Token:     tok.Value,
		UID:       tok.Identity.UID,
		Email:     tok.Identity.Email,
		ExpiresAt: tok.ExpiresAt.Unix(),
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// === Auth ===

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	tok, err := s.svc.SignUp(r.Context(), in.Email, in.Password)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, newTokenResponse(tok), http.StatusCreated)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	tok, err := s.svc.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, newTokenResponse(tok), http.StatusOK)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(tokenKey).(string)
	if err := s.svc.SignOut(r.Context(), token); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Profile ===

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Profile(r.Context(), identityFrom(r.Context()))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

type profilePatch struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
	PhotoURL    *string `json:"photoURL"`
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in profilePatch
	if !decode(w, r, &in) {
		return
	}
	p, err := s.svc.UpdateProfile(r.Context(), identityFrom(r.Context()), storage.ProfileUpdate{
		DisplayName: in.DisplayName,
		Bio:         in.Bio,
		PhotoURL:    in.PhotoURL,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

func (s *Server) setAvatar(w http.ResponseWriter, r *http.Request) {
	data, err := readImage(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image", err.Error())
		return
	}
	img := media.Image{ContentType: contentType(r.Header.Get("Content-Type"), data), Data: data}
	p, err := s.svc.SetAvatar(r.Context(), identityFrom(r.Context()), img)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

// === Posts ===

type createPostResponse struct {
	Post    *domain.Post `json:"post"`
	Warning string       `json:"warning,omitempty"`
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(media.MaxImageSize + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	in := post.CreateInput{Text: r.FormValue("text")}

	file, hdr, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		data, err := readImage(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read image", err.Error())
			return
		}
		in.Image = &media.Image{ContentType: contentType(hdr.Header.Get("Content-Type"), data), Data: data}
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, http.StatusBadRequest, "invalid image part", err.Error())
		return
	}

	p, err := s.svc.CreatePost(r.Context(), identityFrom(r.Context()), in)
	if errors.Is(err, post.ErrImageUpload) {
		writeJSON(w, createPostResponse{Post: p, Warning: "The post was published without its image."}, http.StatusCreated)
		return
	}
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, createPostResponse{Post: p}, http.StatusCreated)
}

type postPatch struct {
	Text string `json:"text"`
}

func (s *Server) editPost(w http.ResponseWriter, r *http.Request) {
	var in postPatch
	if !decode(w, r, &in) {
		return
	}
	p, err := s.svc.EditPost(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"), in.Text)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	err := s.svc.DeletePost(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"), confirmed)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Follows ===

func (s *Server) follow(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Follow(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "uid")); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unfollow(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Unfollow(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "uid")); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Media ===

// serveMedia раздаёт объекты хранилища, у которого нет своего HTTP-адреса.
func serveMedia(objects objectstore.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, ok := objects.Get(chi.URLParam(r, "*"))
		if !ok {
			writeError(w, http.StatusNotFound, notFoundMessage, "")
			return
		}
		w.Header().Set("Content-Type", obj.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj.Data)
	}
}

// readImage читает не больше MaxImageSize+1 байт: превышение ловит media.Validate.
func readImage(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, media.MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

func contentType(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}
