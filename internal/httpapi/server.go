// Package httpapi - HTTP и websocket поверхность клиентского ядра.
package httpapi

import (
	"net/http"
	"time"

	"github.com/UkralStul/social-feed/internal/client"
	"github.com/UkralStul/social-feed/internal/objectstore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	svc      *client.Services
	upgrader websocket.Upgrader

	pingInterval time.Duration
}

func New(svc *client.Services) *Server {
	return &Server{
		svc:      svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: 10 * time.Second,
	}
}

// Routes собирает роутер со всеми эндпоинтами.
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.signUp)
		r.Post("/signin", s.signIn)
		r.With(s.authenticate).Post("/signout", s.signOut)
	})

	router.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/profile", s.getProfile)
		r.Patch("/profile", s.updateProfile)
		r.Put("/profile/avatar", s.setAvatar)

		r.Post("/posts", s.createPost)
		r.Patch("/posts/{id}", s.editPost)
		r.Delete("/posts/{id}", s.deletePost)

		r.Post("/users/{uid}/follow", s.follow)
		r.Delete("/users/{uid}/follow", s.unfollow)
	})

	// In-memory хранилище раздаётся этим же сервером, S3 - по своему адресу
	if objects, ok := s.svc.Objects().(objectstore.Reader); ok {
		router.Get("/media/*", serveMedia(objects))
	}

	// Токен сокета - в query-параметре token или в заголовке Authorization
	router.Get("/feed/ws", s.feedSocket)
	return router
}
