package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UkralStul/social-feed/internal/auth"
	"github.com/UkralStul/social-feed/internal/client"
	"github.com/UkralStul/social-feed/internal/config"
	"github.com/UkralStul/social-feed/internal/domain"
	"github.com/UkralStul/social-feed/internal/feed"
	"github.com/UkralStul/social-feed/internal/httpapi"
	"github.com/UkralStul/social-feed/internal/like"
	"github.com/UkralStul/social-feed/internal/objectstore"
	objmem "github.com/UkralStul/social-feed/internal/objectstore/inmemory"
	"github.com/UkralStul/social-feed/internal/objectstore/s3"
	"github.com/UkralStul/social-feed/internal/post"
	"github.com/UkralStul/social-feed/internal/storage"
	"github.com/UkralStul/social-feed/internal/storage/inmemory"
	"github.com/UkralStul/social-feed/internal/storage/notify"
	"github.com/UkralStul/social-feed/internal/storage/postgres"
	"github.com/UkralStul/social-feed/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.OTELServiceName)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(c)
	}()

	var store storage.Storage
	log.Printf("Starting server with %s storage", cfg.Storage)
	if cfg.Storage == config.StoragePostgres {
		store, err = postgres.New(cfg.DatabaseURL, newNotifier(ctx, cfg))
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
	} else {
		store = inmemory.New()
	}

	objects := newObjectStore(ctx, cfg)
	provider := auth.NewLocalProvider(cfg.JWTSecret)
	svc := client.NewServices(client.Deps{Auth: provider, Storage: store, Objects: objects})

	if cfg.Storage == config.StorageInMemory && cfg.Seed {
		// Заполним данными для тестов
		fillWithMockData(ctx, svc, store)
	}

	api := httpapi.New(svc)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(api.Routes(), "social-feed"),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()

	log.Printf("listening on http://localhost:%s (feed socket at /feed/ws)", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed to start: %v", err)
	}
}

// newNotifier - redis pub/sub, если задан REDIS_ADDR; иначе оповещения в пределах процесса.
func newNotifier(ctx context.Context, cfg *config.Config) notify.Notifier {
	if cfg.RedisAddr == "" {
		return notify.NewLocal()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}
	return notify.NewRedis(rdb)
}

func newObjectStore(ctx context.Context, cfg *config.Config) objectstore.Store {
	if cfg.S3Endpoint == "" {
		return objmem.New(cfg.MediaBaseURL)
	}
	st, err := s3.New(s3.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
		Bucket:    cfg.S3Bucket,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		log.Fatalf("s3: %v", err)
	}
	if err := st.EnsureBucket(ctx); err != nil {
		log.Fatalf("s3 ensure bucket: %v", err)
	}
	return st
}

func fillWithMockData(ctx context.Context, svc *client.Services, store storage.Storage) {
	// 1. Пользователи: у каждого сразу появляется профиль.
	users := make(map[string]domain.Identity)
	for _, email := range []string{"alice@example.com", "bob@example.com", "carol@example.com"} {
		tok, err := svc.SignUp(ctx, email, "password")
		if err != nil {
			log.Fatalf("fillWithMockData: failed to sign up %s: %v", email, err)
		}
		users[email] = tok.Identity
	}
	alice, bob, carol := users["alice@example.com"], users["bob@example.com"], users["carol@example.com"]

	// 2. Alice подписана на Bob, но не на Carol.
	if err := svc.Follow(ctx, alice, bob.UID); err != nil {
		log.Fatalf("fillWithMockData: failed to follow: %v", err)
	}

	// 3. По посту от каждого.
	var first *domain.Post
	for _, u := range []domain.Identity{alice, bob, carol} {
		p, err := svc.CreatePost(ctx, u, post.CreateInput{Text: "Hello from " + u.DefaultDisplayName() + "!"})
		if err != nil {
			log.Fatalf("fillWithMockData: failed to create post: %v", err)
		}
		if first == nil {
			first = p
		}
	}

	// 4. Лайки идут тем же транзакционным путём, что и у клиентов.
	for _, u := range []domain.Identity{bob, carol} {
		if err := like.NewEngine(store, feed.NewView(), u.UID).Toggle(ctx, first.ID); err != nil {
			log.Fatalf("fillWithMockData: failed to like: %v", err)
		}
	}

	log.Printf("Mock data filled successfully. Sign in as alice@example.com / password")
}
