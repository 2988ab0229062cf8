package config

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	StorageInMemory = "in-memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port        string
	Storage     string
	DatabaseURL string
	RedisAddr   string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
	S3PublicURL string

	// MediaBaseURL - адрес, под которым этот сервер раздаёт in-memory объекты.
	MediaBaseURL string

	JWTSecret string

	OTELEndpoint    string
	OTELServiceName string

	// Seed заполняет in-memory хранилище тестовыми данными.
	Seed bool
}

// Load читает .env (если есть), переменные окружения и флаги командной строки.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3Bucket:        getEnv("S3_BUCKET", "media"),
		S3UseSSL:        getBool("S3_USE_SSL", false),
		S3PublicURL:     getEnv("S3_PUBLIC_URL", ""),
		MediaBaseURL:    getEnv("MEDIA_BASE_URL", ""),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELServiceName: getEnv("OTEL_SERVICE_NAME", "social-feed"),
	}

	fset := flag.NewFlagSet("server", flag.ContinueOnError)
	fset.StringVar(&cfg.Storage, "storage", StorageInMemory, "Storage type (in-memory or postgres)")
	fset.BoolVar(&cfg.Seed, "seed", true, "Fill in-memory storage with mock data")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = "http://localhost:" + cfg.Port + "/media"
	}

	switch cfg.Storage {
	case StorageInMemory:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL must be set for postgres storage")
		}
	default:
		return nil, errors.New("unknown storage type: " + cfg.Storage)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
