package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"srap/pkg/predict"
	"srap/pkg/progress"
	"srap/pkg/storage"
)

// Config is read once at startup from the environment (and ./.env when present).
type Config struct {
	Port             string
	DBDriver         string
	DBDSN            string
	AutoMigrate      bool
	JWTSecret        string
	UploadBase       string
	StorageDriver    string
	MinIO            storage.MinIOConfig
	AIServiceURL     string
	AIServiceTimeout time.Duration
	UploadMaxBytes   int64
	ErrorPolicy      progress.ErrorPolicy
	LogMode          string
	CORSOrigins      []string
}

func loadConfig() Config {
	// .env never overrides variables that are already set
	_ = godotenv.Load()

	c := Config{
		Port:             envOr("PORT", "8081"),
		DBDriver:         strings.ToLower(envOr("DB_DRIVER", "postgres")),
		DBDSN:            os.Getenv("DB_DSN"),
		AutoMigrate:      envBool("DB_AUTO_MIGRATE", true),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		UploadBase:       envOr("UPLOAD_BASE", "storage"),
		StorageDriver:    strings.ToLower(envOr("STORAGE_DRIVER", "local")),
		AIServiceURL:     envOr("AI_SERVICE_URL", "http://127.0.0.1:5000"),
		AIServiceTimeout: time.Duration(envInt("AI_SERVICE_TIMEOUT_SECONDS", 60)) * time.Second,
		UploadMaxBytes:   int64(envInt("UPLOAD_MAX_BYTES", int(progress.DefaultMaxBytes))),
		ErrorPolicy:      progress.PolicyBestEffort,
		LogMode:          envOr("LOG_MODE", "development"),
		MinIO:            storage.MinIOConfigFromEnv(),
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "dev-insecure-secret-change" // development fallback
	}
	if p, ok := progress.ParsePolicy(os.Getenv("UPLOAD_ERROR_POLICY")); ok {
		c.ErrorPolicy = p
	}
	if c.AIServiceTimeout <= 0 {
		c.AIServiceTimeout = predict.DefaultTimeout
	}
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			c.CORSOrigins = append(c.CORSOrigins, o)
		}
	}
	return c
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "false", "0", "no":
		return false
	default:
		return true
	}
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
