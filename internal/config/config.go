package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port int

	DBURL      string
	DBMaxConns int

	// Pepper for API token hashes. Must be set outside dev.
	TokenSecret string

	PasswordMinLen int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Auth-route throttling (requests per window per client).
	ThrottleLimit  int
	ThrottleWindow time.Duration

	CORSOrigins  []string
	MaxBodyBytes int64

	OTLPEndpoint string

	// Optional bootstrap user, dev convenience only.
	SeedUserName     string
	SeedUserEmail    string
	SeedUserPassword string
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)
	dbURL := buildDBURL()

	return Config{
		Env:        env,
		Port:       port,
		DBURL:      dbURL,
		DBMaxConns: getEnvInt("DB_MAX_CONNS", 5),

		TokenSecret: getEnv("TOKEN_SECRET", "dev-only-token-secret"),

		PasswordMinLen: getEnvInt("PASSWORD_MIN_LEN", 8),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ThrottleLimit:  getEnvInt("THROTTLE_LIMIT", 10),
		ThrottleWindow: time.Duration(getEnvInt("THROTTLE_WINDOW_SECONDS", 60)) * time.Second,

		CORSOrigins:  splitCSV(getEnv("CORS_ORIGINS", "")),
		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),

		SeedUserName:     getEnv("SEED_USER_NAME", ""),
		SeedUserEmail:    getEnv("SEED_USER_EMAIL", ""),
		SeedUserPassword: getEnv("SEED_USER_PASSWORD", ""),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "taskhub")
	pass := getEnv("DB_PASSWORD", "taskhub")
	name := getEnv("DB_NAME", "taskhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
