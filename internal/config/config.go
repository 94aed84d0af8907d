package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

var ErrMissingSessionSecret = errors.New("SESSION_SECRET is required")

type Config struct {
	Port        string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionSecret []byte
	SessionTTL    time.Duration
	ResetTokenTTL time.Duration
	CORSOrigin    string
	FrontendURL   string

	PageSizeMax     int
	VoteMaxRetries  int
	VoteVerifyScore bool
	VotesPerSecond  float64

	TraceExporter string
	OTLPEndpoint  string
	OTLPInsecure  bool

	Debug bool
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:          getenv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		SessionSecret: []byte(os.Getenv("SESSION_SECRET")),
		CORSOrigin:    getenv("CORS_ORIGIN", "http://localhost:3000"),
		FrontendURL:   getenv("FRONTEND_URL", "http://localhost:3000"),
		TraceExporter: getenv("OTEL_TRACES_EXPORTER", "none"),
		OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Debug:         os.Getenv("DEBUG") == "true",
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = dsnFromParts()
	}

	var err error
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.ResetTokenTTL, err = durationEnv("RESET_TOKEN_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.PageSizeMax, err = intEnv("PAGE_SIZE_MAX", 10); err != nil {
		return cfg, err
	}
	if cfg.VoteMaxRetries, err = intEnv("VOTE_MAX_RETRIES", 3); err != nil {
		return cfg, err
	}
	if cfg.VoteVerifyScore, err = boolEnv("VOTE_VERIFY_SCORE", false); err != nil {
		return cfg, err
	}
	if cfg.VotesPerSecond, err = floatEnv("VOTES_PER_SECOND", 5); err != nil {
		return cfg, err
	}
	if cfg.OTLPInsecure, err = boolEnv("OTEL_EXPORTER_OTLP_INSECURE", false); err != nil {
		return cfg, err
	}
	if len(cfg.SessionSecret) == 0 {
		return cfg, ErrMissingSessionSecret
	}
	return cfg, nil
}

// dsnFromParts builds a postgres URL from the DB_* variables.
func dsnFromParts() string {
	sslmode := getenv("DB_SSLMODE", "disable")
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD")),
		Host:     getenv("DB_HOST", "localhost") + ":" + getenv("DB_PORT", "5432"),
		Path:     os.Getenv("DB_NAME"),
		RawQuery: "sslmode=" + url.QueryEscape(sslmode),
	}
	return u.String()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
