package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the server reads from the environment.
type Config struct {
	ListenAddr string
	MongoURI   string
	MongoDB    string
	RedisAddr  string
	RedisDB    int
	JWTSecret  string

	// AlertRadiusMeters bounds who counts as "nearby" for notification
	// fan-out and alert visibility.
	AlertRadiusMeters float64
	// AllowMultipleActive lets one user hold several active alerts at once.
	// Off by default: a second trigger while one is active is a conflict.
	AllowMultipleActive bool

	SafeRouteURL    string
	UpstreamTimeout time.Duration

	AllowedOrigins []string
}

const (
	defaultListenAddr  = ":8080"
	defaultMongoDB     = "saveher"
	defaultAlertRadius = 3000.0
	defaultTimeout     = 5 * time.Second
)

// Load reads .env (if present) and the environment. Missing required
// variables are an error rather than a fallback.
func Load() (*Config, error) {
	// No .env file is fine in deployed environments.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:          getEnv("LISTEN_ADDR", defaultListenAddr),
		MongoURI:            os.Getenv("MONGODB_URI"),
		MongoDB:             getEnv("MONGODB_DB", defaultMongoDB),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		AlertRadiusMeters:   defaultAlertRadius,
		AllowMultipleActive: os.Getenv("ALLOW_MULTIPLE_ACTIVE") == "true",
		SafeRouteURL:        os.Getenv("SAFE_ROUTE_URL"),
		UpstreamTimeout:     defaultTimeout,
		AllowedOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
	}

	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGODB_URI environment variable is not set")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR environment variable is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set")
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB value: %w", err)
		}
		cfg.RedisDB = db
	}
	if v := os.Getenv("ALERT_RADIUS_METERS"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			return nil, fmt.Errorf("invalid ALERT_RADIUS_METERS value: %q", v)
		}
		cfg.AlertRadiusMeters = r
	}
	if v := os.Getenv("UPSTREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT value: %q", v)
		}
		cfg.UpstreamTimeout = d
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
