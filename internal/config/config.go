package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds application configuration values.
type Config struct {
	HTTPPort    string
	DatabaseDSN string
	ExportPath  string
	LogLevel    string
	LogFormat   string

	// TrustProxy honours X-Forwarded-For style headers for the client IP.
	TrustProxy  bool
	CORSOrigins []string

	Secret       string
	SessionTTL   time.Duration
	CookieSecure bool

	AdminUsername string
	AdminPassword string

	OverpassURL      string
	OverpassTimeout  time.Duration
	TranslateURL     string
	TranslateTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RateLimit     int
	RateWindow    time.Duration
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	cfg := Config{
		HTTPPort:    getEnv("HTTP_PORT", "5000"),
		DatabaseDSN: getEnv("DATABASE_DSN", "reviews.db"),
		ExportPath:  getEnv("EXPORT_PATH", "DATABASE_LOG.txt"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "text")),
		TrustProxy:  getBool("TRUST_PROXY", false),
		CORSOrigins: getList("CORS_ALLOWED_ORIGINS"),

		Secret:       getEnv("SECRET", "dev_secret"),
		SessionTTL:   getDuration("SESSION_TTL", 24*time.Hour),
		CookieSecure: getBool("COOKIE_SECURE", false),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "1234"),

		OverpassURL:      getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassTimeout:  getDuration("OVERPASS_TIMEOUT", 15*time.Second),
		TranslateURL:     getEnv("TRANSLATE_URL", "https://translate.googleapis.com/translate_a/single"),
		TranslateTimeout: getDuration("TRANSLATE_TIMEOUT", 10*time.Second),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RateLimit:     getInt("RATE_LIMIT", 60),
		RateWindow:    getDuration("RATE_WINDOW", time.Minute),
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		logrus.Warnf("invalid HTTP_PORT value %q, defaulting to 5000", cfg.HTTPPort)
		cfg.HTTPPort = "5000"
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		logrus.Warnf("invalid LOG_FORMAT value %q, defaulting to text", cfg.LogFormat)
		cfg.LogFormat = "text"
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logrus.Warnf("invalid %s value %q, defaulting to %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		logrus.Warnf("invalid %s value %q, defaulting to %d", key, raw, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		logrus.Warnf("invalid %s value %q, defaulting to %t", key, raw, fallback)
		return fallback
	}
	return b
}

// getList splits a comma separated value, dropping empty items.
func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
