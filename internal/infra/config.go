package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Session backends understood by LoadConfig.
const (
	SessionBackendFile     = "file"
	SessionBackendMemory   = "memory"
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

// Config represents client configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	APIBaseURL     string
	AppID          string
	Locale         string
	PollInterval   time.Duration
	HTTPTimeout    time.Duration
	RefreshTimeout time.Duration

	SessionBackend string
	SessionFile    string
	SessionName    string
	SessionTTL     time.Duration
	DatabaseURL    string
	RedisURL       string

	MockPort      string
	MockJWTSecret string
	MockAccessTTL time.Duration
	MockJobTicks  int
	// MockSubmitLimit caps generation submissions per user per minute.
	MockSubmitLimit    int
	MockUsers          map[string]string
	MockAllowedOrigins []string
	HTTPIdleTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:3002"), "/"),
		AppID:              getEnv("APP_ID", "WEB_ADMIN"),
		Locale:             getEnv("LOCALE", "en"),
		PollInterval:       time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)),
		HTTPTimeout:        time.Second * time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)),
		RefreshTimeout:     time.Second * time.Duration(getEnvInt("REFRESH_TIMEOUT_SECONDS", 15)),
		SessionBackend:     strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendFile)),
		SessionFile:        getEnv("SESSION_FILE", defaultSessionFile()),
		SessionName:        getEnv("SESSION_NAME", "default"),
		SessionTTL:         time.Hour * time.Duration(getEnvInt("SESSION_TTL_HOURS", 0)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		MockPort:           getEnv("MOCK_PORT", "3002"),
		MockJWTSecret:      getEnv("MOCK_JWT_SECRET", "mock-secret"),
		MockAccessTTL:      time.Second * time.Duration(getEnvInt("MOCK_ACCESS_TTL_SECONDS", 300)),
		MockJobTicks:       getEnvInt("MOCK_JOB_TICKS", 3),
		MockSubmitLimit:    getEnvInt("MOCK_SUBMIT_LIMIT", 0),
		MockUsers:          parseUsers(os.Getenv("MOCK_USERS")),
		MockAllowedOrigins: splitCSV(getEnv("MOCK_ALLOWED_ORIGINS", "*")),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}

	switch cfg.SessionBackend {
	case SessionBackendFile:
		if cfg.SessionFile == "" {
			return nil, fmt.Errorf("SESSION_FILE is required for the file session backend")
		}
	case SessionBackendMemory:
	case SessionBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres session backend")
		}
	case SessionBackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis session backend")
		}
	default:
		return nil, fmt.Errorf("unsupported SESSION_BACKEND %q", cfg.SessionBackend)
	}

	return cfg, nil
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".videogen", "session.json")
}

// parseUsers reads "user:password" pairs separated by commas.
func parseUsers(raw string) map[string]string {
	users := map[string]string{}
	for _, pair := range splitCSV(raw) {
		user, password, ok := strings.Cut(pair, ":")
		if ok && strings.TrimSpace(user) != "" {
			users[strings.TrimSpace(user)] = password
		}
	}
	return users
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
