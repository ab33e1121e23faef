package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL    = "http://localhost:5123"
	DefaultTimeout   = 30 * time.Second
	DefaultPort      = "5123"
	DefaultUserAgent = "AnimeTracker/1.0"
)

type Config struct {
	APIURL    string
	Timeout   time.Duration
	RateLimit time.Duration
	UserAgent string

	LogLevel  string
	LogFormat string

	// Port and the database settings are only used by the reference server.
	Port        string
	DatabaseURL string
	Database    DatabaseParts
}

type DatabaseParts struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// LoadEnv loads .env.local and then .env into the process environment.
// Variables already set are never overridden and missing files are ignored.
// It reports which files were loaded.
func LoadEnv() []string {
	var loaded []string
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			loaded = append(loaded, name)
		}
	}
	return loaded
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	timeout, err := GetEnvDuration("ANIME_API_TIMEOUT", DefaultTimeout)
	if err != nil {
		return nil, err
	}
	rateLimit, err := GetEnvDuration("ANIME_API_RATE_LIMIT", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:      GetEnv("ANIME_API_URL", DefaultAPIURL),
		Timeout:     timeout,
		RateLimit:   rateLimit,
		UserAgent:   GetEnv("ANIME_USER_AGENT", DefaultUserAgent),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		LogFormat:   GetEnv("LOG_FORMAT", "json"),
		Port:        GetEnv("PORT", DefaultPort),
		DatabaseURL: GetEnv("DATABASE_URL", ""),
		Database:    DatabaseConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid ANIME_API_URL %q: %w", c.APIURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid ANIME_API_URL %q: scheme and host are required", c.APIURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("ANIME_API_TIMEOUT must be positive, got %s", c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("ANIME_API_RATE_LIMIT must not be negative, got %s", c.RateLimit)
	}
	return nil
}

// PostgresDSN returns DATABASE_URL, or a DSN built from the DB_* parts when
// all of them are set. ok is false when neither is configured.
func (c *Config) PostgresDSN() (dsn string, ok bool) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, true
	}
	d := c.Database
	if d.Host == "" || d.Port == "" || d.User == "" || d.Password == "" || d.Name == "" {
		return "", false
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name), true
}

// DatabaseConfig returns the DB_* connection parts.
func DatabaseConfig() DatabaseParts {
	return DatabaseParts{
		Host:     GetEnv("DB_HOST", ""),
		Port:     GetEnv("DB_PORT", "5432"),
		User:     GetEnv("DB_USER", ""),
		Password: GetEnv("DB_PASSWORD", ""),
		Name:     GetEnv("DB_NAME", ""),
	}
}

// GetEnv retrieves values from environment files based on the key it matches,
// returns a string (value) if not empty
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDuration accepts Go durations ("1.5s") or a plain number of seconds.
func GetEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", key, raw)
	}
	return d, nil
}

func GetEnvInt(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q", key, raw)
	}
	return n, nil
}
