package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Server   ServerConfig
	WS       WSConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty Addr runs a single
// node with in-memory rooms and versions.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// Enabled reports whether rooms and versions are shared through Redis.
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret    string //nolint:gosec // G117: JWT signing secret config
	AccessTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// WSConfig holds websocket session settings.
type WSConfig struct {
	// SendQueue is the number of outbound frames buffered per session.
	// A session whose queue is full misses frames instead of stalling
	// the room.
	SendQueue      int
	CursorRate     float64
	CursorBurst    int
	OriginPatterns []string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("BOARDSYNC_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("BOARDSYNC_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("BOARDSYNC_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("BOARDSYNC_JWT_ACCESS_TTL", 12*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("BOARDSYNC_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("BOARDSYNC_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sendQueue, err := getEnvInt("BOARDSYNC_WS_SEND_QUEUE", 64)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cursorRate, err := getEnvFloat("BOARDSYNC_WS_CURSOR_RATE", 30)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cursorBurst, err := getEnvInt("BOARDSYNC_WS_CURSOR_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("BOARDSYNC_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("BOARDSYNC_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("BOARDSYNC_DB_USER", "boardsync"),
			Password: getEnv("BOARDSYNC_DB_PASSWORD", ""),
			DBName:   getEnv("BOARDSYNC_DB_NAME", "boardsync_dev"),
			SSLMode:  getEnv("BOARDSYNC_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("BOARDSYNC_REDIS_ADDR", ""),
			Password: getEnv("BOARDSYNC_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:    getEnv("BOARDSYNC_JWT_SECRET", ""),
			AccessTTL: accessTTL,
		},
		Server: ServerConfig{
			Addr:         getEnv("BOARDSYNC_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		WS: WSConfig{
			SendQueue:      sendQueue,
			CursorRate:     cursorRate,
			CursorBurst:    cursorBurst,
			OriginPatterns: getEnvList("BOARDSYNC_WS_ORIGIN_PATTERNS", nil),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("BOARDSYNC_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("BOARDSYNC_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.SSLMode == "disable" && c.Database.Host != "localhost" {
		log.Warn().Msg("BOARDSYNC_DB_SSLMODE=disable is insecure for remote databases; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("BOARDSYNC_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("BOARDSYNC_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("BOARDSYNC_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("BOARDSYNC_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("BOARDSYNC_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.WS.SendQueue < 1 {
		return fmt.Errorf("BOARDSYNC_WS_SEND_QUEUE must be >= 1, got %d", c.WS.SendQueue)
	}
	if c.WS.CursorRate <= 0 {
		return fmt.Errorf("BOARDSYNC_WS_CURSOR_RATE must be positive, got %g", c.WS.CursorRate)
	}
	if c.WS.CursorBurst < 1 {
		return fmt.Errorf("BOARDSYNC_WS_CURSOR_BURST must be >= 1, got %d", c.WS.CursorBurst)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
