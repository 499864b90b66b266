// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/omok/internal/auth"
	"github.com/sirupsen/logrus"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the runtime configuration, read from the environment (a .env file
// is loaded by godotenv/autoload in main).
type Config struct {
	Env  string
	Port string

	// StoreBackend is "postgres" or "memory".
	StoreBackend string
	DatabaseURL  string
	// StoreTxTimeout bounds each coordinator operation's store work; 0 = none
	// beyond the lock lease. With redis locks it must be below RoomLockTTL.
	StoreTxTimeout time.Duration

	// LockBackend is "memory" (single process) or "redis" (shared store).
	LockBackend string
	RedisAddr   string
	RedisDB     int
	RoomLockTTL time.Duration

	MaxRoomCapacity int
	AllowedOrigins  []string
	LogLevel        logrus.Level

	TokenExpiry time.Duration
	// Ed25519 key files for session tokens; a fresh pair is generated when unset.
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
}

func Default() Config {
	return Config{
		Env:             "dev",
		Port:            "8080",
		StoreBackend:    BackendPostgres,
		LockBackend:     BackendMemory,
		RedisAddr:       "localhost:6379",
		RoomLockTTL:     10 * time.Second,
		MaxRoomCapacity: 8,
		AllowedOrigins:  []string{"*"},
		LogLevel:        logrus.InfoLevel,
	}
}

// Load builds a Config from defaults overridden by environment variables.
func Load() (Config, error) {
	cfg := Default()

	cfg.Env = getEnv("OMOK_ENV", cfg.Env)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", cfg.StoreBackend))
	cfg.LockBackend = strings.ToLower(getEnv("LOCK_BACKEND", cfg.LockBackend))
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.MaxRoomCapacity = getEnvInt("MAX_ROOM_CAPACITY", cfg.MaxRoomCapacity)
	cfg.DatabaseURL = databaseURL()
	cfg.JWTPrivateKeyPath = os.Getenv("JWT_PRIVATE_KEY_PATH")
	cfg.JWTPublicKeyPath = os.Getenv("JWT_PUBLIC_KEY_PATH")

	var err error
	if cfg.StoreTxTimeout, err = getEnvDuration("STORE_TX_TIMEOUT", cfg.StoreTxTimeout); err != nil {
		return cfg, err
	}
	if cfg.RoomLockTTL, err = getEnvDuration("ROOM_LOCK_TTL", cfg.RoomLockTTL); err != nil {
		return cfg, err
	}
	if cfg.TokenExpiry, err = auth.ParseTokenExpiry(os.Getenv("TOKEN_EXPIRE_TIME")); err != nil {
		return cfg, err
	}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		cfg.AllowedOrigins = splitList(raw)
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		lvl, err := logrus.ParseLevel(raw)
		if err != nil {
			return cfg, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = lvl
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL or POSTGRES_* settings")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.LockBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}
	if c.StoreTxTimeout < 0 {
		return fmt.Errorf("STORE_TX_TIMEOUT must not be negative")
	}
	if c.LockBackend == BackendRedis {
		if c.RoomLockTTL <= 0 {
			return fmt.Errorf("ROOM_LOCK_TTL must be positive with the redis lock backend")
		}
		if c.StoreTxTimeout >= c.RoomLockTTL {
			return fmt.Errorf("STORE_TX_TIMEOUT (%s) must be shorter than ROOM_LOCK_TTL (%s); redis locks are not renewed", c.StoreTxTimeout, c.RoomLockTTL)
		}
	}
	if c.MaxRoomCapacity < 0 {
		return fmt.Errorf("MAX_ROOM_CAPACITY must not be negative")
	}
	return nil
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from the
// POSTGRES_USER/POSTGRES_PASSWORD/PG_HOST/PG_PORT/PG_DATABASE variables.
func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	host := os.Getenv("PG_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		host,
		getEnv("PG_PORT", "5432"),
		os.Getenv("PG_DATABASE"),
	)
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
