// Package config loads iceOS runtime configuration from the environment,
// once at startup, and hands it out immutably (spec §6.5).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RuntimeMode is the ICE_RUNTIME_MODE value.
type RuntimeMode string

const (
	ModeProduction  RuntimeMode = "production"
	ModeDevelopment RuntimeMode = "development"
	ModeDemo        RuntimeMode = "demo"
)

// Config holds all service configuration.
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Budget   BudgetConfig
	LLM      LLMConfig
	Packs    []string
}

// ServiceConfig holds service-wide settings.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
	RuntimeMode RuntimeMode
	WSBearer    string
}

// DatabaseConfig holds Postgres connection settings for the persistence port.
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds the Redis URL used for event fan-out and draft storage.
type RedisConfig struct {
	URL string
}

// BudgetConfig holds the engine's budget/depth guard defaults.
type BudgetConfig struct {
	OrgBudgetUSD  float64
	MaxTokens     int64
	MaxDepth      int
	FailOpen      bool
	PricingJSON   string
	PricingFile   string
}

// LLMConfig holds default LLM routing and the default HTTP provider's
// connection settings.
type LLMConfig struct {
	DefaultProvider string
	DefaultModel    string
	APIKey          string
	BaseURL         string
	TimeoutSeconds  int
}

// Load loads configuration from environment variables.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			RuntimeMode: RuntimeMode(getEnv("ICE_RUNTIME_MODE", "development")),
			WSBearer:    getEnv("ICE_WS_BEARER", ""),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "iceos"),
			User:        getEnv("POSTGRES_USER", "iceos"),
			Password:    getEnv("POSTGRES_PASSWORD", "iceos"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Budget: BudgetConfig{
			OrgBudgetUSD: getEnvFloat("ORG_BUDGET_USD", 0),
			MaxTokens:    getEnvInt64("ICE_MAX_TOKENS", 0),
			MaxDepth:     getEnvInt("ICE_MAX_DEPTH", 0),
			FailOpen:     getEnvBool("BUDGET_FAIL_OPEN", false),
			PricingJSON:  getEnv("ICE_PRICING_JSON", ""),
			PricingFile:  getEnv("ICE_PRICING_FILE", ""),
		},
		LLM: LLMConfig{
			DefaultProvider: getEnv("ICE_DEFAULT_LLM_PROVIDER", "openai"),
			DefaultModel:    getEnv("ICE_DEFAULT_LLM_MODEL", "gpt-4o-mini"),
			APIKey:          getEnv("ICE_LLM_API_KEY", ""),
			BaseURL:         getEnv("ICE_LLM_BASE_URL", "https://api.openai.com/v1"),
			TimeoutSeconds:  getEnvInt("ICE_LLM_TIMEOUT_SECONDS", 60),
		},
		Packs: getEnvSlice("ICEOS_OPTIONAL_PACKS", nil),
	}

	return cfg, cfg.Validate()
}

// Validate checks that configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}
	switch c.Service.RuntimeMode {
	case ModeProduction, ModeDevelopment, ModeDemo:
	default:
		return fmt.Errorf("invalid ICE_RUNTIME_MODE: %s", c.Service.RuntimeMode)
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// BudgetFailsClosed reports whether an exceeded budget should abort the run.
// Production always fails closed regardless of BUDGET_FAIL_OPEN.
func (c *Config) BudgetFailsClosed() bool {
	if c.Service.RuntimeMode == ModeProduction {
		return true
	}
	return !c.Budget.FailOpen
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
