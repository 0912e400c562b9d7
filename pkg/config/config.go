package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix scopes every environment variable read by Load.
const EnvPrefix = "STOREFRONT"

// Environment variable names, for binaries and tests.
const (
	EnvAppEnv            = "STOREFRONT_APP_ENV"
	EnvLogLevel          = "STOREFRONT_LOG_LEVEL"
	EnvAPIBaseURL        = "STOREFRONT_API_BASE_URL"
	EnvAPITimeout        = "STOREFRONT_API_TIMEOUT"
	EnvCacheTTL          = "STOREFRONT_CACHE_TTL"
	EnvAnalyticsCacheTTL = "STOREFRONT_ANALYTICS_CACHE_TTL"
	EnvRedisURL          = "STOREFRONT_REDIS_URL"
	EnvJWTIssuer         = "STOREFRONT_JWT_ISSUER"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

type Config struct {
	App   AppConfig
	API   APIConfig
	Cache CacheConfig
	Redis RedisConfig
	JWT   JWTConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.API.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// APIConfig locates the remote commerce backend.
type APIConfig struct {
	BaseURL    string        `envconfig:"STOREFRONT_API_BASE_URL" required:"true"`
	Timeout    time.Duration `envconfig:"STOREFRONT_API_TIMEOUT" default:"10s"`
	MaxRetries int           `envconfig:"STOREFRONT_API_MAX_RETRIES" default:"2"`
	RetryBase  time.Duration `envconfig:"STOREFRONT_API_RETRY_BASE" default:"200ms"`
}

func (a APIConfig) validate() error {
	if !strings.HasPrefix(a.BaseURL, "http://") && !strings.HasPrefix(a.BaseURL, "https://") {
		return fmt.Errorf("%s must be an absolute http(s) URL", EnvAPIBaseURL)
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvAPITimeout)
	}
	return nil
}

// CacheConfig sets the read-through TTLs for the service layer.
type CacheConfig struct {
	TTL          time.Duration `envconfig:"STOREFRONT_CACHE_TTL" default:"5m"`
	AnalyticsTTL time.Duration `envconfig:"STOREFRONT_ANALYTICS_CACHE_TTL" default:"10m"`
}

// RedisConfig is optional; when URL is empty the in-memory cache is used.
type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig controls local bearer-token inspection. The backend owns the
// signing secret; the client only checks expiry and, when set, the issuer.
type JWTConfig struct {
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER"`
	Leeway time.Duration `envconfig:"STOREFRONT_JWT_LEEWAY" default:"30s"`
}
