// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App          AppConfig          `koanf:"app"`
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Redis        RedisConfig        `koanf:"redis"`
	Auth         AuthConfig         `koanf:"auth"`
	Subscription SubscriptionConfig `koanf:"subscription"`
	PayPal       PayPalConfig       `koanf:"paypal"`
	Events       EventsConfig       `koanf:"events"`
	RateLimit    RateLimitConfig    `koanf:"rate_limit"`
	CORS         CORSConfig         `koanf:"cors"`
	Log          LogConfig          `koanf:"log"`
	Otel         OtelConfig         `koanf:"otel"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
	ClientName   string `koanf:"client_name"`
}

// AuthConfig describes how access tokens minted by the hosted auth
// provider are verified. Exactly one of JWTSecret and JWKSURL is set.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	JWKSURL   string `koanf:"jwks_url"`
	Issuer    string `koanf:"issuer"`
	Audience  string `koanf:"audience"`
}

type SubscriptionConfig struct {
	FreeAssignmentLimit int           `koanf:"free_assignment_limit"`
	TrialWindow         time.Duration `koanf:"trial_window"`
}

type PayPalConfig struct {
	BaseURL      string        `koanf:"base_url"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	WebhookID    string        `koanf:"webhook_id"`
	Timeout      time.Duration `koanf:"timeout"`
	Plans        PayPalPlans   `koanf:"plans"`
}

// PayPalPlans maps the provider's billing plan ids onto local plans.
type PayPalPlans struct {
	Basic string `koanf:"basic"`
	Pro   string `koanf:"pro"`
}

func (p PayPalConfig) Enabled() bool {
	return p.ClientID != ""
}

type EventsConfig struct {
	Channel    string `koanf:"channel"`
	BufferSize int    `koanf:"buffer_size"`
}

type RateLimitConfig struct {
	Requests int                   `koanf:"requests"`
	Window   time.Duration         `koanf:"window"`
	Burst    int                   `koanf:"burst"`
	Tiers    map[string]TierConfig `koanf:"tiers"`
}

type TierConfig struct {
	RequestsPerMinute int `koanf:"requests_per_minute"`
	BurstSize         int `koanf:"burst_size"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func defaults() map[string]any {
	return map[string]any{
		"app.name":        "Assignly API",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       true,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,
		"redis.client_name":    "assignly-api",

		"auth.audience": "authenticated",

		"subscription.free_assignment_limit": 4,
		"subscription.trial_window":          "168h",

		"paypal.base_url": "https://api-m.sandbox.paypal.com",
		"paypal.timeout":  "10s",

		"events.channel":     "assignly:subscription:changed",
		"events.buffer_size": 16,

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,
		"rate_limit.tiers": map[string]any{
			"free":  map[string]any{"requests_per_minute": 60, "burst_size": 10},
			"basic": map[string]any{"requests_per_minute": 300, "burst_size": 50},
			"pro":   map[string]any{"requests_per_minute": 600, "burst_size": 100},
		},

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "assignly-api",
	}
}

func loadDefaults(k *koanf.Koanf) error {
	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"DATABASE_AUTO_MIGRATE":       "database.auto_migrate",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"SUPABASE_JWT_SECRET":         "auth.jwt_secret",
	"SUPABASE_JWKS_URL":           "auth.jwks_url",
	"AUTH_ISSUER":                 "auth.issuer",
	"AUTH_AUDIENCE":               "auth.audience",
	"FREE_ASSIGNMENT_LIMIT":       "subscription.free_assignment_limit",
	"TRIAL_WINDOW":                "subscription.trial_window",
	"PAYPAL_BASE_URL":             "paypal.base_url",
	"PAYPAL_CLIENT_ID":            "paypal.client_id",
	"PAYPAL_CLIENT_SECRET":        "paypal.client_secret",
	"PAYPAL_WEBHOOK_ID":           "paypal.webhook_id",
	"PAYPAL_BASIC_PLAN_ID":        "paypal.plans.basic",
	"PAYPAL_PRO_PLAN_ID":          "paypal.plans.pro",
	"EVENTS_CHANNEL":              "events.channel",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

//nolint:gocyclo // flat list of independent checks
func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if (c.Auth.JWTSecret == "") == (c.Auth.JWKSURL == "") {
		return fmt.Errorf(
			"exactly one of SUPABASE_JWT_SECRET or SUPABASE_JWKS_URL is required",
		)
	}

	if c.Subscription.FreeAssignmentLimit < 0 {
		return fmt.Errorf("subscription.free_assignment_limit must not be negative")
	}

	if c.Subscription.TrialWindow <= 0 {
		return fmt.Errorf("subscription.trial_window must be positive")
	}

	if c.PayPal.Enabled() {
		if c.PayPal.ClientSecret == "" {
			return fmt.Errorf("PAYPAL_CLIENT_SECRET is required")
		}
		if c.PayPal.WebhookID == "" {
			return fmt.Errorf("PAYPAL_WEBHOOK_ID is required")
		}
		if c.PayPal.Plans.Basic == "" || c.PayPal.Plans.Pro == "" {
			return fmt.Errorf(
				"PAYPAL_BASIC_PLAN_ID and PAYPAL_PRO_PLAN_ID are required",
			)
		}
	}

	if c.Events.Channel == "" {
		return fmt.Errorf("events.channel is required")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
