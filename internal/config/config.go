package config

import "time"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	AuditLog AuditLogConfig `yaml:"audit_log"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type AuthConfig struct {
	// SiteToken is the shared secret expected in the site_auth header.
	SiteToken string `yaml:"site_token"`
}

type UpstreamConfig struct {
	// DefaultEndpoint receives forwarded requests when no site_api header
	// is present.
	DefaultEndpoint string        `yaml:"default_endpoint"`
	Timeout         time.Duration `yaml:"timeout"`
	// PromptPrefix is injected at the start of each user message before
	// forwarding. Empty disables injection.
	PromptPrefix string `yaml:"prompt_prefix"`
}

type CacheConfig struct {
	// TTLDays is the default entry lifetime; 0 means never expire. The
	// effective value can be changed at runtime via the admin endpoint.
	TTLDays int `yaml:"ttl_days"`
	// IncludeModel adds the model identifier to the fingerprint so the
	// same conversation is cached per model.
	IncludeModel bool `yaml:"include_model"`
}

type AuditLogConfig struct {
	Dir          string `yaml:"dir"`
	MaxSizeMB    int64  `yaml:"max_size_mb"`
	MaxBodyBytes int    `yaml:"max_body_bytes"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     180 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 50,
		},
		Upstream: UpstreamConfig{
			DefaultEndpoint: "http://127.0.0.1:8317/v1/chat/completions",
			Timeout:         120 * time.Second,
			PromptPrefix:    "/no-think",
		},
		Cache: CacheConfig{
			TTLDays:      3,
			IncludeModel: false,
		},
		AuditLog: AuditLogConfig{
			Dir:          "logs",
			MaxSizeMB:    300,
			MaxBodyBytes: 1 << 20,
		},
	}
}
