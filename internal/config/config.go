package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with "." in keys
// replaced by "_": history.backend is ENTMAN_HISTORY_BACKEND.
const EnvPrefix = "ENTMAN"

type Config struct {
	MountPoint string `mapstructure:"mount_point"`
	Port       int    `mapstructure:"port"`
	GRPCPort   int    `mapstructure:"grpc_port"` // 0 = disabled
	Env        string `mapstructure:"env"`       // "dev" | "prod"
	LogLevel   string `mapstructure:"log_level"`

	DBPath      string `mapstructure:"db_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPass   string `mapstructure:"redis_password"`
	RedisDB     int    `mapstructure:"redis_db"`
	RedisKey    string `mapstructure:"redis_key"`

	History   HistoryConfig   `mapstructure:"history"`
	Verifier  VerifierConfig  `mapstructure:"verifier"`
	Callback  CallbackConfig  `mapstructure:"callback"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type HistoryConfig struct {
	Backend string `mapstructure:"backend"` // memory | sqlite | postgres | redis
}

type VerifierConfig struct {
	Kind     string `mapstructure:"kind"` // static | hashed | oidc | expr
	AllowAll bool   `mapstructure:"allow_all"`
	// Tokens is a comma separated allow-list of "token" or "token=name".
	Tokens       string `mapstructure:"tokens"`
	TokensFile   string `mapstructure:"tokens_file"`
	TokenBackend string `mapstructure:"token_backend"` // memory | sqlite | postgres
	OIDCIssuer   string `mapstructure:"oidc_issuer"`
	OIDCClientID string `mapstructure:"oidc_client_id"`
	Expr         string `mapstructure:"expr"`
	CacheTTLS    int    `mapstructure:"cache_ttl_s"` // 0 = no cache
	CacheMax     int    `mapstructure:"cache_max_entries"`
}

type CallbackConfig struct {
	Kind      string `mapstructure:"kind"` // none | webhook | redis
	URL       string `mapstructure:"url"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
	Channel   string `mapstructure:"channel"`
	Message   string `mapstructure:"message"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"` // 0 = disabled
	Burst int     `mapstructure:"burst"`
}

var defaults = map[string]any{
	"mount_point":                "/",
	"port":                       8000,
	"grpc_port":                  0,
	"env":                        "dev",
	"log_level":                  "info",
	"db_path":                    "./data/entman.db",
	"postgres_dsn":               "",
	"redis_addr":                 "",
	"redis_password":             "",
	"redis_db":                   0,
	"redis_key":                  "entman:history",
	"history.backend":            "memory",
	"verifier.kind":              "static",
	"verifier.allow_all":         false,
	"verifier.tokens":            "",
	"verifier.tokens_file":       "",
	"verifier.token_backend":     "sqlite",
	"verifier.oidc_issuer":       "",
	"verifier.oidc_client_id":    "",
	"verifier.expr":              "",
	"verifier.cache_ttl_s":       0,
	"verifier.cache_max_entries": 10000,
	"callback.kind":              "none",
	"callback.url":               "",
	"callback.timeout_ms":        5000,
	"callback.channel":           "",
	"callback.message":           "open",
	"rate_limit.rps":             0,
	"rate_limit.burst":           0,
}

// New returns a viper instance carrying the defaults and bound to the
// ENTMAN_* environment.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile (if not empty) into v and decodes the result.
// The returned Config is normalised and validated.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.MountPoint = "/" + strings.Trim(strings.TrimSpace(c.MountPoint), "/")
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.History.Backend = strings.ToLower(strings.TrimSpace(c.History.Backend))
	c.Verifier.Kind = strings.ToLower(strings.TrimSpace(c.Verifier.Kind))
	c.Verifier.TokenBackend = strings.ToLower(strings.TrimSpace(c.Verifier.TokenBackend))
	c.Callback.Kind = strings.ToLower(strings.TrimSpace(c.Callback.Kind))
	if c.Callback.Kind == "" {
		c.Callback.Kind = "none"
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.ContainsAny(c.MountPoint, "{}?#") {
		bad("mount_point %q must be a plain path", c.MountPoint)
	}
	if c.Port < 1 || c.Port > 65535 {
		bad("port %d out of range", c.Port)
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		bad("grpc_port %d out of range", c.GRPCPort)
	} else if c.GRPCPort == c.Port {
		bad("grpc_port must differ from port")
	}
	if c.Env != "dev" && c.Env != "prod" {
		bad("env %q must be dev or prod", c.Env)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		bad("log_level %q must be debug, info, warn or error", c.LogLevel)
	}

	switch c.History.Backend {
	case "memory":
	case "sqlite":
		if c.DBPath == "" {
			bad("history.backend sqlite requires db_path")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			bad("history.backend postgres requires postgres_dsn")
		}
	case "redis":
		if c.RedisAddr == "" {
			bad("history.backend redis requires redis_addr")
		}
	default:
		bad("history.backend %q is not one of memory, sqlite, postgres, redis", c.History.Backend)
	}

	switch c.Verifier.Kind {
	case "static":
	case "hashed":
		switch c.Verifier.TokenBackend {
		case "memory":
		case "sqlite":
			if c.DBPath == "" {
				bad("verifier.token_backend sqlite requires db_path")
			}
		case "postgres":
			if c.PostgresDSN == "" {
				bad("verifier.token_backend postgres requires postgres_dsn")
			}
		default:
			bad("verifier.token_backend %q is not one of memory, sqlite, postgres", c.Verifier.TokenBackend)
		}
	case "oidc":
		if c.Verifier.OIDCIssuer == "" || c.Verifier.OIDCClientID == "" {
			bad("verifier.kind oidc requires oidc_issuer and oidc_client_id")
		}
	case "expr":
		if strings.TrimSpace(c.Verifier.Expr) == "" {
			bad("verifier.kind expr requires verifier.expr")
		}
	default:
		bad("verifier.kind %q is not one of static, hashed, oidc, expr", c.Verifier.Kind)
	}
	if c.Verifier.CacheTTLS < 0 {
		bad("verifier.cache_ttl_s must not be negative")
	}
	if c.Verifier.CacheMax < 1 {
		bad("verifier.cache_max_entries must be positive")
	}
	if _, err := c.StaticTokens(); err != nil {
		errs = append(errs, err)
	}

	switch c.Callback.Kind {
	case "none":
	case "webhook":
		u, err := url.Parse(c.Callback.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			bad("callback.url %q must be an absolute http(s) URL", c.Callback.URL)
		}
	case "redis":
		if c.Callback.Channel == "" {
			bad("callback.kind redis requires callback.channel")
		}
		if c.RedisAddr == "" {
			bad("callback.kind redis requires redis_addr")
		}
	default:
		bad("callback.kind %q is not one of none, webhook, redis", c.Callback.Kind)
	}
	if c.Callback.TimeoutMS <= 0 {
		bad("callback.timeout_ms must be positive")
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		bad("rate_limit values must not be negative")
	}

	return errors.Join(errs...)
}

// StaticTokens parses Verifier.Tokens into token → name.
func (c Config) StaticTokens() (map[string]string, error) {
	out := map[string]string{}
	for _, part := range strings.Split(c.Verifier.Tokens, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tok, name, _ := strings.Cut(part, "=")
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, fmt.Errorf("verifier.tokens: entry %q has no token", part)
		}
		if _, dup := out[tok]; dup {
			return nil, fmt.Errorf("verifier.tokens: duplicate token entry")
		}
		out[tok] = strings.TrimSpace(name)
	}
	return out, nil
}

func (c Config) HTTPAddr() string { return fmt.Sprintf(":%d", c.Port) }

func (c Config) GRPCAddr() string { return fmt.Sprintf(":%d", c.GRPCPort) }
