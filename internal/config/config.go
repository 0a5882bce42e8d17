package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"snapreport/pkg/logger"
	"snapreport/pkg/utils"
)

const (
	DefaultMaxImageBytes = 5242880
	DefaultTokenTTL      = 30 * 24 * time.Hour
	unsafeDevSecret      = "dev-secret-change-me"
)

var AppConfig *Config

func (c *Config) GetBaseUrl() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// MaxImageBytes returns the decoded screenshot ceiling in bytes.
func (c *Config) MaxImageBytes() int64 {
	return utils.SizeToBytes(c.Upload.MaxImageBytes, DefaultMaxImageBytes)
}

// Duration parses s, returning def when s is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Load reads the configuration into AppConfig and exits on invalid input.
func Load() {
	cfg, err := Read()
	if err != nil {
		logger.LogFatal("CONFIGURATION ERROR: %v", err)
	}
	AppConfig = cfg

	logger.SetDebug(cfg.Log.Debug)
	logger.LogInfo("⚙️  %s v%s Initialized | Env: %s | Port: %d",
		cfg.App.Name,
		cfg.App.Version,
		cfg.Server.Env,
		cfg.Server.Port,
	)
}

// Read builds a Config from defaults, config.yaml and SNAPREPORT_* env vars.
func Read() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SNAPREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names kept for deployments migrating from the previous stack.
	v.BindEnv("auth.token_secret", "SNAPREPORT_AUTH_TOKEN_SECRET", "NEXTAUTH_SECRET")
	v.BindEnv("upload.max_image_bytes", "SNAPREPORT_UPLOAD_MAX_IMAGE_BYTES", "MAX_IMAGE_BYTES")
	v.BindEnv("server.port", "SNAPREPORT_SERVER_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.LogInfo("Config file not found. Using Environment Variables and Defaults.")
		} else {
			logger.LogWarn("Config file found but unreadable: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	cfg.BaseURL = cfg.GetBaseUrl()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "snapreport")
	v.SetDefault("app.version", "0.3.0")
	v.SetDefault("app.start_message", true)

	// Server
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.env", "development")

	// Database
	v.SetDefault("database.path", "./data/snapreport.db")
	v.SetDefault("database.max_size", "2GB")
	v.SetDefault("database.prune_interval", "10m")

	// Auth
	v.SetDefault("auth.token_secret", unsafeDevSecret)
	v.SetDefault("auth.token_ttl", "720h")
	v.SetDefault("auth.session_cookie", "session_token")
	v.SetDefault("auth.session_ttl", "720h")
	v.SetDefault("auth.dev_login", true)

	// Upload
	v.SetDefault("upload.max_image_bytes", "5242880")

	// Cache
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_capacity", 64)
	v.SetDefault("cache.ttl", "30m")

	// Security
	v.SetDefault("security.cors_origins", []string{"chrome-extension://*", "moz-extension://*"})
	v.SetDefault("security.throttle.enabled", true)
	v.SetDefault("security.throttle.requests", 20)
	v.SetDefault("security.throttle.window", "1s")
	v.SetDefault("security.throttle.burst", 50)

	// Per-route budgets
	v.SetDefault("ratelimit.sweep_interval", "5m")
	v.SetDefault("ratelimit.routes.reports_create.max_requests", 10)
	v.SetDefault("ratelimit.routes.reports_create.window", "15m")
	v.SetDefault("ratelimit.routes.comments_create.max_requests", 5)
	v.SetDefault("ratelimit.routes.comments_create.window", "5m")
	v.SetDefault("ratelimit.routes.upvote.max_requests", 3)
	v.SetDefault("ratelimit.routes.upvote.window", "1m")

	v.SetDefault("log.debug", false)
}

func (c *Config) Validate() error {
	if c.Auth.TokenSecret == "" || c.Auth.TokenSecret == unsafeDevSecret {
		if c.IsProduction() {
			return fmt.Errorf("auth.token_secret cannot be default or empty in production environment")
		}
		logger.LogWarn("Security Alert: Using unsafe default token secret. Do not use this in production!")
	}

	if c.IsProduction() && c.Auth.DevLogin {
		return fmt.Errorf("auth.dev_login must be disabled in production")
	}

	durations := map[string]string{
		"auth.token_ttl":           c.Auth.TokenTTL,
		"auth.session_ttl":         c.Auth.SessionTTL,
		"cache.ttl":                c.Cache.TTL,
		"security.throttle.window": c.Security.Throttle.Window,
		"ratelimit.sweep_interval": c.RateLimit.SweepInterval,
		"database.prune_interval":  c.Database.PruneInterval,
	}
	for key, raw := range durations {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s format '%s': %v", key, raw, err)
		}
	}

	routes := map[string]RouteLimit{
		"reports_create":  c.RateLimit.Routes.ReportsCreate,
		"comments_create": c.RateLimit.Routes.CommentsCreate,
		"upvote":          c.RateLimit.Routes.Upvote,
	}
	for name, rl := range routes {
		if rl.MaxRequests <= 0 {
			return fmt.Errorf("ratelimit.routes.%s.max_requests must be positive", name)
		}
		if _, err := time.ParseDuration(rl.Window); err != nil {
			return fmt.Errorf("invalid ratelimit.routes.%s.window format '%s': %v", name, rl.Window, err)
		}
	}

	if _, err := utils.ParseSize(c.Upload.MaxImageBytes); err != nil {
		return fmt.Errorf("invalid upload.max_image_bytes: %v", err)
	}

	if c.Auth.SessionCookie == "" {
		return fmt.Errorf("auth.session_cookie cannot be empty")
	}
	return nil
}
