package config

type Config struct {
	// App: Global application metadata
	App InConfigAppConfig `mapstructure:"app"`

	// Server: Network configuration and execution environment
	Server ServerConfig `mapstructure:"server"`

	// Database: SQLite engine parameters and retention policies
	Database DatabaseConfig `mapstructure:"database"`

	// Auth: Bearer token signing and session cookie lookup
	Auth AuthConfig `mapstructure:"auth"`

	// Upload: Constraints applied to submitted screenshots
	Upload UploadConfig `mapstructure:"upload"`

	// Cache: In-memory cache for rendered screenshot thumbnails
	Cache CacheConfig `mapstructure:"cache"`

	// Security: CORS whitelist and the coarse global throttle
	Security SecurityConfig `mapstructure:"security"`

	// RateLimit: Per-route fixed-window budgets
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`

	// Log: Console verbosity
	Log LogConfig `mapstructure:"log"`

	// BaseURL: The public-facing root URL used for absolute links
	BaseURL string `mapstructure:"base_url"`
}

type InConfigAppConfig struct {
	// Name: Service identity used in the banner and health output
	Name string `mapstructure:"name"`

	// Version: Semantic version (e.g., "0.3.0")
	Version string `mapstructure:"version"`

	StartMessage bool `mapstructure:"start_message"`
}

type ServerConfig struct {
	// Port: TCP port for the HTTP server (default: 3000)
	Port int `mapstructure:"port"`

	// Env: development, staging, production
	Env string `mapstructure:"env"`
}

type DatabaseConfig struct {
	// Path: Location of the SQLite file (e.g., ./data/snapreport.db)
	Path string `mapstructure:"path"`

	// MaxSize: Soft limit before the cleaner drops old screenshots (e.g., "2GB")
	MaxSize string `mapstructure:"max_size"`

	// PruneInterval: Frequency of the storage cleaner (e.g., "10m")
	PruneInterval string `mapstructure:"prune_interval"`
}

type AuthConfig struct {
	// TokenSecret: HMAC secret for extension bearer tokens
	TokenSecret string `mapstructure:"token_secret"`

	// TokenTTL: Lifetime of issued bearer tokens (default "720h", 30 days)
	TokenTTL string `mapstructure:"token_ttl"`

	// SessionCookie: Name of the cookie carrying the session token
	SessionCookie string `mapstructure:"session_cookie"`

	// SessionTTL: Lifetime of sessions created by the dev login
	SessionTTL string `mapstructure:"session_ttl"`

	// DevLogin: Enables POST /auth/dev-login (never in production)
	DevLogin bool `mapstructure:"dev_login"`
}

type UploadConfig struct {
	// MaxImageBytes: Ceiling for decoded screenshot bytes (e.g., "5242880" or "5MB")
	MaxImageBytes string `mapstructure:"max_image_bytes"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// MaxCapacity: RAM budget in MB
	MaxCapacity int `mapstructure:"max_capacity"`

	// TTL: Expiration for cached thumbnails (e.g., "30m")
	TTL string `mapstructure:"ttl"`
}

type SecurityConfig struct {
	// CorsOrigins: Allowed origins; supports "*", "**.", "*." and "scheme://*" patterns
	CorsOrigins []string `mapstructure:"cors_origins"`

	// Throttle: Token-bucket limit per IP applied to every request
	Throttle ThrottleConfig `mapstructure:"throttle"`
}

type ThrottleConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Requests int    `mapstructure:"requests"`
	Window   string `mapstructure:"window"`
	Burst    int    `mapstructure:"burst"`
}

type RateLimitConfig struct {
	// SweepInterval: How often expired buckets are dropped
	SweepInterval string `mapstructure:"sweep_interval"`

	Routes RouteLimits `mapstructure:"routes"`
}

type RouteLimits struct {
	ReportsCreate  RouteLimit `mapstructure:"reports_create"`
	CommentsCreate RouteLimit `mapstructure:"comments_create"`
	Upvote         RouteLimit `mapstructure:"upvote"`
}

type RouteLimit struct {
	MaxRequests int    `mapstructure:"max_requests"`
	Window      string `mapstructure:"window"`
}

type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}
