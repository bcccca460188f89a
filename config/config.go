package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Proxy     ProxyConfig
	Captcha   CaptchaConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instances.
type BrowserConfig struct {
	// Headless controls whether browsers run headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// ScraperConfig controls the orchestration loop.
type ScraperConfig struct {
	// DefaultTimeout is the per-call deadline when the client does not
	// supply one.
	DefaultTimeout time.Duration // default: 90s

	// MaxTimeout is the maximum allowed timeout from the client.
	MaxTimeout time.Duration // default: 300s

	// MaxConcurrent bounds the number of scrape calls running sessions
	// in parallel.
	MaxConcurrent int // default: 5

	// RequestsPerMinute is the global rate-limit budget. Callers block
	// until the gate admits them rather than failing.
	RequestsPerMinute int // default: 30
}

// ProxyConfig controls the proxy manager.
type ProxyConfig struct {
	// RotationInterval is how long a working proxy is reused before the
	// manager rotates to a fresh one.
	RotationInterval time.Duration // default: 10m

	// QuarantineWindow is how long a failed proxy key stays excluded.
	QuarantineWindow time.Duration // default: 30m

	// ProbeURL is fetched through a candidate proxy to validate it.
	ProbeURL string // default: "https://www.gstatic.com/generate_204"

	// ProbeTimeout bounds a single validation probe.
	ProbeTimeout time.Duration // default: 8s

	// PoolAPIKey authenticates against the rotating pool provider.
	PoolAPIKey string

	// PoolEndpoint is the pool provider's proxy-allocation API URL.
	PoolEndpoint string

	// Residential* configure the credentialed residential provider.
	ResidentialUsername string
	ResidentialPassword string
	ResidentialEndpoint string
	ResidentialPort     int
}

// CaptchaConfig controls the captcha solving chain.
type CaptchaConfig struct {
	// TwoCaptchaKey authenticates against the 2Captcha-compatible solver.
	TwoCaptchaKey string

	// AntiCaptchaKey authenticates against the AntiCaptcha-compatible solver.
	AntiCaptchaKey string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key API rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10

	// ClientTTL is how long an idle caller's token bucket is kept.
	ClientTTL time.Duration // default: 1h

	// SweepInterval is how often idle buckets are evicted.
	SweepInterval time.Duration // default: 5m
}

// CacheConfig controls the scrape result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int // default: 500
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HARVESTER_HOST", "0.0.0.0"),
			Port: envIntOr("HARVESTER_PORT", 8080),
			Mode: envOr("HARVESTER_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("HARVESTER_HEADLESS", true),
			NoSandbox:  envBoolOr("HARVESTER_NO_SANDBOX", false),
			BrowserBin: os.Getenv("HARVESTER_BROWSER_BIN"),
		},
		Scraper: ScraperConfig{
			DefaultTimeout:    envDurationOr("HARVESTER_DEFAULT_TIMEOUT", 90*time.Second),
			MaxTimeout:        envDurationOr("HARVESTER_MAX_TIMEOUT", 300*time.Second),
			MaxConcurrent:     envIntOr("HARVESTER_MAX_CONCURRENT", 5),
			RequestsPerMinute: envIntOr("HARVESTER_REQUESTS_PER_MINUTE", 30),
		},
		Proxy: ProxyConfig{
			RotationInterval:    envDurationOr("HARVESTER_PROXY_ROTATION_INTERVAL", 10*time.Minute),
			QuarantineWindow:    envDurationOr("HARVESTER_PROXY_QUARANTINE", 30*time.Minute),
			ProbeURL:            envOr("HARVESTER_PROXY_PROBE_URL", "https://www.gstatic.com/generate_204"),
			ProbeTimeout:        envDurationOr("HARVESTER_PROXY_PROBE_TIMEOUT", 8*time.Second),
			PoolAPIKey:          os.Getenv("HARVESTER_PROXY_POOL_KEY"),
			PoolEndpoint:        os.Getenv("HARVESTER_PROXY_POOL_ENDPOINT"),
			ResidentialUsername: os.Getenv("HARVESTER_PROXY_RES_USER"),
			ResidentialPassword: os.Getenv("HARVESTER_PROXY_RES_PASS"),
			ResidentialEndpoint: os.Getenv("HARVESTER_PROXY_RES_ENDPOINT"),
			ResidentialPort:     envIntOr("HARVESTER_PROXY_RES_PORT", 0),
		},
		Captcha: CaptchaConfig{
			TwoCaptchaKey:  os.Getenv("HARVESTER_TWOCAPTCHA_KEY"),
			AntiCaptchaKey: os.Getenv("HARVESTER_ANTICAPTCHA_KEY"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVESTER_AUTH_ENABLED", true),
			APIKeys: envSliceOr("HARVESTER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVESTER_RATE_RPS", 5.0),
			Burst:             envIntOr("HARVESTER_RATE_BURST", 10),
			ClientTTL:         envDurationOr("HARVESTER_RATE_CLIENT_TTL", time.Hour),
			SweepInterval:     envDurationOr("HARVESTER_RATE_SWEEP_INTERVAL", 5*time.Minute),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("HARVESTER_CACHE_MAX_ENTRIES", 500),
		},
		Log: LogConfig{
			Level:  envOr("HARVESTER_LOG_LEVEL", "info"),
			Format: envOr("HARVESTER_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
