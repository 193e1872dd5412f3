package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the VoiceOps server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir          string
	DatabaseURL      string // postgres connection string; empty selects the embedded SQLite store
	HTTPPort         int
	GatewayURL       string // base URL of the realtime gateway (http(s) or ws(s))
	GatewayAPIKey    string
	GatewayAPISecret string
	SIPDomainFlag    string // overrides the domain derived from GatewayURL
	AuthSecret       string // hex-encoded 32-byte secret for API bearer token verification
	LogLevel         string
	LogFormat        string // "text" or "json"
	CORSOrigins      string
	RateLimitRPS     float64
	RateLimitBurst   int
}

// defaults
const (
	defaultDataDir        = "./data"
	defaultHTTPPort       = 8080
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultRateLimitRPS   = 20
	defaultRateLimitBurst = 40
)

// envPrefix is the prefix for all VoiceOps environment variables.
const envPrefix = "VOICEOPS_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("voiceops", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the embedded call ledger database")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres connection string for the call ledger (embedded SQLite when empty)")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.GatewayURL, "gateway-url", "", "base URL of the realtime gateway (ws:// and wss:// are accepted)")
	fs.StringVar(&cfg.GatewayAPIKey, "gateway-api-key", "", "API key for the realtime gateway")
	fs.StringVar(&cfg.GatewayAPISecret, "gateway-api-secret", "", "API secret for the realtime gateway")
	fs.StringVar(&cfg.SIPDomainFlag, "sip-domain", "", "SIP domain shown in synthesized trunk URIs (derived from gateway-url if empty)")
	fs.StringVar(&cfg.AuthSecret, "auth-secret", "", "hex-encoded 32-byte secret for API bearer tokens (auto-generated if empty)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")
	fs.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", defaultRateLimitRPS, "per-client request rate limit in requests per second")
	fs.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", defaultRateLimitBurst, "per-client request burst allowance")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"data-dir":           envPrefix + "DATA_DIR",
		"database-url":       envPrefix + "DATABASE_URL",
		"http-port":          envPrefix + "HTTP_PORT",
		"gateway-url":        envPrefix + "GATEWAY_URL",
		"gateway-api-key":    envPrefix + "GATEWAY_API_KEY",
		"gateway-api-secret": envPrefix + "GATEWAY_API_SECRET",
		"sip-domain":         envPrefix + "SIP_DOMAIN",
		"auth-secret":        envPrefix + "AUTH_SECRET",
		"log-level":          envPrefix + "LOG_LEVEL",
		"log-format":         envPrefix + "LOG_FORMAT",
		"cors-origins":       envPrefix + "CORS_ORIGINS",
		"rate-limit-rps":     envPrefix + "RATE_LIMIT_RPS",
		"rate-limit-burst":   envPrefix + "RATE_LIMIT_BURST",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "database-url":
			cfg.DatabaseURL = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "gateway-url":
			cfg.GatewayURL = val
		case "gateway-api-key":
			cfg.GatewayAPIKey = val
		case "gateway-api-secret":
			cfg.GatewayAPISecret = val
		case "sip-domain":
			cfg.SIPDomainFlag = val
		case "auth-secret":
			cfg.AuthSecret = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "rate-limit-rps":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.RateLimitRPS = v
			}
		case "rate-limit-burst":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RateLimitBurst = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway-url is required")
	}
	u, err := url.Parse(c.GatewayURL)
	if err != nil {
		return fmt.Errorf("parsing gateway-url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("gateway-url scheme must be http, https, ws or wss; got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("gateway-url has no host")
	}
	if c.GatewayAPIKey == "" || c.GatewayAPISecret == "" {
		return fmt.Errorf("gateway-api-key and gateway-api-secret are required")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("rate-limit-rps must be positive, got %g", c.RateLimitRPS)
	}
	if c.RateLimitBurst < 1 {
		return fmt.Errorf("rate-limit-burst must be at least 1, got %d", c.RateLimitBurst)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// SIPDomain returns the domain used in synthesized inbound trunk URIs. An
// explicit sip-domain wins; otherwise the gateway URL's host is used with
// any port stripped.
func (c *Config) SIPDomain() string {
	if c.SIPDomainFlag != "" {
		return c.SIPDomainFlag
	}
	u, err := url.Parse(c.GatewayURL)
	if err != nil || u.Host == "" {
		return "localhost"
	}
	host := u.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AuthSecretBytes returns the decoded 32-byte bearer token secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) AuthSecretBytes() ([]byte, error) {
	if c.AuthSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating auth secret: %w", err)
		}
		c.AuthSecret = hex.EncodeToString(key)
		slog.Warn("no auth-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.AuthSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding auth secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("auth secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
