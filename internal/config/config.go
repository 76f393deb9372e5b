package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the voxbridge server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir     string
	PostgresDSN string // empty means embedded SQLite under DataDir
	HTTPPort    int
	TLSCert     string
	TLSKey      string
	LogLevel    string
	LogFormat   string // log output format: "text" or "json"

	AIEndpoint string // websocket URL of the realtime AI service
	AIAPIKey   string
	AIModel    string

	WebhookSecret   string // shared secret for telephony webhook signatures
	TelephonyAPIURL string // provider REST API base URL for call control
	TelephonyAPIKey string

	CRMWebhookURL    string
	CRMWebhookSecret string
	CRMSyncInterval  time.Duration

	ThinkingTimeout time.Duration // max model silence before the fallback phrase
	MaxModelRetries int           // fallbacks before escalating to a human

	BargeInSpeechWindow time.Duration // sustained caller speech to trigger barge-in
	BargeInResumeDelay  time.Duration // caller silence before assistant audio resumes

	RateLimitRPS int // webhook requests per second per remote address
}

// defaults
const (
	defaultDataDir         = "./data"
	defaultHTTPPort        = 8080
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
	defaultAIModel         = "realtime-1"
	defaultThinkingTimeout = 10 * time.Second
	defaultModelRetries    = 2
	defaultSpeechWindow    = 300 * time.Millisecond
	defaultResumeDelay     = 1500 * time.Millisecond
	defaultCRMSyncInterval = time.Minute
	defaultRateLimitRPS    = 20
)

// envPrefix is the prefix for all voxbridge environment variables.
const envPrefix = "VOXBRIDGE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("voxbridge", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the embedded database")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "PostgreSQL DSN; when set, replaces the embedded SQLite database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "path to TLS certificate file")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "path to TLS private key file")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.AIEndpoint, "ai-endpoint", "", "websocket URL of the realtime AI service")
	fs.StringVar(&cfg.AIAPIKey, "ai-api-key", "", "API key for the realtime AI service")
	fs.StringVar(&cfg.AIModel, "ai-model", defaultAIModel, "realtime model identifier")
	fs.StringVar(&cfg.WebhookSecret, "webhook-secret", "", "shared secret for validating telephony webhook signatures")
	fs.StringVar(&cfg.TelephonyAPIURL, "telephony-api-url", "", "telephony provider REST API base URL for call control")
	fs.StringVar(&cfg.TelephonyAPIKey, "telephony-api-key", "", "API key for the telephony provider REST API")
	fs.StringVar(&cfg.CRMWebhookURL, "crm-webhook-url", "", "CRM webhook endpoint for lead sync (disabled if empty)")
	fs.StringVar(&cfg.CRMWebhookSecret, "crm-webhook-secret", "", "bearer token for the CRM webhook")
	fs.DurationVar(&cfg.CRMSyncInterval, "crm-sync-interval", defaultCRMSyncInterval, "retry sweep interval for unsynced leads")
	fs.DurationVar(&cfg.ThinkingTimeout, "thinking-timeout", defaultThinkingTimeout, "max wait for a model response before the fallback phrase")
	fs.IntVar(&cfg.MaxModelRetries, "max-model-retries", defaultModelRetries, "fallback attempts before escalating to a human transfer")
	fs.DurationVar(&cfg.BargeInSpeechWindow, "barge-in-speech-window", defaultSpeechWindow, "sustained caller speech required to interrupt the assistant")
	fs.DurationVar(&cfg.BargeInResumeDelay, "barge-in-resume-delay", defaultResumeDelay, "caller silence before assistant audio resumes after barge-in")
	fs.IntVar(&cfg.RateLimitRPS, "rate-limit-rps", defaultRateLimitRPS, "webhook requests per second allowed per remote address")

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
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":               envPrefix + "DATA_DIR",
		"postgres-dsn":           envPrefix + "POSTGRES_DSN",
		"http-port":              envPrefix + "HTTP_PORT",
		"tls-cert":               envPrefix + "TLS_CERT",
		"tls-key":                envPrefix + "TLS_KEY",
		"log-level":              envPrefix + "LOG_LEVEL",
		"log-format":             envPrefix + "LOG_FORMAT",
		"ai-endpoint":            envPrefix + "AI_ENDPOINT",
		"ai-api-key":             envPrefix + "AI_API_KEY",
		"ai-model":               envPrefix + "AI_MODEL",
		"webhook-secret":         envPrefix + "WEBHOOK_SECRET",
		"telephony-api-url":      envPrefix + "TELEPHONY_API_URL",
		"telephony-api-key":      envPrefix + "TELEPHONY_API_KEY",
		"crm-webhook-url":        envPrefix + "CRM_WEBHOOK_URL",
		"crm-webhook-secret":     envPrefix + "CRM_WEBHOOK_SECRET",
		"crm-sync-interval":      envPrefix + "CRM_SYNC_INTERVAL",
		"thinking-timeout":       envPrefix + "THINKING_TIMEOUT",
		"max-model-retries":      envPrefix + "MAX_MODEL_RETRIES",
		"barge-in-speech-window": envPrefix + "BARGE_IN_SPEECH_WINDOW",
		"barge-in-resume-delay":  envPrefix + "BARGE_IN_RESUME_DELAY",
		"rate-limit-rps":         envPrefix + "RATE_LIMIT_RPS",
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
		case "postgres-dsn":
			cfg.PostgresDSN = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "tls-cert":
			cfg.TLSCert = val
		case "tls-key":
			cfg.TLSKey = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "ai-endpoint":
			cfg.AIEndpoint = val
		case "ai-api-key":
			cfg.AIAPIKey = val
		case "ai-model":
			cfg.AIModel = val
		case "webhook-secret":
			cfg.WebhookSecret = val
		case "telephony-api-url":
			cfg.TelephonyAPIURL = val
		case "telephony-api-key":
			cfg.TelephonyAPIKey = val
		case "crm-webhook-url":
			cfg.CRMWebhookURL = val
		case "crm-webhook-secret":
			cfg.CRMWebhookSecret = val
		case "crm-sync-interval":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.CRMSyncInterval = v
			}
		case "thinking-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.ThinkingTimeout = v
			}
		case "max-model-retries":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.MaxModelRetries = v
			}
		case "barge-in-speech-window":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.BargeInSpeechWindow = v
			}
		case "barge-in-resume-delay":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.BargeInResumeDelay = v
			}
		case "rate-limit-rps":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RateLimitRPS = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
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

	// TLS cert and key must both be set or both be empty.
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls-cert and tls-key must both be provided or both be omitted")
	}

	if c.ThinkingTimeout < time.Second {
		return fmt.Errorf("thinking-timeout must be at least 1s, got %s", c.ThinkingTimeout)
	}
	if c.MaxModelRetries < 0 {
		return fmt.Errorf("max-model-retries must not be negative, got %d", c.MaxModelRetries)
	}
	if c.BargeInSpeechWindow < 50*time.Millisecond {
		return fmt.Errorf("barge-in-speech-window must be at least 50ms, got %s", c.BargeInSpeechWindow)
	}
	if c.BargeInResumeDelay < 100*time.Millisecond {
		return fmt.Errorf("barge-in-resume-delay must be at least 100ms, got %s", c.BargeInResumeDelay)
	}
	if c.RateLimitRPS < 1 {
		return fmt.Errorf("rate-limit-rps must be at least 1, got %d", c.RateLimitRPS)
	}

	return nil
}

// TLSEnabled returns true if TLS certificates are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != ""
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
