package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	// Clear any env vars that might interfere.
	for _, env := range []string{
		"VOXBRIDGE_DATA_DIR", "VOXBRIDGE_HTTP_PORT", "VOXBRIDGE_POSTGRES_DSN",
		"VOXBRIDGE_TLS_CERT", "VOXBRIDGE_TLS_KEY", "VOXBRIDGE_LOG_LEVEL",
		"VOXBRIDGE_THINKING_TIMEOUT", "VOXBRIDGE_BARGE_IN_SPEECH_WINDOW",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	os.Args = []string{"voxbridge"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.PostgresDSN != "" {
		t.Errorf("PostgresDSN = %q, want empty", cfg.PostgresDSN)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.ThinkingTimeout != defaultThinkingTimeout {
		t.Errorf("ThinkingTimeout = %s, want %s", cfg.ThinkingTimeout, defaultThinkingTimeout)
	}
	if cfg.BargeInSpeechWindow != defaultSpeechWindow {
		t.Errorf("BargeInSpeechWindow = %s, want %s", cfg.BargeInSpeechWindow, defaultSpeechWindow)
	}
	if cfg.BargeInResumeDelay != defaultResumeDelay {
		t.Errorf("BargeInResumeDelay = %s, want %s", cfg.BargeInResumeDelay, defaultResumeDelay)
	}
}

func TestEnvVarOverride(t *testing.T) {
	os.Args = []string{"voxbridge"}
	t.Setenv("VOXBRIDGE_HTTP_PORT", "9090")
	t.Setenv("VOXBRIDGE_DATA_DIR", "/tmp/voxbridge-test")
	t.Setenv("VOXBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("VOXBRIDGE_THINKING_TIMEOUT", "15s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/voxbridge-test" {
		t.Errorf("DataDir = %q, want /tmp/voxbridge-test", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.ThinkingTimeout != 15*time.Second {
		t.Errorf("ThinkingTimeout = %s, want 15s", cfg.ThinkingTimeout)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	os.Args = []string{"voxbridge", "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("VOXBRIDGE_HTTP_PORT", "9090")
	t.Setenv("VOXBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	os.Args = []string{"voxbridge", "--http-port", "99999"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	os.Args = []string{"voxbridge", "--log-level", "verbose"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateTLSMismatch(t *testing.T) {
	os.Args = []string{"voxbridge", "--tls-cert", "cert.pem"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error when tls-cert provided without tls-key")
	}
}

func TestValidateBargeInWindows(t *testing.T) {
	os.Args = []string{"voxbridge", "--barge-in-speech-window", "10ms"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for too-small barge-in speech window")
	}

	os.Args = []string{"voxbridge", "--barge-in-resume-delay", "10ms"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for too-small barge-in resume delay")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
