package config

import (
	"os"
	"testing"
)

func testEnvBase(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"VOICEOPS_DATA_DIR", "VOICEOPS_DATABASE_URL", "VOICEOPS_HTTP_PORT",
		"VOICEOPS_GATEWAY_URL", "VOICEOPS_GATEWAY_API_KEY", "VOICEOPS_GATEWAY_API_SECRET",
		"VOICEOPS_SIP_DOMAIN", "VOICEOPS_AUTH_SECRET", "VOICEOPS_LOG_LEVEL",
		"VOICEOPS_LOG_FORMAT", "VOICEOPS_CORS_ORIGINS",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	// Minimum viable settings so validate() passes.
	t.Setenv("VOICEOPS_GATEWAY_URL", "wss://gw.example.com")
	t.Setenv("VOICEOPS_GATEWAY_API_KEY", "APIkey")
	t.Setenv("VOICEOPS_GATEWAY_API_SECRET", "secret")
}

func TestDefaults(t *testing.T) {
	testEnvBase(t)
	os.Args = []string{"voiceops"}

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
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.LogFormat != defaultLogFormat {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, defaultLogFormat)
	}
}

func TestEnvVarOverride(t *testing.T) {
	testEnvBase(t)
	os.Args = []string{"voiceops"}
	t.Setenv("VOICEOPS_HTTP_PORT", "9090")
	t.Setenv("VOICEOPS_DATA_DIR", "/tmp/voiceops-test")
	t.Setenv("VOICEOPS_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/voiceops-test" {
		t.Errorf("DataDir = %q, want /tmp/voiceops-test", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	testEnvBase(t)
	os.Args = []string{"voiceops", "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("VOICEOPS_HTTP_PORT", "9090")
	t.Setenv("VOICEOPS_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestValidation(t *testing.T) {
	testEnvBase(t)

	os.Args = []string{"voiceops", "--http-port", "0"}
	if _, err := Load(); err == nil {
		t.Error("expected error for port 0")
	}

	os.Args = []string{"voiceops", "--log-level", "verbose"}
	if _, err := Load(); err == nil {
		t.Error("expected error for bad log level")
	}

	os.Args = []string{"voiceops", "--gateway-url", "ftp://gw.example.com"}
	if _, err := Load(); err == nil {
		t.Error("expected error for bad gateway scheme")
	}

	os.Args = []string{"voiceops"}
	os.Unsetenv("VOICEOPS_GATEWAY_API_KEY")
	if _, err := Load(); err == nil {
		t.Error("expected error for missing gateway credentials")
	}
}

func TestSIPDomain(t *testing.T) {
	cfg := &Config{GatewayURL: "wss://gw.example.com:443"}
	if got := cfg.SIPDomain(); got != "gw.example.com" {
		t.Errorf("SIPDomain = %q, want gw.example.com", got)
	}

	cfg = &Config{GatewayURL: "https://gw.example.com"}
	if got := cfg.SIPDomain(); got != "gw.example.com" {
		t.Errorf("SIPDomain = %q, want gw.example.com", got)
	}

	cfg = &Config{GatewayURL: "wss://gw.example.com", SIPDomainFlag: "sip.custom.io"}
	if got := cfg.SIPDomain(); got != "sip.custom.io" {
		t.Errorf("SIPDomain = %q, want sip.custom.io", got)
	}
}

func TestAuthSecretBytes(t *testing.T) {
	cfg := &Config{}
	key, err := cfg.AuthSecretBytes()
	if err != nil {
		t.Fatalf("generated secret: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("generated key length = %d, want 32", len(key))
	}
	if cfg.AuthSecret == "" {
		t.Fatal("generated secret not stored back")
	}

	cfg = &Config{AuthSecret: "zz"}
	if _, err := cfg.AuthSecretBytes(); err == nil {
		t.Error("expected error for non-hex secret")
	}

	cfg = &Config{AuthSecret: "abcd"}
	if _, err := cfg.AuthSecretBytes(); err == nil {
		t.Error("expected error for short secret")
	}
}
