package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/golang-jwt/jwt/v5"
)

var envKeys = []string{
	"API_TOKEN", "PROJECT_ID", "SUITE_ID", "BASE_URL", "BROWSER", "SCREENSHOT", "VARIABLES",
	"RETRY", "MAX_ATTEMPTS", "WAIT_PERIOD", "HUB_URL", "STARTING_URL", "OUTPUT_DIR",
	"POLL_CONCURRENCY", "REQUEST_TIMEOUT_SECONDS", "LOG_LEVEL", "LOG_FORMAT", "METRICS_FILE",
	"JUNIT_FILE", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_KEY_PREFIX", "REDIS_TTL_SECONDS",
	"RESULTS_S3_BUCKET", "RESULTS_S3_PREFIX", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SAMPLE_RATIO",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func requiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("API_TOKEN", "tok")
	t.Setenv("PROJECT_ID", "p1")
	t.Setenv("SUITE_ID", "s1")
}

func TestLoadConfigOptional_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Browser != "chrome" || !cfg.ScreenshotEnabled() || cfg.Variables != "{}" || cfg.Retry != 0 {
		t.Errorf("unexpected request defaults: %+v", cfg)
	}
	if cfg.MaxAttempts != 30 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if cfg.WaitPeriodDuration() != 120*time.Second {
		t.Errorf("WaitPeriod = %v", cfg.WaitPeriodDuration())
	}
	if cfg.OutputDir != "results" || cfg.PollConcurrency != 1 || cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("unexpected runtime defaults: %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" || cfg.Redis.KeyPrefix != "suiterun" {
		t.Errorf("unexpected ambient defaults: %+v", cfg)
	}
}

func TestLoadConfigOptional_FileNotExist(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
}

func TestLoadConfigOptional_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("projectId: [unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigOptional(path); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestLoadConfigOptional_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "suiterun.yaml")
	content := `
apiToken: file-token
projectId: file-project
suiteId: file-suite
maxAttempts: 5
waitPeriodSeconds: 0
screenshot: false
redis:
  addr: localhost:6379
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SUITE_ID", "env-suite")
	t.Setenv("MAX_ATTEMPTS", "7")

	cfg, err := LoadConfigOptional(path)
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.APIToken != "file-token" || cfg.ProjectID != "file-project" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.SuiteID != "env-suite" || cfg.MaxAttempts != 7 {
		t.Errorf("env should override file: suite=%q max=%d", cfg.SuiteID, cfg.MaxAttempts)
	}
	if cfg.WaitPeriodDuration() != 0 {
		t.Errorf("explicit zero wait period should be kept, got %v", cfg.WaitPeriodDuration())
	}
	if cfg.ScreenshotEnabled() {
		t.Error("screenshot should be false")
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadConfigOptional_WaitPeriodForms(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"0", 0},
		{"45", 45 * time.Second},
		{"2m", 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("WAIT_PERIOD", tt.in)
			cfg, err := LoadConfigOptional("")
			if err != nil {
				t.Fatal(err)
			}
			if got := cfg.WaitPeriodDuration(); got != tt.want {
				t.Errorf("WaitPeriod = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr []string
	}{
		{name: "valid", env: map[string]string{}},
		{
			name:    "missing required",
			env:     map[string]string{"API_TOKEN": "", "PROJECT_ID": "", "SUITE_ID": ""},
			wantErr: []string{"API_TOKEN is required", "PROJECT_ID is required", "SUITE_ID is required"},
		},
		{
			name:    "zero max attempts",
			env:     map[string]string{"MAX_ATTEMPTS": "0"},
			wantErr: []string{"MAX_ATTEMPTS must be a positive integer"},
		},
		{
			name:    "negative wait period",
			env:     map[string]string{"WAIT_PERIOD": "-1"},
			wantErr: []string{"WAIT_PERIOD"},
		},
		{
			name:    "bad base url",
			env:     map[string]string{"BASE_URL": "ftp://example.com"},
			wantErr: []string{"BASE_URL must be a valid http(s) URL"},
		},
		{
			name:    "variables array",
			env:     map[string]string{"VARIABLES": `[1,2]`},
			wantErr: []string{"VARIABLES must be a JSON object"},
		},
		{
			name:    "bad screenshot",
			env:     map[string]string{"SCREENSHOT": "maybe"},
			wantErr: []string{"SCREENSHOT"},
		},
		{
			name:    "bad log format",
			env:     map[string]string{"LOG_FORMAT": "xml"},
			wantErr: []string{"LOG_FORMAT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			requiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadConfigOptional("")
			if err != nil {
				t.Fatalf("LoadConfigOptional: %v", err)
			}
			err = cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q missing %q", err.Error(), want)
				}
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PROJECT_ID=from-dotenv\nSUITE_ID=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// already-set variables win over the file
	t.Setenv("SUITE_ID", "from-env")
	os.Unsetenv("PROJECT_ID")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PROJECT_ID") })

	if got := os.Getenv("PROJECT_ID"); got != "from-dotenv" {
		t.Errorf("PROJECT_ID = %q", got)
	}
	if got := os.Getenv("SUITE_ID"); got != "from-env" {
		t.Errorf("SUITE_ID = %q", got)
	}
	if err := LoadDotEnv(filepath.Join(dir, "absent.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestRedacted(t *testing.T) {
	c := Config{APIToken: "abcd1234efgh5678", Redis: RedisConfig{Password: "secret"}}
	r := c.Redacted()
	if r.APIToken != "abcd...5678" {
		t.Errorf("APIToken = %q", r.APIToken)
	}
	if r.Redis.Password != "****" {
		t.Errorf("Redis.Password = %q", r.Redis.Password)
	}
	if c.APIToken != "abcd1234efgh5678" {
		t.Error("Redacted must not modify the receiver")
	}
	if MaskToken("") != "<unset>" || MaskToken("short") != "****" {
		t.Error("unexpected short-token masking")
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Now()
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	expired := sign(jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()})
	valid := sign(jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	noExp := sign(jwt.MapClaims{"sub": "ci"})

	if !TokenExpired(expired, now) {
		t.Error("expected expired token")
	}
	if TokenExpired(valid, now) {
		t.Error("token should still be valid")
	}
	if _, ok := TokenExpiry(noExp); ok {
		t.Error("token without exp should report no expiry")
	}
	if _, ok := TokenExpiry("opaque-api-token"); ok {
		t.Error("opaque token should not parse")
	}
}
