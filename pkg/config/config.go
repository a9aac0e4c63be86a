package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultBaseURL = "https://api.suiterun.dev/v1"

type Config struct {
	APIToken    string `yaml:"apiToken"`
	ProjectID   string `yaml:"projectId"`
	SuiteID     string `yaml:"suiteId"`
	BaseURL     string `yaml:"baseUrl"`
	Browser     string `yaml:"browser"`
	Screenshot  *bool  `yaml:"screenshot"`
	Variables   string `yaml:"variables"`
	Retry       int    `yaml:"retry"`
	MaxAttempts int    `yaml:"maxAttempts"`
	WaitPeriod  *int   `yaml:"waitPeriodSeconds"`
	HubURL      string `yaml:"hubUrl"`
	StartingURL string `yaml:"startingUrl"`

	OutputDir             string `yaml:"outputDir"`
	PollConcurrency       int    `yaml:"pollConcurrency"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds"`
	LogLevel              string `yaml:"logLevel"`
	LogFormat             string `yaml:"logFormat"`
	MetricsFile           string `yaml:"metricsFile"`
	JUnitFile             string `yaml:"junitFile"`

	Redis   RedisConfig   `yaml:"redis"`
	S3      S3Config      `yaml:"s3"`
	Tracing TracingConfig `yaml:"tracing"`

	// problems collects env values that could not be parsed; Validate reports them.
	problems []string
}

type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	KeyPrefix  string `yaml:"keyPrefix"`
	TTLSeconds int    `yaml:"ttlSeconds"`
}

type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// LoadDotEnv loads KEY=VALUE pairs from path without overriding variables that
// are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

// LoadConfigOptional behaves like LoadConfig but treats an empty path or a missing
// file as an empty yaml document.
func LoadConfigOptional(filePath string) (*Config, error) {
	if strings.TrimSpace(filePath) != "" {
		if _, err := os.Stat(filePath); err == nil {
			return LoadConfig(filePath)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	var c Config
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("API_TOKEN"); v != "" {
		c.APIToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("PROJECT_ID"); v != "" {
		c.ProjectID = strings.TrimSpace(v)
	}
	if v := os.Getenv("SUITE_ID"); v != "" {
		c.SuiteID = strings.TrimSpace(v)
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BROWSER"); v != "" {
		c.Browser = strings.TrimSpace(v)
	}
	if v := os.Getenv("SCREENSHOT"); v != "" {
		if b, err := ParseBool(v); err == nil {
			c.Screenshot = &b
		} else {
			c.problems = append(c.problems, fmt.Sprintf("SCREENSHOT: %v", err))
		}
	}
	if v := os.Getenv("VARIABLES"); v != "" {
		c.Variables = v
	}
	if v := os.Getenv("RETRY"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Retry = n
		} else {
			c.problems = append(c.problems, fmt.Sprintf("RETRY must be an integer, got %q", v))
		}
	}
	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 1 {
			c.MaxAttempts = n
		} else {
			c.problems = append(c.problems, fmt.Sprintf("MAX_ATTEMPTS must be a positive integer, got %q", v))
		}
	}
	if v := os.Getenv("WAIT_PERIOD"); v != "" {
		if n, err := ParseSeconds(v); err == nil {
			c.WaitPeriod = &n
		} else {
			c.problems = append(c.problems, fmt.Sprintf("WAIT_PERIOD: %v", err))
		}
	}
	if v := os.Getenv("HUB_URL"); v != "" {
		c.HubURL = v
	}
	if v := os.Getenv("STARTING_URL"); v != "" {
		c.StartingURL = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("POLL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.PollConcurrency = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("METRICS_FILE"); v != "" {
		c.MetricsFile = v
	}
	if v := os.Getenv("JUNIT_FILE"); v != "" {
		c.JUnitFile = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_KEY_PREFIX"); v != "" {
		c.Redis.KeyPrefix = v
	}
	if v := os.Getenv("REDIS_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Redis.TTLSeconds = n
		}
	}
	if v := os.Getenv("RESULTS_S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
	if v := os.Getenv("RESULTS_S3_PREFIX"); v != "" {
		c.S3.Prefix = v
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		if b, err := ParseBool(v); err == nil {
			c.Tracing.Enabled = b
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		if b, err := ParseBool(v); err == nil {
			c.Tracing.Insecure = b
		}
	}
	if v := os.Getenv("OTEL_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Tracing.SampleRatio = f
		}
	}
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Browser == "" {
		c.Browser = "chrome"
	}
	if c.Screenshot == nil {
		t := true
		c.Screenshot = &t
	}
	if strings.TrimSpace(c.Variables) == "" {
		c.Variables = "{}"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 30
	}
	if c.WaitPeriod == nil {
		w := 120
		c.WaitPeriod = &w
	}
	if c.OutputDir == "" {
		c.OutputDir = "results"
	}
	if c.PollConcurrency <= 0 {
		c.PollConcurrency = 1
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 30
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "suiterun"
	}
}

func (c *Config) WaitPeriodDuration() time.Duration {
	if c.WaitPeriod == nil {
		return 0
	}
	return time.Duration(*c.WaitPeriod) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) ScreenshotEnabled() bool {
	return c.Screenshot == nil || *c.Screenshot
}

// Validate reports every problem at once as a ConfigurationError.
func (c *Config) Validate() error {
	errs := append([]string(nil), c.problems...)

	if strings.TrimSpace(c.APIToken) == "" {
		errs = append(errs, "API_TOKEN is required")
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		errs = append(errs, "PROJECT_ID is required")
	}
	if strings.TrimSpace(c.SuiteID) == "" {
		errs = append(errs, "SUITE_ID is required")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "BASE_URL must be a valid http(s) URL")
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, "MAX_ATTEMPTS must be >= 1")
	}
	if c.WaitPeriod != nil && *c.WaitPeriod < 0 {
		errs = append(errs, "WAIT_PERIOD must be >= 0")
	}
	if c.Retry < 0 {
		errs = append(errs, "RETRY must be >= 0")
	}
	if !isJSONObject(c.Variables) {
		errs = append(errs, "VARIABLES must be a JSON object")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "LOG_FORMAT must be text or json")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "LOG_LEVEL must be one of debug, info, warn, error")
	}

	if len(errs) > 0 {
		return domain.NewConfigurationError(errs...)
	}
	return nil
}

// Redacted returns a copy that is safe to print.
func (c Config) Redacted() Config {
	c.APIToken = MaskToken(c.APIToken)
	if c.Redis.Password != "" {
		c.Redis.Password = "****"
	}
	c.problems = nil
	return c
}

func MaskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func ParseBool(v string) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

// ParseSeconds accepts a plain number of seconds or a Go duration ("90s", "2m").
func ParseSeconds(v string) (int, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, errors.New("must be >= 0")
		}
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	if d < 0 {
		return 0, errors.New("must be >= 0")
	}
	return int(d / time.Second), nil
}

func isJSONObject(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return true
	}
	var obj map[string]any
	return json.Unmarshal([]byte(raw), &obj) == nil && obj != nil
}
