package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const placeholderToken = "YOUR_GITHUB_TOKEN"

var validLogLevels = []string{"debug", "info", "warn", "error"}

var validTraceModes = []string{"off", "errors", "sampled", "detailed"}

// ErrMissingToken reports an absent or placeholder GitHub credential.
var ErrMissingToken = errors.New("github token not found or invalid")

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	Forecast  ForecastConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
}

// GitHubConfig configures GitHub API interactions.
type GitHubConfig struct {
	APIBaseURL         string
	Token              string
	RequestTimeout     time.Duration
	WindowCount        int
	PageSize           int
	DetailsConcurrency int
}

// ForecastConfig configures the external forecasting service.
type ForecastConfig struct {
	URL            string
	RequestTimeout time.Duration
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// ResolveToken returns the configured credential, or ErrMissingToken when it is
// empty or still the documented placeholder.
func (g GitHubConfig) ResolveToken() (string, error) {
	token := strings.TrimSpace(g.Token)
	if token == "" || token == placeholderToken {
		return "", ErrMissingToken
	}
	return token, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from YAML, applies environment overrides, and
// validates the result. A nil reader skips the YAML layer.
func Load(reader io.Reader, lookupEnv func(string) (string, bool)) (*Config, error) {
	var raw rawConfig
	if reader != nil {
		decoder := yaml.NewDecoder(reader)
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	cfg := raw.toConfig()
	if err := applyEnv(cfg, lookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		errs = append(errs, "server.listen_addr is required")
	}

	if err := validateURL(c.GitHub.APIBaseURL); err != nil {
		errs = append(errs, "github.api_base_url "+err.Error())
	}
	if c.GitHub.RequestTimeout < 0 {
		errs = append(errs, "github.request_timeout must be >= 0")
	}
	if c.GitHub.WindowCount <= 0 {
		errs = append(errs, "github.window_count must be > 0")
	}
	if c.GitHub.PageSize <= 0 || c.GitHub.PageSize > 100 {
		errs = append(errs, "github.page_size must be between 1 and 100")
	}
	if c.GitHub.DetailsConcurrency <= 0 {
		errs = append(errs, "github.details_concurrency must be > 0")
	}

	if err := validateURL(c.Forecast.URL); err != nil {
		errs = append(errs, "forecast.url "+err.Error())
	}
	if c.Forecast.RequestTimeout < 0 {
		errs = append(errs, "forecast.request_timeout must be >= 0")
	}

	if !slices.Contains(validTraceModes, c.Telemetry.OTELTraceMode) {
		errs = append(errs, "telemetry.otel_trace_mode must be one of off|errors|sampled|detailed")
	}
	if c.Telemetry.OTELTraceSampleRatio < 0 || c.Telemetry.OTELTraceSampleRatio > 1 {
		errs = append(errs, "telemetry.otel_trace_sample_ratio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("is invalid: %v", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com/"
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.GitHub.WindowCount == 0 {
		cfg.GitHub.WindowCount = 12
	}
	if cfg.GitHub.PageSize == 0 {
		cfg.GitHub.PageSize = 10
	}
	if cfg.GitHub.DetailsConcurrency == 0 {
		cfg.GitHub.DetailsConcurrency = 4
	}
	if cfg.Forecast.URL == "" {
		cfg.Forecast.URL = "https://lstm-final-443901594551.us-central1.run.app/api/forecast"
	}
	if cfg.Forecast.RequestTimeout == 0 {
		cfg.Forecast.RequestTimeout = 2 * time.Minute
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "off"
	}
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	if lookupEnv == nil {
		return nil
	}
	if token, ok := lookupEnv("GITHUB_TOKEN"); ok {
		cfg.GitHub.Token = token
	}
	if port, ok := lookupEnv("PORT"); ok && strings.TrimSpace(port) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(port))
		if err != nil || parsed <= 0 || parsed > 65535 {
			return fmt.Errorf("PORT must be a valid TCP port, got %q", port)
		}
		cfg.Server.ListenAddr = ":" + strconv.Itoa(parsed)
	}
	if forecastURL, ok := lookupEnv("FORECAST_URL"); ok && strings.TrimSpace(forecastURL) != "" {
		cfg.Forecast.URL = strings.TrimSpace(forecastURL)
	}
	if baseURL, ok := lookupEnv("GITHUB_API_BASE_URL"); ok && strings.TrimSpace(baseURL) != "" {
		cfg.GitHub.APIBaseURL = strings.TrimSpace(baseURL)
	}
	if level, ok := lookupEnv("LOG_LEVEL"); ok && strings.TrimSpace(level) != "" {
		cfg.Server.LogLevel = strings.ToLower(strings.TrimSpace(level))
	}
	return nil
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    ServerConfig `yaml:"server"`
	GitHub    rawGitHub    `yaml:"github"`
	Forecast  rawForecast  `yaml:"forecast"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawGitHub struct {
	APIBaseURL         string   `yaml:"api_base_url"`
	Token              string   `yaml:"token"`
	RequestTimeout     duration `yaml:"request_timeout"`
	WindowCount        int      `yaml:"window_count"`
	PageSize           int      `yaml:"page_size"`
	DetailsConcurrency int      `yaml:"details_concurrency"`
}

type rawForecast struct {
	URL            string   `yaml:"url"`
	RequestTimeout duration `yaml:"request_timeout"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: r.Server,
		GitHub: GitHubConfig{
			APIBaseURL:         r.GitHub.APIBaseURL,
			Token:              r.GitHub.Token,
			RequestTimeout:     r.GitHub.RequestTimeout.Duration,
			WindowCount:        r.GitHub.WindowCount,
			PageSize:           r.GitHub.PageSize,
			DetailsConcurrency: r.GitHub.DetailsConcurrency,
		},
		Forecast: ForecastConfig{
			URL:            r.Forecast.URL,
			RequestTimeout: r.Forecast.RequestTimeout.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
