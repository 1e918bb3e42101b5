package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 3000
	DefaultAPIURL         = "https://public.api.bsky.app"
	DefaultPDSURL         = "https://bsky.social"
	DefaultPLCURL         = "https://plc.directory"
	DefaultDatabasePath   = "skystats.db"
	DefaultCutoff         = "2024-01-01"
	DefaultTimezone       = "UTC"
	DefaultFetchLimit     = 10
	DefaultFeedLimit      = 1000
	DefaultLikesLimit     = 500
	DefaultFollowersLimit = 100
	DefaultPerPage        = 100
	DefaultReportTimeout  = 2 * time.Minute
	DefaultCacheTTL       = 10 * time.Minute
	DefaultCacheSize      = 256
	DefaultRetention      = 30 * 24 * time.Hour
	DefaultMaxReports     = 10000
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int `yaml:"port"`

	// APIURL is the XRPC service reads go to. Empty means the public AppView,
	// or the BlueSky PDS when credentials are set.
	APIURL string `yaml:"api_url"`

	// PLCURL is the PLC directory did:plc identifiers are resolved against.
	PLCURL string `yaml:"plc_url"`

	// DatabasePath is the SQLite archive file. Empty disables archiving.
	DatabasePath string `yaml:"database_path"`

	LogLevel string `yaml:"log_level"`

	// Cutoff excludes older posts from reports. A date or an RFC 3339 time.
	Cutoff string `yaml:"cutoff"`

	// Timezone of the activity histograms, as an IANA name.
	Timezone string `yaml:"timezone"`

	DefaultLimit        int     `yaml:"default_limit"`
	FeedLimit           int     `yaml:"feed_limit"`
	LikesLimit          int     `yaml:"likes_limit"`
	FollowersLimit      int     `yaml:"followers_limit"`
	PerPage             int     `yaml:"per_page"`
	RateLimit           float64 `yaml:"rate_limit"`
	MaxConcurrentLikes  int     `yaml:"max_concurrent_likes"`
	TolerateLikesErrors bool    `yaml:"tolerate_likes_errors"`

	ReportTimeout Duration `yaml:"report_timeout"`
	CacheTTL      Duration `yaml:"cache_ttl"`
	CacheSize     int      `yaml:"cache_size"`

	// Retention and MaxReports bound the archive. A MaxReports of zero
	// keeps every report younger than Retention.
	Retention  Duration `yaml:"retention"`
	MaxReports int      `yaml:"max_reports"`

	// LexiconPath is a JSON word-to-emotions file that replaces the embedded
	// emotion lexicon.
	LexiconPath string `yaml:"lexicon_path"`

	// Handle and AppPassword log the client in when both are set. The
	// password is only read from the environment.
	Handle      string `yaml:"handle"`
	AppPassword string `yaml:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		PLCURL:         DefaultPLCURL,
		DatabasePath:   DefaultDatabasePath,
		LogLevel:       "info",
		Cutoff:         DefaultCutoff,
		Timezone:       DefaultTimezone,
		DefaultLimit:   DefaultFetchLimit,
		FeedLimit:      DefaultFeedLimit,
		LikesLimit:     DefaultLikesLimit,
		FollowersLimit: DefaultFollowersLimit,
		PerPage:        DefaultPerPage,
		ReportTimeout:  Duration{DefaultReportTimeout},
		CacheTTL:       Duration{DefaultCacheTTL},
		CacheSize:      DefaultCacheSize,
		Retention:      Duration{DefaultRetention},
		MaxReports:     DefaultMaxReports,
	}
}

// Load reads configuration from a local .env file, the YAML file named by
// SKYSTATS_CONFIG and environment variables, in increasing precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("SKYSTATS_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	envString("SKYSTATS_API_URL", &c.APIURL)
	envString("SKYSTATS_PLC_URL", &c.PLCURL)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("SKYSTATS_CUTOFF", &c.Cutoff)
	envString("SKYSTATS_TIMEZONE", &c.Timezone)
	envString("SKYSTATS_LEXICON_PATH", &c.LexiconPath)
	envString("BLUESKY_HANDLE", &c.Handle)
	envString("BLUESKY_APP_PASSWORD", &c.AppPassword)

	// An explicitly empty DATABASE_PATH disables the archive.
	if p, ok := os.LookupEnv("DATABASE_PATH"); ok {
		c.DatabasePath = p
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &c.Port},
		{"SKYSTATS_DEFAULT_LIMIT", &c.DefaultLimit},
		{"SKYSTATS_FEED_LIMIT", &c.FeedLimit},
		{"SKYSTATS_LIKES_LIMIT", &c.LikesLimit},
		{"SKYSTATS_FOLLOWERS_LIMIT", &c.FollowersLimit},
		{"SKYSTATS_PER_PAGE", &c.PerPage},
		{"SKYSTATS_MAX_CONCURRENT_LIKES", &c.MaxConcurrentLikes},
		{"SKYSTATS_CACHE_SIZE", &c.CacheSize},
		{"SKYSTATS_MAX_REPORTS", &c.MaxReports},
	}
	for _, e := range ints {
		if err := envInt(e.key, e.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"SKYSTATS_REPORT_TIMEOUT", &c.ReportTimeout},
		{"SKYSTATS_CACHE_TTL", &c.CacheTTL},
		{"SKYSTATS_RETENTION", &c.Retention},
	}
	for _, e := range durations {
		if err := envDuration(e.key, e.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("SKYSTATS_RATE_LIMIT"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SKYSTATS_RATE_LIMIT: %w", err)
		}
		c.RateLimit = rps
	}

	if v := os.Getenv("SKYSTATS_TOLERATE_LIKES_ERRORS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SKYSTATS_TOLERATE_LIKES_ERRORS: %w", err)
		}
		c.TolerateLikesErrors = b
	}

	return nil
}

// Validate checks the configuration for values the application cannot run
// with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.PerPage < 1 || c.PerPage > 100 {
		errs = append(errs, fmt.Errorf("per page must be between 1 and 100, got %d", c.PerPage))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.MaxConcurrentLikes < 0 {
		errs = append(errs, errors.New("max concurrent likes must not be negative"))
	}
	if c.ReportTimeout.Duration <= 0 {
		errs = append(errs, errors.New("report timeout must be positive"))
	}
	if c.Retention.Duration <= 0 {
		errs = append(errs, errors.New("retention must be positive"))
	}
	if c.MaxReports < 0 {
		errs = append(errs, errors.New("max reports must not be negative"))
	}
	if _, err := c.CutoffTime(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if (c.Handle == "") != (c.AppPassword == "") {
		errs = append(errs, errors.New("BLUESKY_HANDLE and BLUESKY_APP_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// ServiceURL returns the XRPC service to read from.
func (c *Config) ServiceURL() string {
	switch {
	case c.APIURL != "":
		return c.APIURL
	case c.HasCredentials():
		return DefaultPDSURL
	default:
		return DefaultAPIURL
	}
}

// HasCredentials reports whether the client should log in.
func (c *Config) HasCredentials() bool {
	return c.Handle != "" && c.AppPassword != ""
}

// CutoffTime parses Cutoff as a date or an RFC 3339 time. Dates are midnight
// UTC.
func (c *Config) CutoffTime() (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, c.Cutoff); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, c.Cutoff)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cutoff %q: want YYYY-MM-DD or RFC 3339", c.Cutoff)
	}
	return t, nil
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	dst.Duration = d
	return nil
}
