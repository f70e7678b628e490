// Package config provides configuration structures for the traffic generator.
// The main Config struct ties together targets, traffic sources, behavior
// settings, and the pacing parameters of the scheduler.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Errors returned by the config package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrConfigNotFound is returned when the config file is not found.
	ErrConfigNotFound = errors.New("config: configuration file not found")
)

// Config is the root configuration structure for the traffic generator.
// It is decoded from YAML; strict, comment-free JSON documents are accepted
// as well since every JSON document is valid YAML.
type Config struct {
	// TargetURLs are the entry pages traffic is sent to.
	TargetURLs []string `yaml:"target_urls" json:"target_urls"`

	// NumRequests is the number of sessions to run. 0 means run until
	// cancelled.
	NumRequests int `yaml:"num_requests,omitempty" json:"num_requests,omitempty"`

	// Workers is the number of independent pacing loops.
	// Default: 1
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty"`

	// MaxQPS caps the aggregate outbound request rate across all workers.
	// 0 means unlimited.
	MaxQPS float64 `yaml:"max_qps,omitempty" json:"max_qps,omitempty"`

	// Seed fixes the random streams for a reproducible run. 0 means derive
	// a seed from the current time.
	Seed uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// RequestInterval bounds the randomized delay between sessions.
	RequestInterval IntervalConfig `yaml:"request_interval" json:"request_interval"`

	// Timeout is the per-request HTTP timeout.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// SEO configures session behavior synthesis.
	SEO SEOConfig `yaml:"seo_settings" json:"seo_settings"`

	// Sources configures the traffic sources by category.
	Sources SourcesConfig `yaml:"sources" json:"sources"`

	// UserAgents configures the per-device user agent pools.
	UserAgents UserAgentsConfig `yaml:"user_agents,omitempty" json:"user_agents,omitempty"`

	// Log configures logging output.
	Log LogConfig `yaml:"log,omitempty" json:"log,omitempty"`

	// Prometheus configures the metrics endpoint.
	Prometheus PrometheusConfig `yaml:"prometheus,omitempty" json:"prometheus,omitempty"`
}

// IntervalConfig bounds a randomized delay.
type IntervalConfig struct {
	// Min is the minimum delay between sessions.
	// Default: 1s
	Min time.Duration `yaml:"min" json:"min"`

	// Max is the maximum delay between sessions.
	// Default: 5s
	Max time.Duration `yaml:"max" json:"max"`
}

// SEOConfig configures how sessions imitate organic browsing behavior.
type SEOConfig struct {
	// SimulateOrganicBehavior enables multi-page sessions with dwell pauses.
	// When false every session is a single request.
	SimulateOrganicBehavior bool `yaml:"simulate_organic_behavior" json:"simulate_organic_behavior"`

	// MinDwellTime is the minimum simulated time spent on a page.
	// Default: 5s
	MinDwellTime time.Duration `yaml:"min_dwell_time,omitempty" json:"min_dwell_time,omitempty"`

	// MaxDwellTime is the maximum simulated time spent on a page.
	// Default: 30s
	MaxDwellTime time.Duration `yaml:"max_dwell_time,omitempty" json:"max_dwell_time,omitempty"`

	// InternalNavigationProbability is the chance, per page, that a
	// non-bounce session navigates to one more internal page (0.0-1.0).
	// Pointer so an explicit 0 is distinguishable from an absent key.
	// Default: 0.3
	InternalNavigationProbability *float64 `yaml:"internal_navigation_probability,omitempty" json:"internal_navigation_probability,omitempty"`

	// BounceRateTarget is the percentage of sessions that view exactly one
	// page (0-100). Pointer so an explicit 0 is distinguishable from an
	// absent key.
	// Default: 40
	BounceRateTarget *float64 `yaml:"bounce_rate_target,omitempty" json:"bounce_rate_target,omitempty"`

	// MobilePercentage is the percentage of sessions assigned a mobile
	// device (0-100). Pointer so an explicit 0 is distinguishable from an
	// absent key.
	// Default: 40
	MobilePercentage *float64 `yaml:"mobile_percentage,omitempty" json:"mobile_percentage,omitempty"`

	// KeywordFile is an optional plain-text file, one keyword per line,
	// overriding the search sources' built-in query pools.
	KeywordFile string `yaml:"keyword_file,omitempty" json:"keyword_file,omitempty"`

	// InternalPaths lists known internal paths of the target site used for
	// multi-page navigation. When empty, synthetic paths are generated.
	InternalPaths []string `yaml:"internal_paths,omitempty" json:"internal_paths,omitempty"`

	// GeoTargeting configures country tagging.
	GeoTargeting GeoConfig `yaml:"geo_targeting,omitempty" json:"geo_targeting,omitempty"`

	// TimeBasedPatterns scales dwell times by time of day.
	TimeBasedPatterns bool `yaml:"time_based_patterns,omitempty" json:"time_based_patterns,omitempty"`
}

// GeoConfig configures geo targeting.
type GeoConfig struct {
	// Enabled turns country tagging on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Countries are the country codes sessions are tagged with.
	Countries []string `yaml:"countries,omitempty" json:"countries,omitempty"`
}

// SourcesConfig maps source names to their configuration, by category.
type SourcesConfig struct {
	// SearchEngines are sources that arrive via a search results page.
	SearchEngines map[string]SourceConfig `yaml:"search_engines,omitempty" json:"search_engines,omitempty"`

	// SocialMedia are sources that arrive via a social platform.
	SocialMedia map[string]SourceConfig `yaml:"social_media,omitempty" json:"social_media,omitempty"`

	// Direct is traffic with no referrer.
	Direct DirectConfig `yaml:"direct,omitempty" json:"direct,omitempty"`
}

// SourceConfig configures a single referring traffic source.
type SourceConfig struct {
	// Weight determines how often this source is selected relative to
	// others in its category. Zero excludes the source.
	Weight int `yaml:"weight" json:"weight"`

	// Domains are the hostnames this source is known by.
	Domains []string `yaml:"domains,omitempty" json:"domains,omitempty"`

	// ReferrerTemplates are referrer URL patterns. Search engine templates
	// contain a {query} placeholder.
	ReferrerTemplates []string `yaml:"referrer_templates,omitempty" json:"referrer_templates,omitempty"`

	// Queries is the source's built-in keyword pool (search engines only).
	Queries []string `yaml:"queries,omitempty" json:"queries,omitempty"`
}

// DirectConfig configures the direct traffic share.
type DirectConfig struct {
	// Weight determines how often direct traffic is selected.
	Weight int `yaml:"weight" json:"weight"`
}

// UserAgentsConfig holds the per-device user agent pools.
type UserAgentsConfig struct {
	Desktop UserAgentPool `yaml:"desktop,omitempty" json:"desktop,omitempty"`
	Mobile  UserAgentPool `yaml:"mobile,omitempty" json:"mobile,omitempty"`
}

// UserAgentPool is a pool of user agent strings for one device type.
type UserAgentPool struct {
	Agents []string `yaml:"agents,omitempty" json:"agents,omitempty"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// File is an optional log file path with size-based rotation.
	// Empty means console only.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// PrometheusConfig configures the metrics endpoint.
type PrometheusConfig struct {
	// Enabled turns the metrics endpoint on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Path is the URL path for the metrics endpoint.
	// Default: /metrics
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Float returns a pointer to v, for setting optional float fields where an
// explicit zero is meaningful.
func Float(v float64) *float64 {
	return &v
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Validate checks every configuration invariant and reports all violations
// found, joined into one error, rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if len(c.TargetURLs) == 0 {
		fail("at least one target URL is required")
	}
	for i, raw := range c.TargetURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fail("target_urls[%d] is not a valid http(s) URL: %q", i, raw)
		}
	}

	if c.NumRequests < 0 {
		fail("num_requests must be non-negative")
	}
	if c.Workers < 0 {
		fail("workers must be non-negative")
	}
	if c.MaxQPS < 0 {
		fail("max_qps must be non-negative")
	}
	if c.Timeout < 0 {
		fail("timeout must be non-negative")
	}

	if c.RequestInterval.Min < 0 || c.RequestInterval.Max < 0 {
		fail("request_interval bounds must be non-negative")
	}
	if c.RequestInterval.Max > 0 && c.RequestInterval.Min > c.RequestInterval.Max {
		fail("request_interval.min must be <= request_interval.max")
	}

	if c.SEO.MinDwellTime < 0 || c.SEO.MaxDwellTime < 0 {
		fail("dwell time bounds must be non-negative")
	}
	if c.SEO.MaxDwellTime > 0 && c.SEO.MinDwellTime > c.SEO.MaxDwellTime {
		fail("seo_settings.min_dwell_time must be <= max_dwell_time")
	}
	if p := c.SEO.InternalNavigationProbability; p != nil && (*p < 0 || *p > 1) {
		fail("internal_navigation_probability must be in [0,1], got %v", *p)
	}
	if b := c.SEO.BounceRateTarget; b != nil && (*b < 0 || *b > 100) {
		fail("bounce_rate_target must be in [0,100], got %v", *b)
	}
	if m := c.SEO.MobilePercentage; m != nil && (*m < 0 || *m > 100) {
		fail("mobile_percentage must be in [0,100], got %v", *m)
	}
	if c.SEO.GeoTargeting.Enabled && len(c.SEO.GeoTargeting.Countries) == 0 {
		fail("geo_targeting is enabled but no countries are configured")
	}

	totalWeight := c.Sources.Direct.Weight
	if c.Sources.Direct.Weight < 0 {
		fail("sources.direct.weight must be non-negative")
	}
	for name, src := range c.Sources.SearchEngines {
		if src.Weight < 0 {
			fail("search engine %q has negative weight", name)
		}
		if src.Weight > 0 && len(src.ReferrerTemplates) == 0 {
			fail("search engine %q has no referrer templates", name)
		}
		totalWeight += src.Weight
	}
	for name, src := range c.Sources.SocialMedia {
		if src.Weight < 0 {
			fail("social source %q has negative weight", name)
		}
		if src.Weight > 0 && len(src.ReferrerTemplates) == 0 {
			fail("social source %q has no referrer templates", name)
		}
		totalWeight += src.Weight
	}
	if totalWeight <= 0 {
		fail("total source weight must be positive")
	}

	if c.Prometheus.Enabled {
		if c.Prometheus.Port < 0 || c.Prometheus.Port > 65535 {
			fail("prometheus.port must be in [0,65535]")
		}
	}

	return errors.Join(errs...)
}

// ApplyDefaults applies default values to unset fields.
func (c *Config) ApplyDefaults() {
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RequestInterval.Min == 0 && c.RequestInterval.Max == 0 {
		c.RequestInterval.Min = time.Second
		c.RequestInterval.Max = 5 * time.Second
	}
	if c.RequestInterval.Max == 0 {
		c.RequestInterval.Max = c.RequestInterval.Min
	}

	if c.SEO.MinDwellTime == 0 {
		c.SEO.MinDwellTime = 5 * time.Second
	}
	if c.SEO.MaxDwellTime == 0 {
		c.SEO.MaxDwellTime = 30 * time.Second
	}
	if c.SEO.InternalNavigationProbability == nil {
		c.SEO.InternalNavigationProbability = Float(0.3)
	}
	if c.SEO.BounceRateTarget == nil {
		c.SEO.BounceRateTarget = Float(40)
	}
	if c.SEO.MobilePercentage == nil {
		c.SEO.MobilePercentage = Float(40)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Prometheus.Port == 0 {
		c.Prometheus.Port = 9090
	}
	if c.Prometheus.Path == "" {
		c.Prometheus.Path = "/metrics"
	}
}

// WriteDefault writes the default configuration to the given path.
// It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in default configuration: a realistic mix of
// search engine, social, and direct traffic against a placeholder target.
func Default() *Config {
	cfg := &Config{
		TargetURLs:      []string{"https://example.com"},
		RequestInterval: IntervalConfig{Min: time.Second, Max: 5 * time.Second},
		SEO: SEOConfig{
			SimulateOrganicBehavior:       true,
			MinDwellTime:                  5 * time.Second,
			MaxDwellTime:                  30 * time.Second,
			InternalNavigationProbability: Float(0.3),
			BounceRateTarget:              Float(40),
			MobilePercentage:              Float(40),
		},
		Sources: SourcesConfig{
			SearchEngines: map[string]SourceConfig{
				"google": {
					Weight:            40,
					Domains:           []string{"www.google.com", "google.com"},
					ReferrerTemplates: []string{"https://www.google.com/search?q={query}"},
					Queries:           []string{"example website", "sample site"},
				},
				"bing": {
					Weight:            20,
					Domains:           []string{"www.bing.com", "bing.com"},
					ReferrerTemplates: []string{"https://www.bing.com/search?q={query}"},
					Queries:           []string{"example website", "sample site"},
				},
				"yandex": {
					Weight:            10,
					Domains:           []string{"yandex.com", "yandex.ru"},
					ReferrerTemplates: []string{"https://yandex.com/search/?text={query}"},
					Queries:           []string{"example website", "sample site"},
				},
			},
			SocialMedia: map[string]SourceConfig{
				"facebook": {
					Weight:            30,
					Domains:           []string{"www.facebook.com", "facebook.com", "m.facebook.com"},
					ReferrerTemplates: []string{"https://www.facebook.com/", "https://m.facebook.com/"},
				},
				"twitter": {
					Weight:            20,
					Domains:           []string{"twitter.com", "t.co"},
					ReferrerTemplates: []string{"https://twitter.com/", "https://t.co/"},
				},
				"instagram": {
					Weight:            15,
					Domains:           []string{"instagram.com", "www.instagram.com"},
					ReferrerTemplates: []string{"https://www.instagram.com/"},
				},
				"linkedin": {
					Weight:            15,
					Domains:           []string{"linkedin.com", "www.linkedin.com"},
					ReferrerTemplates: []string{"https://www.linkedin.com/feed/"},
				},
			},
			Direct: DirectConfig{Weight: 20},
		},
		UserAgents: UserAgentsConfig{
			Desktop: UserAgentPool{Agents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
			}},
			Mobile: UserAgentPool{Agents: []string{
				"Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
				"Mozilla/5.0 (Android 11; Mobile; rv:68.0) Gecko/68.0 Firefox/88.0",
				"Mozilla/5.0 (Linux; Android 11; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			}},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}
