package session

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trafficgen/internal/catalog"
	"github.com/example/trafficgen/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		TargetURLs: []string{"https://example.com"},
		SEO: config.SEOConfig{
			SimulateOrganicBehavior:       true,
			MinDwellTime:                  time.Second,
			MaxDwellTime:                  5 * time.Second,
			InternalNavigationProbability: config.Float(0.5),
			BounceRateTarget:              config.Float(40),
			MobilePercentage:              config.Float(40),
		},
		Sources: config.SourcesConfig{
			SearchEngines: map[string]config.SourceConfig{
				"google": {
					Weight:            40,
					ReferrerTemplates: []string{"https://www.google.com/search?q={query}"},
					Queries:           []string{"coffee & tea", "sample site"},
				},
			},
			SocialMedia: map[string]config.SourceConfig{
				"facebook": {
					Weight:            30,
					ReferrerTemplates: []string{"https://www.facebook.com/"},
				},
			},
			Direct: config.DirectConfig{Weight: 30},
		},
		UserAgents: config.UserAgentsConfig{
			Desktop: config.UserAgentPool{Agents: []string{"desktop-agent"}},
			Mobile:  config.UserAgentPool{Agents: []string{"mobile-agent"}},
		},
	}
	return cfg
}

func newSynthesizer(t *testing.T, cfg *config.Config, seed uint64) *Synthesizer {
	t.Helper()
	cat, err := catalog.New(cfg.Sources)
	require.NoError(t, err)
	s, err := NewSynthesizer(cfg, cat, seed, nil)
	require.NoError(t, err)
	return s
}

func TestNextBasicShape(t *testing.T) {
	s := newSynthesizer(t, testConfig(), 42)

	for i := 0; i < 200; i++ {
		plan := s.Next()

		assert.NotEqual(t, "", plan.ID.String())
		require.NotEmpty(t, plan.Pages)
		assert.True(t, strings.HasPrefix(plan.Pages[0], "https://example.com"))
		assert.Len(t, plan.DwellTimes, len(plan.Pages))
		assert.LessOrEqual(t, len(plan.Pages), maxPagesPerSession)

		for _, d := range plan.DwellTimes {
			assert.GreaterOrEqual(t, d, time.Second)
			assert.LessOrEqual(t, d, 5*time.Second)
		}

		assert.Equal(t, plan.IsBounce, len(plan.Pages) == 1)

		switch plan.Device {
		case DeviceDesktop:
			assert.Equal(t, "desktop-agent", plan.UserAgent)
		case DeviceMobile:
			assert.Equal(t, "mobile-agent", plan.UserAgent)
		default:
			t.Fatalf("unexpected device %q", plan.Device)
		}
	}
}

func TestNextReferrers(t *testing.T) {
	s := newSynthesizer(t, testConfig(), 7)

	sawSearch, sawSocial, sawDirect := false, false, false
	for i := 0; i < 500; i++ {
		plan := s.Next()
		switch plan.Source.Category {
		case catalog.CategorySearchEngine:
			sawSearch = true
			require.True(t, strings.HasPrefix(plan.ReferrerURL, "https://www.google.com/search?q="))
			// Queries are escaped into the template.
			assert.NotContains(t, plan.ReferrerURL, " ")
			assert.NotContains(t, plan.ReferrerURL, "{query}")
			_, err := url.Parse(plan.ReferrerURL)
			assert.NoError(t, err)
		case catalog.CategorySocialMedia:
			sawSocial = true
			assert.Equal(t, "https://www.facebook.com/", plan.ReferrerURL)
		case catalog.CategoryDirect:
			sawDirect = true
			assert.Empty(t, plan.ReferrerURL)
		}
	}
	assert.True(t, sawSearch)
	assert.True(t, sawSocial)
	assert.True(t, sawDirect)
}

func TestNextKeywordOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Sources.SocialMedia = nil
	cfg.Sources.Direct = config.DirectConfig{}

	cat, err := catalog.New(cfg.Sources)
	require.NoError(t, err)
	s, err := NewSynthesizer(cfg, cat, 3, []string{"override keyword"})
	require.NoError(t, err)

	plan := s.Next()
	assert.Equal(t, "https://www.google.com/search?q=override+keyword", plan.ReferrerURL)
}

func TestNextBounceRate(t *testing.T) {
	cfg := testConfig()
	cfg.SEO.BounceRateTarget = config.Float(50)
	s := newSynthesizer(t, cfg, 42)

	bounces := 0
	const trials = 5000
	for i := 0; i < trials; i++ {
		if s.Next().IsBounce {
			bounces++
		}
	}
	assert.InDelta(t, 0.5, float64(bounces)/trials, 0.03)
}

func TestNextBounceExtremes(t *testing.T) {
	cfg := testConfig()
	cfg.SEO.BounceRateTarget = config.Float(100)
	s := newSynthesizer(t, cfg, 1)
	for i := 0; i < 100; i++ {
		plan := s.Next()
		assert.True(t, plan.IsBounce)
		assert.Len(t, plan.Pages, 1)
	}

	cfg2 := testConfig()
	cfg2.SEO.BounceRateTarget = config.Float(0)
	s2 := newSynthesizer(t, cfg2, 1)
	for i := 0; i < 100; i++ {
		assert.False(t, s2.Next().IsBounce)
	}
}

func TestNextMobilePercentage(t *testing.T) {
	cfg := testConfig()
	cfg.SEO.MobilePercentage = config.Float(70)
	s := newSynthesizer(t, cfg, 11)

	mobile := 0
	const trials = 5000
	for i := 0; i < trials; i++ {
		if s.Next().Device == DeviceMobile {
			mobile++
		}
	}
	assert.InDelta(t, 0.7, float64(mobile)/trials, 0.03)
}

func TestNextInternalPaths(t *testing.T) {
	cfg := testConfig()
	cfg.SEO.BounceRateTarget = config.Float(0)
	cfg.SEO.InternalNavigationProbability = config.Float(1.0)
	cfg.SEO.InternalPaths = []string{"/about", "/products"}
	s := newSynthesizer(t, cfg, 5)

	plan := s.Next()
	// Probability one walks straight to the cap.
	require.Len(t, plan.Pages, maxPagesPerSession)
	for _, page := range plan.Pages[1:] {
		assert.Contains(t, []string{
			"https://example.com/about",
			"https://example.com/products",
		}, page)
	}
}

func TestNextWithoutOrganicBehavior(t *testing.T) {
	cfg := testConfig()
	cfg.SEO.SimulateOrganicBehavior = false
	cfg.SEO.BounceRateTarget = config.Float(0)
	cfg.SEO.InternalNavigationProbability = config.Float(1.0)
	s := newSynthesizer(t, cfg, 9)

	for i := 0; i < 50; i++ {
		assert.Len(t, s.Next().Pages, 1)
	}
}

func TestNextGeoTargeting(t *testing.T) {
	cfg := testConfig()
	cfg.SEO.GeoTargeting = config.GeoConfig{Enabled: true, Countries: []string{"US", "DE"}}
	s := newSynthesizer(t, cfg, 4)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		c := s.Next().Country
		assert.Contains(t, []string{"US", "DE"}, c)
		seen[c] = true
	}
	assert.Len(t, seen, 2)
}

func TestNextDeterministic(t *testing.T) {
	run := func(seed uint64) []string {
		s := newSynthesizer(t, testConfig(), seed)
		out := make([]string, 0, 100)
		for i := 0; i < 100; i++ {
			plan := s.Next()
			out = append(out, plan.Source.Name, string(plan.Device), plan.ReferrerURL)
			out = append(out, plan.Pages...)
			for _, d := range plan.DwellTimes {
				out = append(out, d.String())
			}
		}
		return out
	}

	assert.Equal(t, run(77), run(77))
	assert.NotEqual(t, run(77), run(78))
}

func TestHourMultiplierBounds(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		m := hourMultiplier(hour)
		assert.GreaterOrEqual(t, m, 0.5)
		assert.LessOrEqual(t, m, 1.5)
	}
}
