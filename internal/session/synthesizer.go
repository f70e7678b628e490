// Package session synthesizes visitor session plans: which source the
// visitor arrives from, what device they use, which pages they view, and
// how long they linger on each.
package session

import (
	"fmt"
	"math"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/example/trafficgen/internal/catalog"
	"github.com/example/trafficgen/internal/config"
	"github.com/example/trafficgen/internal/selector"
)

// maxPagesPerSession caps multi-page navigation so high navigation
// probabilities cannot produce unbounded sessions.
const maxPagesPerSession = 10

// defaultQueries backs search referrers when a source has no keyword pool
// and no keyword file is configured.
var defaultQueries = []string{
	"best products online",
	"reviews and comparisons",
	"how to choose",
}

// Synthesizer produces session plans from the configured behavior settings.
// It owns its random stream, so two synthesizers built with the same seed
// and configuration emit identical plan sequences.
type Synthesizer struct {
	cfg     *config.Config
	catalog *catalog.Catalog

	rng   *rand.Rand
	faker *gofakeit.Faker

	targets  *selector.Selector[string]
	devices  *selector.Selector[Device]
	keywords []string

	// now is swappable in tests to pin time-of-day behavior.
	now func() time.Time
}

// NewSynthesizer builds a Synthesizer. The keyword slice overrides every
// source's built-in query pool when non-empty.
func NewSynthesizer(cfg *config.Config, cat *catalog.Catalog, seed uint64, keywordOverride []string) (*Synthesizer, error) {
	targets := make([]selector.Option[string], 0, len(cfg.TargetURLs))
	for _, u := range cfg.TargetURLs {
		targets = append(targets, selector.Option[string]{Value: u, Weight: 1})
	}
	targetSel, err := selector.New(targets)
	if err != nil {
		return nil, fmt.Errorf("building target selector: %w", err)
	}

	// Per-mille weights keep fractional percentages exact enough.
	mobileWeight := int(math.Round(floatOrZero(cfg.SEO.MobilePercentage) * 10))
	deviceSel, err := selector.New([]selector.Option[Device]{
		{Value: DeviceMobile, Weight: mobileWeight},
		{Value: DeviceDesktop, Weight: 1000 - mobileWeight},
	})
	if err != nil {
		return nil, fmt.Errorf("building device selector: %w", err)
	}

	return &Synthesizer{
		cfg:      cfg,
		catalog:  cat,
		rng:      rand.New(rand.NewPCG(seed, seed)),
		faker:    gofakeit.New(seed),
		targets:  targetSel,
		devices:  deviceSel,
		keywords: keywordOverride,
		now:      time.Now,
	}, nil
}

// Next synthesizes one session plan.
func (s *Synthesizer) Next() *Plan {
	source := s.catalog.Pick(s.rng)
	device := s.devices.Pick(s.rng)
	target := s.targets.Pick(s.rng)

	plan := &Plan{
		ID:          uuid.New(),
		Source:      source,
		Device:      device,
		UserAgent:   s.userAgent(device),
		ReferrerURL: s.referrer(source),
		Country:     s.country(),
		CreatedAt:   s.now(),
	}

	bounce := s.rng.Float64()*100 < floatOrZero(s.cfg.SEO.BounceRateTarget)
	plan.Pages = s.pages(target, bounce)
	// A bounce is defined by the final sequence, so the flag always
	// agrees with the page count.
	plan.IsBounce = len(plan.Pages) == 1
	plan.DwellTimes = make([]time.Duration, len(plan.Pages))
	for i := range plan.DwellTimes {
		plan.DwellTimes[i] = s.dwell()
	}
	return plan
}

// userAgent picks from the configured pool for the device, falling back to
// a generated agent when the pool is empty.
func (s *Synthesizer) userAgent(device Device) string {
	var pool []string
	switch device {
	case DeviceMobile:
		pool = s.cfg.UserAgents.Mobile.Agents
	default:
		pool = s.cfg.UserAgents.Desktop.Agents
	}
	if len(pool) == 0 {
		return s.faker.UserAgent()
	}
	return pool[s.rng.IntN(len(pool))]
}

// referrer builds the Referer header for the session's first request.
// Search engine referrers get a query substituted into the template; social
// templates are used as-is; direct traffic carries no referrer.
func (s *Synthesizer) referrer(source catalog.Source) string {
	if source.Category == catalog.CategoryDirect || len(source.ReferrerTemplates) == 0 {
		return ""
	}
	template := source.ReferrerTemplates[s.rng.IntN(len(source.ReferrerTemplates))]
	if !strings.Contains(template, "{query}") {
		return template
	}

	pool := s.keywords
	if len(pool) == 0 {
		pool = source.Queries
	}
	if len(pool) == 0 {
		pool = defaultQueries
	}
	query := pool[s.rng.IntN(len(pool))]
	return strings.ReplaceAll(template, "{query}", url.QueryEscape(query))
}

// pages builds the visit sequence. A bounce, or a run without organic
// behavior, is always a single page. A non-bounce session gets at least a
// second page so the bounce rate tracks its target, then each further page
// has an independent chance of one more, up to the cap.
func (s *Synthesizer) pages(target string, bounce bool) []string {
	pages := []string{target}
	if bounce || !s.cfg.SEO.SimulateOrganicBehavior {
		return pages
	}

	pages = append(pages, s.internalPage(target))
	for len(pages) < maxPagesPerSession && s.rng.Float64() < floatOrZero(s.cfg.SEO.InternalNavigationProbability) {
		pages = append(pages, s.internalPage(target))
	}
	return pages
}

// internalPage resolves an internal path against the target's origin,
// inventing a path when none are configured.
func (s *Synthesizer) internalPage(target string) string {
	path := ""
	if paths := s.cfg.SEO.InternalPaths; len(paths) > 0 {
		path = paths[s.rng.IntN(len(paths))]
	} else {
		path = "/" + strings.ToLower(s.faker.Word())
	}

	base, err := url.Parse(target)
	if err != nil {
		return target
	}
	ref, err := url.Parse(path)
	if err != nil {
		return target
	}
	return base.ResolveReference(ref).String()
}

// dwell draws a per-page reading pause, uniform over the configured bounds
// and optionally scaled by time of day.
func (s *Synthesizer) dwell() time.Duration {
	min, max := s.cfg.SEO.MinDwellTime, s.cfg.SEO.MaxDwellTime
	d := min
	if max > min {
		d = min + time.Duration(s.rng.Int64N(int64(max-min)))
	}

	if s.cfg.SEO.TimeBasedPatterns {
		d = time.Duration(float64(d) * hourMultiplier(s.now().Hour()))
	}
	return d
}

// hourMultiplier scales dwell times by time of day: slow overnight reading,
// quick scanning during work hours, long evening sessions. Always within
// [0.5, 1.5] so dwell times stay bounded.
func hourMultiplier(hour int) float64 {
	switch {
	case hour < 6:
		return 0.5
	case hour < 9:
		return 0.8
	case hour < 18:
		return 1.0
	case hour < 23:
		return 1.5
	default:
		return 0.7
	}
}

// floatOrZero treats an absent optional value as zero.
func floatOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// country picks a geo tag when targeting is enabled.
func (s *Synthesizer) country() string {
	geo := s.cfg.SEO.GeoTargeting
	if !geo.Enabled || len(geo.Countries) == 0 {
		return ""
	}
	return geo.Countries[s.rng.IntN(len(geo.Countries))]
}
