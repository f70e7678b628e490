// Package catalog models the traffic sources a session can originate from
// and picks among them by configured weight. Selection happens in two
// levels: first a category (search engine, social media, or direct), then a
// concrete source within that category.
package catalog

import (
	"errors"
	"math/rand/v2"
	"sort"

	"github.com/example/trafficgen/internal/config"
	"github.com/example/trafficgen/internal/selector"
)

// Errors returned by the catalog package.
var (
	// ErrEmptyCatalog is returned when no source has a positive weight.
	ErrEmptyCatalog = errors.New("catalog: no traffic sources with positive weight")
)

// Category classifies a traffic source.
type Category string

const (
	CategorySearchEngine Category = "search_engine"
	CategorySocialMedia  Category = "social_media"
	CategoryDirect       Category = "direct"
)

// Source is one configured traffic origin.
type Source struct {
	// Name identifies the source, e.g. "google" or "facebook".
	Name string

	// Category is the source's traffic category.
	Category Category

	// Weight is the source's selection weight within its category.
	Weight int

	// Domains are the hostnames the source is known by.
	Domains []string

	// ReferrerTemplates are referrer URL patterns. Search engine templates
	// contain a {query} placeholder.
	ReferrerTemplates []string

	// Queries is the source's keyword pool (search engines only).
	Queries []string
}

// Direct is the built-in source for traffic with no referrer.
var Direct = Source{Name: "direct", Category: CategoryDirect}

// Catalog holds the configured sources and answers weighted picks.
// A category's selection weight is the sum of its member source weights,
// so source weights stay meaningful across categories.
type Catalog struct {
	categories *selector.Selector[Category]
	byCategory map[Category]*selector.Selector[Source]
	sources    []Source
}

// New builds a Catalog from the source configuration. Sources with zero
// weight are excluded; ErrEmptyCatalog is returned when nothing remains.
func New(cfg config.SourcesConfig) (*Catalog, error) {
	c := &Catalog{byCategory: make(map[Category]*selector.Selector[Source])}

	var categoryOptions []selector.Option[Category]

	addCategory := func(cat Category, raw map[string]config.SourceConfig) error {
		sources := buildSources(cat, raw)
		if len(sources) == 0 {
			return nil
		}
		options := make([]selector.Option[Source], 0, len(sources))
		total := 0
		for _, s := range sources {
			options = append(options, selector.Option[Source]{Value: s, Weight: s.Weight})
			total += s.Weight
		}
		sel, err := selector.New(options)
		if err != nil {
			return err
		}
		c.byCategory[cat] = sel
		c.sources = append(c.sources, sources...)
		categoryOptions = append(categoryOptions, selector.Option[Category]{Value: cat, Weight: total})
		return nil
	}

	if err := addCategory(CategorySearchEngine, cfg.SearchEngines); err != nil {
		return nil, err
	}
	if err := addCategory(CategorySocialMedia, cfg.SocialMedia); err != nil {
		return nil, err
	}

	if cfg.Direct.Weight > 0 {
		direct := Direct
		direct.Weight = cfg.Direct.Weight
		sel, err := selector.New([]selector.Option[Source]{{Value: direct, Weight: direct.Weight}})
		if err != nil {
			return nil, err
		}
		c.byCategory[CategoryDirect] = sel
		c.sources = append(c.sources, direct)
		categoryOptions = append(categoryOptions, selector.Option[Category]{Value: CategoryDirect, Weight: direct.Weight})
	}

	if len(categoryOptions) == 0 {
		return nil, ErrEmptyCatalog
	}

	categories, err := selector.New(categoryOptions)
	if err != nil {
		return nil, ErrEmptyCatalog
	}
	c.categories = categories
	return c, nil
}

// buildSources converts a config map into Sources sorted by name, so the
// selection order is stable regardless of map iteration order.
func buildSources(cat Category, raw map[string]config.SourceConfig) []Source {
	names := make([]string, 0, len(raw))
	for name, sc := range raw {
		if sc.Weight > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	sources := make([]Source, 0, len(names))
	for _, name := range names {
		sc := raw[name]
		sources = append(sources, Source{
			Name:              name,
			Category:          cat,
			Weight:            sc.Weight,
			Domains:           sc.Domains,
			ReferrerTemplates: sc.ReferrerTemplates,
			Queries:           sc.Queries,
		})
	}
	return sources
}

// PickCategory selects a category weighted by the total weight of its
// member sources.
func (c *Catalog) PickCategory(rng *rand.Rand) Category {
	return c.categories.Pick(rng)
}

// PickSource selects a source within the given category. When the category
// has no sources, direct traffic is returned as a fallback.
func (c *Catalog) PickSource(cat Category, rng *rand.Rand) Source {
	sel, ok := c.byCategory[cat]
	if !ok {
		return Direct
	}
	return sel.Pick(rng)
}

// Pick selects a category, then a source within it.
func (c *Catalog) Pick(rng *rand.Rand) Source {
	return c.PickSource(c.PickCategory(rng), rng)
}

// Sources returns every source with positive weight, ordered by category
// then name.
func (c *Catalog) Sources() []Source {
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// TotalWeight returns the sum of all source weights.
func (c *Catalog) TotalWeight() int {
	return c.categories.TotalWeight()
}
