// Package analyzer classifies target domains into a category and
// complexity profile used to pick an initial scraping strategy.
// Classification is pure string matching over curated tables; it has
// no side effects and is safe for concurrent use.
package analyzer

import (
	"net/url"
	"strings"
)

// Category is the site classification bucket.
type Category string

const (
	CategoryNews        Category = "news"
	CategoryBlog        Category = "blog"
	CategoryEcommerce   Category = "ecommerce"
	CategorySocial      Category = "social"
	CategorySPA         Category = "spa"
	CategoryEducational Category = "educational"
	CategoryGovernment  Category = "government"
	CategoryCorporate   Category = "corporate"
	CategoryUnknown     Category = "unknown"
)

// Complexity grades how hard a site is to scrape reliably.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// SiteAnalysis is the result of classifying a target URL. It is
// immutable once computed and not persisted beyond the request.
type SiteAnalysis struct {
	Domain              string
	Category            Category
	Complexity          Complexity
	KnownIssues         []string
	RecommendedStrategy string
}

// Analyze classifies the target URL. It never fails: a URL that does
// not parse as absolute yields a degraded moderate/unknown analysis so
// the caller always receives something actionable.
func Analyze(rawURL string) SiteAnalysis {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return SiteAnalysis{
			Domain:              rawURL,
			Category:            CategoryUnknown,
			Complexity:          ComplexityModerate,
			KnownIssues:         []string{"URL parsing failed"},
			RecommendedStrategy: "balanced",
		}
	}

	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	category := classify(host)
	complexity := complexityOf(category)

	return SiteAnalysis{
		Domain:              host,
		Category:            category,
		Complexity:          complexity,
		KnownIssues:         knownIssues(host),
		RecommendedStrategy: recommend(category, complexity),
	}
}

// classify matches host against the curated table first (longest and
// most specific suffix wins), then falls back to substring heuristics.
func classify(host string) Category {
	best := CategoryUnknown
	bestLen := 0
	for _, entry := range categoryTable {
		if hostMatches(host, entry.host) && len(entry.host) > bestLen {
			best = entry.category
			bestLen = len(entry.host)
		}
	}
	if best != CategoryUnknown {
		return best
	}

	for _, rule := range heuristicRules {
		if strings.Contains(host, rule.substr) {
			return rule.category
		}
	}
	return CategoryUnknown
}

// hostMatches reports whether host equals the table entry or is a
// subdomain of it ("smile.amazon.com" matches "amazon.com").
func hostMatches(host, entry string) bool {
	return host == entry || strings.HasSuffix(host, "."+entry)
}

// complexityOf is a pure function of category.
func complexityOf(c Category) Complexity {
	switch c {
	case CategorySocial, CategorySPA:
		return ComplexityComplex
	case CategoryNews, CategoryBlog, CategoryEducational:
		return ComplexitySimple
	default:
		return ComplexityModerate
	}
}

// recommend maps the (category, complexity) pair to an initial strategy
// name. The strategy selector applies the same rule, but exposing the
// recommendation here lets it surface in result metadata.
func recommend(c Category, cx Complexity) string {
	switch {
	case cx == ComplexitySimple && (c == CategoryNews || c == CategoryBlog || c == CategoryEducational):
		return "fast"
	case c == CategorySPA || c == CategorySocial || cx == ComplexityComplex:
		return "stealth"
	default:
		return "balanced"
	}
}

// knownIssues looks up documented hazards for host, including parent
// domains so "smile.amazon.com" inherits "amazon.com" issues.
func knownIssues(host string) []string {
	if issues, ok := knownIssueTable[host]; ok {
		return append([]string(nil), issues...)
	}
	for cand := host; ; {
		idx := strings.IndexByte(cand, '.')
		if idx < 0 {
			break
		}
		cand = cand[idx+1:]
		if issues, ok := knownIssueTable[cand]; ok {
			return append([]string(nil), issues...)
		}
	}
	return nil
}
