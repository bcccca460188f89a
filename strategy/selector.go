package strategy

import (
	"github.com/use-agent/harvester/analyzer"
)

// Select picks the initial strategy and its ordered fallback chain for
// the analyzed site. A cached success for the domain overrides the
// static heuristic: learned behavior beats tables. The chain returned
// is the fixed permutation for the initial strategy with the domain's
// already-failed strategies filtered out, unless every entry has
// failed, in which case the full chain is returned so the caller can
// still try everything.
//
// Select is deterministic: identical (analysis, cache state) inputs
// always produce the same output.
func Select(a analyzer.SiteAnalysis, cache *DomainCache) (Name, []Name) {
	initial := heuristic(a)
	if cached, ok := cache.Success(a.Domain); ok {
		initial = cached
	}

	chain := ChainFor(initial)
	filtered := make([]Name, 0, len(chain))
	for _, name := range chain {
		if !cache.HasFailed(a.Domain, name) {
			filtered = append(filtered, name)
		}
	}
	if len(filtered) == 0 {
		// Everything has failed before; retry the whole chain rather
		// than giving up without an attempt.
		return initial, chain
	}
	return filtered[0], filtered
}

// heuristic maps the site analysis to a strategy by rule.
func heuristic(a analyzer.SiteAnalysis) Name {
	switch {
	case a.Complexity == analyzer.ComplexitySimple &&
		(a.Category == analyzer.CategoryNews ||
			a.Category == analyzer.CategoryBlog ||
			a.Category == analyzer.CategoryEducational):
		return Fast
	case a.Category == analyzer.CategorySPA ||
		a.Category == analyzer.CategorySocial ||
		a.Complexity == analyzer.ComplexityComplex:
		return Stealth
	default:
		return Balanced
	}
}
