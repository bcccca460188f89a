package analyzer

import "testing"

func TestAnalyze_HackerNews(t *testing.T) {
	a := Analyze("https://news.ycombinator.com")

	if a.Category != CategoryNews {
		t.Errorf("expected category news, got %s", a.Category)
	}
	if a.Complexity != ComplexitySimple {
		t.Errorf("expected complexity simple, got %s", a.Complexity)
	}
	if a.RecommendedStrategy != "fast" {
		t.Errorf("expected recommended strategy fast, got %s", a.RecommendedStrategy)
	}
}

func TestAnalyze_MalformedURL(t *testing.T) {
	a := Analyze("not a url")

	if a.Category != CategoryUnknown {
		t.Errorf("expected category unknown, got %s", a.Category)
	}
	if a.Complexity != ComplexityModerate {
		t.Errorf("expected complexity moderate, got %s", a.Complexity)
	}
	if len(a.KnownIssues) != 1 || a.KnownIssues[0] != "URL parsing failed" {
		t.Errorf("expected [URL parsing failed], got %v", a.KnownIssues)
	}
	if a.RecommendedStrategy != "balanced" {
		t.Errorf("expected recommended strategy balanced, got %s", a.RecommendedStrategy)
	}
}

func TestAnalyze_StripsWWW(t *testing.T) {
	a := Analyze("https://www.amazon.com/dp/B000")

	if a.Domain != "amazon.com" {
		t.Errorf("expected domain amazon.com, got %s", a.Domain)
	}
	if a.Category != CategoryEcommerce {
		t.Errorf("expected category ecommerce, got %s", a.Category)
	}
}

func TestAnalyze_SubdomainInheritsCategory(t *testing.T) {
	a := Analyze("https://smile.amazon.com/gp/cart")

	if a.Category != CategoryEcommerce {
		t.Errorf("expected category ecommerce for subdomain, got %s", a.Category)
	}
	if len(a.KnownIssues) == 0 {
		t.Error("expected subdomain to inherit known issues from amazon.com")
	}
}

func TestAnalyze_HeuristicFallback(t *testing.T) {
	a := Analyze("https://myshop.example")

	if a.Category != CategoryEcommerce {
		t.Errorf("expected heuristic 'shop' match to yield ecommerce, got %s", a.Category)
	}
}

func TestAnalyze_SocialIsComplexStealth(t *testing.T) {
	a := Analyze("https://twitter.com/somebody")

	if a.Complexity != ComplexityComplex {
		t.Errorf("expected complexity complex, got %s", a.Complexity)
	}
	if a.RecommendedStrategy != "stealth" {
		t.Errorf("expected recommended strategy stealth, got %s", a.RecommendedStrategy)
	}
}

func TestAnalyze_UnknownDefaultsBalanced(t *testing.T) {
	a := Analyze("https://example.org")

	if a.Category != CategoryUnknown {
		t.Errorf("expected category unknown, got %s", a.Category)
	}
	if a.RecommendedStrategy != "balanced" {
		t.Errorf("expected recommended strategy balanced, got %s", a.RecommendedStrategy)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	a1 := Analyze("https://medium.com/story")
	a2 := Analyze("https://medium.com/story")

	if a1.Category != a2.Category || a1.Complexity != a2.Complexity ||
		a1.RecommendedStrategy != a2.RecommendedStrategy {
		t.Errorf("analysis not deterministic: %+v vs %+v", a1, a2)
	}
}
