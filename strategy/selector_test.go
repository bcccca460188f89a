package strategy

import (
	"reflect"
	"testing"

	"github.com/use-agent/harvester/analyzer"
)

func TestSelect_FastForSimpleNews(t *testing.T) {
	a := analyzer.Analyze("https://news.ycombinator.com")
	initial, chain := Select(a, NewDomainCache())

	if initial != Fast {
		t.Errorf("expected fast, got %s", initial)
	}
	want := []Name{Fast, Balanced, Stealth}
	if !reflect.DeepEqual(chain, want) {
		t.Errorf("expected chain %v, got %v", want, chain)
	}
}

func TestSelect_StealthForSocial(t *testing.T) {
	a := analyzer.Analyze("https://reddit.com/r/golang")
	initial, chain := Select(a, NewDomainCache())

	if initial != Stealth {
		t.Errorf("expected stealth, got %s", initial)
	}
	want := []Name{Stealth, Balanced, Fast}
	if !reflect.DeepEqual(chain, want) {
		t.Errorf("expected chain %v, got %v", want, chain)
	}
}

func TestSelect_BalancedDefault(t *testing.T) {
	a := analyzer.Analyze("https://example.org")
	initial, chain := Select(a, NewDomainCache())

	if initial != Balanced {
		t.Errorf("expected balanced, got %s", initial)
	}
	want := []Name{Balanced, Stealth, Fast}
	if !reflect.DeepEqual(chain, want) {
		t.Errorf("expected chain %v, got %v", want, chain)
	}
}

func TestSelect_CachedSuccessOverridesHeuristic(t *testing.T) {
	a := analyzer.Analyze("https://news.ycombinator.com")
	cache := NewDomainCache()
	cache.RecordSuccess(a.Domain, Stealth)

	initial, chain := Select(a, cache)
	if initial != Stealth {
		t.Errorf("expected cached stealth to override heuristic fast, got %s", initial)
	}
	if chain[0] != Stealth {
		t.Errorf("expected chain to start with stealth, got %v", chain)
	}
}

func TestSelect_SkipsFailedStrategies(t *testing.T) {
	a := analyzer.Analyze("https://example.org")
	cache := NewDomainCache()
	cache.RecordFailure(a.Domain, Balanced)

	initial, chain := Select(a, cache)
	if initial != Stealth {
		t.Errorf("expected stealth after balanced failure, got %s", initial)
	}
	for _, name := range chain {
		if name == Balanced {
			t.Errorf("failed strategy balanced should be skipped, chain: %v", chain)
		}
	}
}

func TestSelect_AllFailedFallsBackToFullChain(t *testing.T) {
	a := analyzer.Analyze("https://example.org")
	cache := NewDomainCache()
	cache.RecordFailure(a.Domain, Fast)
	cache.RecordFailure(a.Domain, Balanced)
	cache.RecordFailure(a.Domain, Stealth)

	_, chain := Select(a, cache)
	if len(chain) != 3 {
		t.Errorf("expected full chain when everything failed, got %v", chain)
	}
}

func TestSelect_Deterministic(t *testing.T) {
	a := analyzer.Analyze("https://medium.com/post")
	cache := NewDomainCache()
	cache.RecordFailure(a.Domain, Fast)

	i1, c1 := Select(a, cache)
	i2, c2 := Select(a, cache)

	if i1 != i2 || !reflect.DeepEqual(c1, c2) {
		t.Errorf("select not deterministic: (%s %v) vs (%s %v)", i1, c1, i2, c2)
	}
}

func TestChainFor_FixedPermutations(t *testing.T) {
	cases := map[Name][]Name{
		Fast:     {Fast, Balanced, Stealth},
		Balanced: {Balanced, Stealth, Fast},
		Stealth:  {Stealth, Balanced, Fast},
	}
	for initial, want := range cases {
		if got := ChainFor(initial); !reflect.DeepEqual(got, want) {
			t.Errorf("ChainFor(%s) = %v, want %v", initial, got, want)
		}
	}
}

func TestDomainCache_FailureClearsSuccess(t *testing.T) {
	cache := NewDomainCache()
	cache.RecordSuccess("example.org", Fast)
	cache.RecordFailure("example.org", Fast)

	if _, ok := cache.Success("example.org"); ok {
		t.Error("success entry should be cleared when the same strategy fails")
	}
	if !cache.HasFailed("example.org", Fast) {
		t.Error("failure should be recorded")
	}
}

func TestDomainCache_SuccessClearsFailure(t *testing.T) {
	cache := NewDomainCache()
	cache.RecordFailure("example.org", Stealth)
	cache.RecordSuccess("example.org", Stealth)

	if cache.HasFailed("example.org", Stealth) {
		t.Error("failure entry should be cleared when the same strategy succeeds")
	}
}
