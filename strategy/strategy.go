// Package strategy defines the named operating strategies and selects
// which one to use for a given site, informed by per-domain success and
// failure history.
package strategy

import "time"

// Name identifies an operating strategy.
type Name string

const (
	Fast     Name = "fast"
	Balanced Name = "balanced"
	Stealth  Name = "stealth"
)

// ResourceBlocking flags which resource types a session refuses to load.
type ResourceBlocking struct {
	Images bool
	CSS    bool
	Fonts  bool
	Media  bool
}

// Viewport is the emulated browser window size.
type Viewport struct {
	Width  int
	Height int
}

// Config is the read-only bundle of settings for one named strategy.
type Config struct {
	Name              Name
	Blocking          ResourceBlocking
	StealthEnabled    bool
	HumanBehavior     bool
	NavigationTimeout time.Duration
	Viewport          Viewport
	InteractionWait   time.Duration
	MaxAttempts       int
}

// Retry backoff constants shared by every strategy.
const (
	InitialBackoff    = 500 * time.Millisecond
	BackoffMultiplier = 1.5
	MaxBackoff        = 5 * time.Second
)

// configs holds the fixed per-strategy settings. These are constants;
// callers receive copies and must not rely on pointer identity.
var configs = map[Name]Config{
	Fast: {
		Name:              Fast,
		Blocking:          ResourceBlocking{Images: true, CSS: true, Fonts: true, Media: true},
		StealthEnabled:    false,
		HumanBehavior:     false,
		NavigationTimeout: 15 * time.Second,
		Viewport:          Viewport{Width: 1366, Height: 768},
		InteractionWait:   500 * time.Millisecond,
		MaxAttempts:       2,
	},
	Balanced: {
		Name:              Balanced,
		Blocking:          ResourceBlocking{Images: true, Media: true},
		StealthEnabled:    true,
		HumanBehavior:     false,
		NavigationTimeout: 30 * time.Second,
		Viewport:          Viewport{Width: 1440, Height: 900},
		InteractionWait:   1 * time.Second,
		MaxAttempts:       3,
	},
	Stealth: {
		Name:              Stealth,
		Blocking:          ResourceBlocking{},
		StealthEnabled:    true,
		HumanBehavior:     true,
		NavigationTimeout: 45 * time.Second,
		Viewport:          Viewport{Width: 1920, Height: 1080},
		InteractionWait:   2 * time.Second,
		MaxAttempts:       3,
	},
}

// ConfigFor returns the settings for the named strategy. Unknown names
// fall back to balanced.
func ConfigFor(name Name) Config {
	if cfg, ok := configs[name]; ok {
		return cfg
	}
	return configs[Balanced]
}

// fallbackChains is the fixed permutation per initial strategy. Stealth
// is always attempted before reverting to fast: a failed low-stealth
// attempt is more likely detection than load time.
var fallbackChains = map[Name][]Name{
	Fast:     {Fast, Balanced, Stealth},
	Balanced: {Balanced, Stealth, Fast},
	Stealth:  {Stealth, Balanced, Fast},
}

// ChainFor returns a copy of the fallback chain for the initial strategy.
func ChainFor(initial Name) []Name {
	chain, ok := fallbackChains[initial]
	if !ok {
		chain = fallbackChains[Balanced]
	}
	return append([]Name(nil), chain...)
}
