package scrape

import "strings"

// Markers that a rendered page is an anti-bot interstitial rather than
// real content. Checked against the lowered page text after navigation.
var botWallMarkers = []string{
	"attention required! | cloudflare",
	"checking your browser before accessing",
	"verify you are human",
	"please enable javascript and cookies",
	"unusual traffic from your computer network",
	"access denied",
	"pardon our interruption",
	"are you a robot",
}

// A bare "429" shows up in prices and street addresses; only the
// anchored forms are trusted.
var rateLimitMarkers = []string{
	"too many requests",
	"rate limit exceeded",
	"error 429",
	"http 429",
}

// sniffBotWall reports whether the page looks like a detection
// interstitial. Only short pages are considered: real content that
// happens to mention these phrases is almost always longer than any
// challenge page.
func sniffBotWall(rawHTML string) bool {
	if len(rawHTML) > 20_000 {
		return false
	}
	lowered := strings.ToLower(rawHTML)
	for _, m := range botWallMarkers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

// sniffRateLimit reports whether a short page looks like a 429 wall.
func sniffRateLimit(rawHTML string) bool {
	if len(rawHTML) > 5_000 {
		return false
	}
	lowered := strings.ToLower(rawHTML)
	for _, m := range rateLimitMarkers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}
