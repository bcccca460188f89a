package browser

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/harvester/strategy"
)

// trackerDomains is a set of well-known analytics and ad-tech hosts.
// Requests to them are dropped whenever any resource blocking is
// active: they add latency and their absence is not visible to the
// page content we extract.
var trackerDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"connect.facebook.net":  {},
	"adnxs.com":             {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"scorecardresearch.com": {},
	"hotjar.com":            {},
	"mixpanel.com":          {},
	"segment.io":            {},
	"chartbeat.com":         {},
}

// isTrackerDomain checks the hostname and its parent domains against
// the blocklist.
func isTrackerDomain(host string) bool {
	host = strings.ToLower(host)
	if _, ok := trackerDomains[host]; ok {
		return true
	}
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if _, ok := trackerDomains[host]; ok {
			return true
		}
	}
	return false
}

// blockedResourceTypes maps the strategy's blocking flags to Rod
// protocol resource types.
func blockedResourceTypes(b strategy.ResourceBlocking) map[proto.NetworkResourceType]struct{} {
	blocked := make(map[proto.NetworkResourceType]struct{}, 4)
	if b.Images {
		blocked[proto.NetworkResourceTypeImage] = struct{}{}
	}
	if b.CSS {
		blocked[proto.NetworkResourceTypeStylesheet] = struct{}{}
	}
	if b.Fonts {
		blocked[proto.NetworkResourceTypeFont] = struct{}{}
	}
	if b.Media {
		blocked[proto.NetworkResourceTypeMedia] = struct{}{}
	}
	return blocked
}

// setupHijack installs a request interceptor on the page that drops
// the strategy's blocked resource types and known tracker hosts.
//
// Returns the running HijackRouter so the caller can defer Stop().
// Returns nil when the strategy blocks nothing.
func setupHijack(page *rod.Page, blocking strategy.ResourceBlocking) *rod.HijackRouter {
	blocked := blockedResourceTypes(blocking)
	if len(blocked) == 0 {
		return nil
	}

	router := page.HijackRequests()

	// Pattern "*" + empty resourceType = intercept ALL requests, then
	// decide per-request whether to block or continue.
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		if u, err := url.Parse(ctx.Request.URL().String()); err == nil {
			if isTrackerDomain(u.Hostname()) {
				ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
		}

		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It will exit when router.Stop() is called.
	go router.Run()

	return router
}
