package analyzer

// categoryTable maps known hosts (with "www." stripped) to a category.
// Longest key wins on overlapping matches; declaration order is the
// deterministic tie-break for equal-length keys.
var categoryTable = []struct {
	host     string
	category Category
}{
	// News
	{"news.ycombinator.com", CategoryNews},
	{"nytimes.com", CategoryNews},
	{"theguardian.com", CategoryNews},
	{"bbc.com", CategoryNews},
	{"bbc.co.uk", CategoryNews},
	{"cnn.com", CategoryNews},
	{"reuters.com", CategoryNews},
	{"bloomberg.com", CategoryNews},
	{"washingtonpost.com", CategoryNews},

	// Blogs
	{"medium.com", CategoryBlog},
	{"dev.to", CategoryBlog},
	{"substack.com", CategoryBlog},
	{"wordpress.com", CategoryBlog},
	{"blogspot.com", CategoryBlog},
	{"tumblr.com", CategoryBlog},

	// E-commerce
	{"amazon.com", CategoryEcommerce},
	{"ebay.com", CategoryEcommerce},
	{"etsy.com", CategoryEcommerce},
	{"walmart.com", CategoryEcommerce},
	{"bestbuy.com", CategoryEcommerce},
	{"target.com", CategoryEcommerce},
	{"aliexpress.com", CategoryEcommerce},
	{"shopify.com", CategoryEcommerce},

	// Social
	{"twitter.com", CategorySocial},
	{"x.com", CategorySocial},
	{"facebook.com", CategorySocial},
	{"instagram.com", CategorySocial},
	{"linkedin.com", CategorySocial},
	{"reddit.com", CategorySocial},
	{"tiktok.com", CategorySocial},
	{"pinterest.com", CategorySocial},

	// SPA-heavy apps
	{"app.slack.com", CategorySPA},
	{"notion.so", CategorySPA},
	{"airtable.com", CategorySPA},
	{"figma.com", CategorySPA},
	{"trello.com", CategorySPA},

	// Educational
	{"wikipedia.org", CategoryEducational},
	{"coursera.org", CategoryEducational},
	{"edx.org", CategoryEducational},
	{"khanacademy.org", CategoryEducational},
	{"stackoverflow.com", CategoryEducational},
	{"github.com", CategoryEducational},
	{"arxiv.org", CategoryEducational},

	// Government
	{"irs.gov", CategoryGovernment},
	{"usa.gov", CategoryGovernment},
	{"gov.uk", CategoryGovernment},
	{"europa.eu", CategoryGovernment},

	// Corporate
	{"apple.com", CategoryCorporate},
	{"microsoft.com", CategoryCorporate},
	{"ibm.com", CategoryCorporate},
	{"oracle.com", CategoryCorporate},
}

// heuristicRules are substring fallbacks applied when no table entry
// matches, in declaration order.
var heuristicRules = []struct {
	substr   string
	category Category
}{
	{"news", CategoryNews},
	{"blog", CategoryBlog},
	{"shop", CategoryEcommerce},
	{"store", CategoryEcommerce},
	{"cart", CategoryEcommerce},
	{"social", CategorySocial},
	{"forum", CategorySocial},
	{"edu", CategoryEducational},
	{"university", CategoryEducational},
	{"gov", CategoryGovernment},
	{"corp", CategoryCorporate},
}

// knownIssueTable records domains with documented scraping hazards.
// The strings feed the failure suggestions returned to callers.
var knownIssueTable = map[string][]string{
	"amazon.com":    {"aggressive bot detection", "frequent captcha challenges", "region-dependent markup"},
	"linkedin.com":  {"login wall on most pages", "aggressive bot detection"},
	"facebook.com":  {"login wall on most pages", "heavy client-side rendering"},
	"instagram.com": {"login wall on most pages", "heavy client-side rendering"},
	"twitter.com":   {"content requires JavaScript", "rate limits unauthenticated access"},
	"x.com":         {"content requires JavaScript", "rate limits unauthenticated access"},
	"cloudflare.com": {"challenge pages on automated access"},
	"ticketmaster.com": {"advanced fingerprinting", "queue-it waiting rooms"},
	"reddit.com":    {"rate limits unauthenticated access"},
}
