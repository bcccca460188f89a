package models

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// URL is the target page to scrape. Must be an absolute URL. Required.
	URL string `json:"url" binding:"required,url"`

	// ExtractionSpec is a free-text description of what to pull from the
	// page ("product prices", "all links", a CSS selector, ...). Required.
	ExtractionSpec string `json:"extraction_spec" binding:"required"`

	// UserAgent overrides the randomized session user agent.
	UserAgent string `json:"user_agent,omitempty"`

	// Timeout is the maximum duration in seconds for the entire call,
	// covering every strategy in the fallback chain.
	// Default: 90. Max: 300.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=300"`

	// MaxAge, in seconds, allows a cached result no older than this to
	// be returned without scraping. 0 disables cache lookup.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 90
	}
}
