package models

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Success indicates whether the scrape completed without errors.
	Success bool `json:"success"`

	// Payload is the structured extraction result. Present only on success.
	Payload map[string]any `json:"payload,omitempty"`

	// Suggestions are heuristic hints for the caller, populated only
	// when the scrape fails terminally.
	Suggestions []string `json:"suggestions,omitempty"`

	// Metadata describes how the result was obtained.
	Metadata *ResultMetadata `json:"metadata,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ResultMetadata carries per-call diagnostics attached to every
// terminal result, successful or not.
type ResultMetadata struct {
	// RequestID is the unique identifier assigned to this scrape call.
	RequestID string `json:"request_id"`

	// ProcessingTimeMs is the end-to-end duration in milliseconds.
	ProcessingTimeMs int64 `json:"processing_time_ms"`

	// ElementsFound counts DOM elements in the extracted payload.
	ElementsFound int `json:"elements_found"`

	// ExtractionMethod labels which extractor branch fired.
	ExtractionMethod string `json:"extraction_method,omitempty"`

	// Attempts is the total attempt count across all strategies tried.
	Attempts int `json:"attempts"`

	// StrategyUsed names the strategy that produced the terminal result.
	StrategyUsed string `json:"strategy_used,omitempty"`

	// ProxyUsed is the host:port of the egress proxy, if one was used.
	ProxyUsed string `json:"proxy_used,omitempty"`

	// UserAgent is the browser user agent used for the session.
	UserAgent string `json:"user_agent,omitempty"`

	// SiteAnalysis summarises the domain classification for this call.
	SiteAnalysis *SiteAnalysisSummary `json:"site_analysis,omitempty"`
}

// SiteAnalysisSummary is the API-facing slice of a site analysis.
type SiteAnalysisSummary struct {
	Category   string `json:"category"`
	Complexity string `json:"complexity"`
	Strategy   string `json:"strategy"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status         string `json:"status"` // "healthy" or "degraded"
	Uptime         string `json:"uptime"`
	ActiveSessions int    `json:"active_sessions"`
	Version        string `json:"version"`
}
