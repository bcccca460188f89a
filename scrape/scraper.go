package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/harvester/analyzer"
	"github.com/use-agent/harvester/models"
	"github.com/use-agent/harvester/strategy"
)

// Scraper is the fallback-chain driver: it selects an initial strategy
// from the site analysis, runs the Coordinator per strategy, advances
// down the chain on terminal failure, and records the outcome in the
// domain cache.
type Scraper struct {
	gate  *Gate
	coord *Coordinator
	cache *strategy.DomainCache
	log   *slog.Logger
}

func NewScraper(gate *Gate, coord *Coordinator, cache *strategy.DomainCache, log *slog.Logger) *Scraper {
	return &Scraper{gate: gate, coord: coord, cache: cache, log: log}
}

// Scrape runs one full call: analysis, strategy selection, the fallback
// chain, and response assembly. It never returns a nil response and
// never panics across the terminal boundary; every failure carries a
// message and suggestions.
func (s *Scraper) Scrape(ctx context.Context, req *models.ScrapeRequest) *models.ScrapeResponse {
	req.Defaults()
	start := time.Now()
	requestID := uuid.NewString()
	log := s.log.With("request_id", requestID, "url", req.URL)

	meta := &models.ResultMetadata{RequestID: requestID}
	fail := func(code, msg string, suggestions []string) *models.ScrapeResponse {
		meta.ProcessingTimeMs = time.Since(start).Milliseconds()
		return &models.ScrapeResponse{
			Success:     false,
			Suggestions: suggestions,
			Metadata:    meta,
			Error:       &models.ErrorDetail{Code: code, Message: msg},
		}
	}

	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return fail(models.ErrCodeInvalidInput,
			fmt.Sprintf("url must be absolute: %q", req.URL),
			[]string{"provide a fully qualified http(s) URL"})
	}

	if err := s.gate.Acquire(ctx); err != nil {
		return fail(models.ErrCodeTimeout,
			"call deadline exceeded while waiting for scrape budget", nil)
	}
	defer s.gate.Release()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second)
	defer cancel()

	analysis := analyzer.Analyze(req.URL)
	meta.SiteAnalysis = &models.SiteAnalysisSummary{
		Category:   string(analysis.Category),
		Complexity: string(analysis.Complexity),
	}

	initial, chain := strategy.Select(analysis, s.cache)
	meta.SiteAnalysis.Strategy = string(initial)
	log.Info("scrape starting",
		"category", analysis.Category,
		"complexity", analysis.Complexity,
		"strategy", initial,
		"chain", chain,
	)

	var lastErr error
	totalAttempts := 0
	for _, name := range chain {
		cfg := strategy.ConfigFor(name)
		att, err := s.coord.Run(ctx, req.URL, req.ExtractionSpec, req.UserAgent, cfg)
		if att != nil {
			totalAttempts += att.Attempts
		}
		if err == nil {
			s.cache.RecordSuccess(analysis.Domain, name)
			meta.Attempts = totalAttempts
			meta.StrategyUsed = string(name)
			meta.ProxyUsed = att.ProxyUsed
			meta.UserAgent = att.UserAgent
			meta.ProcessingTimeMs = time.Since(start).Milliseconds()
			if method, ok := att.Payload["extractionMethod"].(string); ok {
				meta.ExtractionMethod = method
			}
			if n, ok := att.Payload["elementsFound"].(int); ok {
				meta.ElementsFound = n
			}
			log.Info("scrape succeeded",
				"strategy", name,
				"attempts", totalAttempts,
				"elapsed_ms", meta.ProcessingTimeMs,
			)
			return &models.ScrapeResponse{
				Success:  true,
				Payload:  att.Payload,
				Metadata: meta,
			}
		}

		lastErr = err
		s.cache.RecordFailure(analysis.Domain, name)
		code := models.CodeOf(err)
		log.Warn("strategy exhausted", "strategy", name, "code", code, "error", err)

		if code == models.ErrCodeInvalidInput {
			break
		}
		if ctx.Err() != nil {
			lastErr = models.NewScrapeError(models.ErrCodeTimeout, "call deadline exceeded", lastErr)
			break
		}
	}

	meta.Attempts = totalAttempts
	code := models.CodeOf(lastErr)
	log.Error("scrape failed", "code", code, "attempts", totalAttempts, "error", lastErr)
	return fail(code, failureMessage(code), suggestionsFor(code, analysis))
}

func failureMessage(code string) string {
	switch code {
	case models.ErrCodeTimeout:
		return "the scrape timed out before any strategy completed"
	case models.ErrCodeNavigation:
		return "the target page could not be loaded"
	case models.ErrCodeExtraction:
		return "the page loaded but nothing matched the extraction specification"
	case models.ErrCodeProxy:
		return "no working egress proxy could be obtained"
	case models.ErrCodeBotDetected:
		return "the target site detected and blocked automated access"
	case models.ErrCodeCaptcha:
		return "a captcha challenge could not be solved"
	case models.ErrCodeInvalidInput:
		return "the request was rejected before scraping"
	default:
		return "the scrape failed"
	}
}

// suggestionsFor builds the heuristic hints attached to terminal
// failures, seeded with the analyzer's known issues for the domain.
func suggestionsFor(code string, analysis analyzer.SiteAnalysis) []string {
	var out []string
	switch code {
	case models.ErrCodeTimeout:
		out = append(out, "try a simpler page or increase the timeout")
	case models.ErrCodeNavigation:
		out = append(out, "check the URL; the site may block automation")
	case models.ErrCodeExtraction:
		out = append(out, "refine the extraction specification")
	case models.ErrCodeBotDetected, models.ErrCodeCaptcha:
		out = append(out, "retry later; the site is actively blocking automated sessions")
	case models.ErrCodeProxy:
		out = append(out, "check proxy provider credentials and quotas")
	default:
		out = append(out, "retry the request")
	}
	out = append(out, analysis.KnownIssues...)
	return out
}
