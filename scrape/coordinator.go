// Package scrape drives the attempt loop for one target: launch a
// session per the chosen strategy, navigate, interact, extract, and
// recover from classified failures until the strategy's attempt budget
// runs out. The fallback-chain driver (scraper.go) advances across
// strategies; the Coordinator owns everything inside one strategy.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/use-agent/harvester/browser"
	"github.com/use-agent/harvester/models"
	"github.com/use-agent/harvester/proxy"
	"github.com/use-agent/harvester/strategy"
)

// attemptState names the coordinator's position inside one attempt.
type attemptState string

const (
	stateIdle        attemptState = "idle"
	statePreparing   attemptState = "preparing"
	stateNavigating  attemptState = "navigating"
	stateInteracting attemptState = "interacting"
	stateExtracting  attemptState = "extracting"
)

// SessionLauncher launches a configured browser session. Satisfied by
// *browser.Controller.
type SessionLauncher interface {
	Launch(ctx context.Context, cfg strategy.Config, px *proxy.Config, userAgent string) (browser.Session, error)
}

// ProxyRotator is the egress-selection surface the coordinator needs.
// Satisfied by *proxy.Manager.
type ProxyRotator interface {
	GetWorkingProxy(ctx context.Context) *proxy.Config
	RotateProxy(ctx context.Context) *proxy.Config
	MarkFailed(cfg *proxy.Config)
}

// Extractor turns a live session plus spec into a payload. Satisfied by
// *extract.Dispatcher.
type Extractor interface {
	Extract(ctx context.Context, sess browser.Session, spec, sourceURL string) (map[string]any, error)
}

// CaptchaHandler runs detect/solve/inject against the current page.
// Satisfied by *captcha.Manager.
type CaptchaHandler interface {
	Handle(ctx context.Context, sess browser.Session, pageURL string) error
}

// Interactor performs human-shaped warm-up input. Satisfied by
// *behavior.Simulator.
type Interactor interface {
	RandomInteractions(ctx context.Context, sess browser.Session) error
}

// Attempt is the terminal outcome of one strategy's attempt sequence.
// Attempts is populated even when the run fails, so the chain driver
// can total attempts across strategies.
type Attempt struct {
	Payload   map[string]any
	Attempts  int
	ProxyUsed string
	UserAgent string
}

// Coordinator runs the retry state machine for a single strategy.
type Coordinator struct {
	launcher SessionLauncher
	proxies  ProxyRotator   // nil disables proxying
	captchas CaptchaHandler // nil disables captcha handling
	human    Interactor     // nil disables behavior simulation
	extract  Extractor
	log      *slog.Logger

	// sleep is time.Sleep with context awareness; injectable for tests.
	sleep func(ctx context.Context, d time.Duration)
}

func NewCoordinator(launcher SessionLauncher, proxies ProxyRotator, captchas CaptchaHandler, human Interactor, extract Extractor, log *slog.Logger) *Coordinator {
	return &Coordinator{
		launcher: launcher,
		proxies:  proxies,
		captchas: captchas,
		human:    human,
		extract:  extract,
		log:      log,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run executes up to cfg.MaxAttempts attempts against targetURL under
// the given strategy. Every failure is classified; transient classes
// trigger their recovery action and an exponentially backed-off retry.
// A mid-attempt timeout counts against the attempt budget like any
// other transient failure; only an expired caller deadline aborts the
// sequence immediately.
func (c *Coordinator) Run(ctx context.Context, targetURL, spec, userAgent string, cfg strategy.Config) (*Attempt, error) {
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("invalid target URL %q", targetURL), err)
	}

	var (
		sess    browser.Session
		px      *proxy.Config
		delay   = strategy.InitialBackoff
		lastErr error
	)
	defer func() {
		if sess != nil {
			_ = sess.Close()
		}
	}()

	attempts := 0
	for attempts < cfg.MaxAttempts {
		attempts++

		payload, err := c.attempt(ctx, &sess, &px, targetURL, spec, userAgent, cfg)
		if err == nil {
			result := &Attempt{
				Payload:   payload,
				Attempts:  attempts,
				UserAgent: sess.UserAgent(),
			}
			if px != nil {
				result.ProxyUsed = px.Key()
			}
			return result, nil
		}
		lastErr = err

		code := models.CodeOf(err)
		c.log.Warn("attempt failed",
			"strategy", cfg.Name,
			"attempt", attempts,
			"max_attempts", cfg.MaxAttempts,
			"code", code,
			"error", err,
		)

		// An expired caller deadline is not retryable under any policy;
		// non-transient classes fail the whole call.
		if ctx.Err() != nil {
			return &Attempt{Attempts: attempts}, models.NewScrapeError(models.ErrCodeTimeout,
				"call deadline exceeded", lastErr)
		}
		if !models.IsTransient(err) && code != models.ErrCodeTimeout && code != models.ErrCodeCaptcha {
			return &Attempt{Attempts: attempts}, err
		}
		if attempts >= cfg.MaxAttempts {
			break
		}

		delay = c.recover(ctx, code, &sess, &px, delay)
		c.sleep(ctx, delay)
		delay = nextBackoff(delay)
	}

	return &Attempt{Attempts: attempts}, lastErr
}

// nextBackoff advances the exponential delay, capped at MaxBackoff.
func nextBackoff(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * strategy.BackoffMultiplier)
	if next > strategy.MaxBackoff {
		return strategy.MaxBackoff
	}
	return next
}

// recover performs the classified recovery action before the next
// attempt and returns the (possibly inflated) backoff delay to sleep.
func (c *Coordinator) recover(ctx context.Context, code string, sess *browser.Session, px **proxy.Config, delay time.Duration) time.Duration {
	switch code {
	case models.ErrCodeProxy, models.ErrCodeBotDetected, models.ErrCodeCaptcha:
		// Burned egress: quarantine it, tear the session down, and come
		// back through a fresh exit.
		if c.proxies != nil {
			if *px != nil {
				c.proxies.MarkFailed(*px)
			}
			*px = c.proxies.RotateProxy(ctx)
		}
		c.closeSession(sess)
	case models.ErrCodeRateLimited:
		// Inflate the backoff instead of churning resources; the budget
		// recovers with time, not with a new session.
		delay = min(delay*2, strategy.MaxBackoff)
		c.closeSession(sess)
	case models.ErrCodeExtraction:
		// A fresh navigation may yield different DOM timing. No proxy or
		// session churn.
	default:
		// Navigation failures, timeouts, browser crashes: restart the
		// session, keep the proxy.
		c.closeSession(sess)
	}
	return delay
}

func (c *Coordinator) closeSession(sess *browser.Session) {
	if *sess != nil {
		_ = (*sess).Close()
		*sess = nil
	}
}

// attempt is one pass through the state machine:
// preparing → navigating → interacting → extracting.
func (c *Coordinator) attempt(ctx context.Context, sess *browser.Session, px **proxy.Config, targetURL, spec, userAgent string, cfg strategy.Config) (map[string]any, error) {
	state := statePreparing

	// ── Preparing: ensure a live session ─────────────────────────────
	if *sess == nil {
		if *px == nil && c.proxies != nil {
			*px = c.proxies.GetWorkingProxy(ctx)
		}
		s, err := c.launcher.Launch(ctx, cfg, *px, userAgent)
		if err != nil {
			return nil, err
		}
		*sess = s
	}
	s := *sess

	// ── Navigating ───────────────────────────────────────────────────
	state = stateNavigating
	navCtx, cancel := context.WithTimeout(ctx, cfg.NavigationTimeout)
	defer cancel()

	if err := s.Navigate(navCtx, targetURL); err != nil {
		return nil, c.classifyStepError(state, err)
	}
	if err := s.WaitStable(navCtx); err != nil {
		c.log.Debug("page never settled, proceeding anyway", "url", targetURL, "error", err)
	}

	if rawHTML, err := s.HTML(ctx); err == nil {
		switch {
		case sniffRateLimit(rawHTML):
			return nil, models.NewScrapeError(models.ErrCodeRateLimited,
				"target served a rate-limit wall", nil)
		case sniffBotWall(rawHTML):
			return nil, models.NewScrapeError(models.ErrCodeBotDetected,
				"target served an anti-bot interstitial", nil)
		}
	}

	// ── Interacting: warm-up, captcha, randomized input ──────────────
	state = stateInteracting
	if cfg.HumanBehavior && c.human != nil {
		if err := c.human.RandomInteractions(ctx, s); err != nil {
			c.log.Warn("behavior simulation failed, continuing", "url", targetURL, "error", err)
		}
	}
	if c.captchas != nil {
		if err := c.captchas.Handle(ctx, s, targetURL); err != nil {
			// Only solver-chain exhaustion fails the attempt. A flaky
			// detect or inject script is not worth abandoning a loaded
			// page over; the extractor may still succeed.
			if models.CodeOf(err) == models.ErrCodeCaptcha {
				return nil, err
			}
			c.log.Warn("captcha handling failed, continuing", "url", targetURL, "error", err)
		}
	}
	c.sleep(ctx, cfg.InteractionWait)

	// ── Extracting ───────────────────────────────────────────────────
	state = stateExtracting
	payload, err := c.extract.Extract(ctx, s, spec, targetURL)
	if err != nil {
		return nil, c.classifyStepError(state, err)
	}
	return payload, nil
}

// classifyStepError maps a raw step error onto the ScrapeError taxonomy
// if the step didn't already.
func (c *Coordinator) classifyStepError(state attemptState, err error) error {
	if code := models.CodeOf(err); code != models.ErrCodeInternal {
		return err
	}
	switch state {
	case stateNavigating:
		return models.NewScrapeError(models.ErrCodeNavigation, "navigation failed", err)
	case stateExtracting:
		return models.NewScrapeError(models.ErrCodeExtraction, "extraction failed", err)
	default:
		return err
	}
}
