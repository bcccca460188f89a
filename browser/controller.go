package browser

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/harvester/config"
	"github.com/use-agent/harvester/models"
	"github.com/use-agent/harvester/proxy"
	"github.com/use-agent/harvester/strategy"
	"github.com/ysmood/gson"
)

// Controller launches and tears down browser sessions. Each scrape
// call drives exactly one session at a time, so every Launch starts a
// dedicated browser process configured for the requested strategy.
type Controller struct {
	cfg config.BrowserConfig
}

// NewController creates a Controller.
func NewController(cfg config.BrowserConfig) *Controller {
	return &Controller{cfg: cfg}
}

// Launch starts a browser configured per the strategy: viewport,
// resource blocking, a randomized but session-stable user agent, and
// anti-detection overrides matching the requested stealth level. The
// optional proxy becomes the session's egress.
func (c *Controller) Launch(ctx context.Context, cfg strategy.Config, px *proxy.Config, userAgent string) (Session, error) {
	l := launcher.New().
		Headless(c.cfg.Headless).
		NoSandbox(c.cfg.NoSandbox)

	if c.cfg.BrowserBin != "" {
		l = l.Bin(c.cfg.BrowserBin)
	}
	if px != nil {
		l = l.Proxy(px.Key())
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	if px != nil && px.Username != "" {
		go func() { _ = b.HandleAuth(px.Username, px.Password)() }()
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create page", err)
	}

	s := &rodSession{
		launcher: l,
		browser:  b,
		page:     page,
		ua:       userAgent,
		width:    cfg.Viewport.Width,
		height:   cfg.Viewport.Height,
	}
	if s.ua == "" {
		s.ua = randomUserAgent()
	}

	if err := s.configure(ctx, cfg); err != nil {
		_ = s.Close()
		return nil, err
	}

	slog.Debug("session launched",
		"strategy", cfg.Name,
		"stealth", cfg.StealthEnabled,
		"proxy", px != nil,
	)
	return s, nil
}

// rodSession is the rod-backed Session.
type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	ua       string
	width    int
	height   int
	closed   sync.Once
}

// configure applies viewport, user agent, stealth JS, default headers
// and the resource-blocking hijack. Stealth and hijack must be
// installed before the first navigation to take effect.
func (s *rodSession) configure(ctx context.Context, cfg strategy.Config) error {
	p := s.page.Context(ctx)

	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.width,
		Height:            s.height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to set viewport", err)
	}

	if err := (proto.NetworkSetUserAgentOverride{UserAgent: s.ua}).Call(p); err != nil {
		return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to set user agent", err)
	}

	if cfg.StealthEnabled {
		if _, err := p.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	s.router = setupHijack(s.page, cfg.Blocking)
	return nil
}

func (s *rodSession) Navigate(ctx context.Context, rawURL string) error {
	p := s.page.Context(ctx)

	// Default Referer: arriving from a search result is the most common
	// organic path to a page.
	if u, err := url.Parse(rawURL); err == nil {
		headers := proto.NetworkHeaders{
			"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: headers}.Call(p)
	}

	if err := p.Navigate(rawURL); err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}
	return nil
}

func (s *rodSession) WaitStable(ctx context.Context) error {
	p := s.page.Context(ctx)
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	return nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", categorizeError(err, "failed to extract page HTML")
	}
	return html, nil
}

func (s *rodSession) Eval(ctx context.Context, js string) (gson.JSON, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return gson.New(nil), err
	}
	return res.Value, nil
}

func (s *rodSession) MoveMouse(ctx context.Context, x, y float64) error {
	return s.page.Context(ctx).Mouse.MoveTo(proto.Point{X: x, Y: y})
}

func (s *rodSession) Click(ctx context.Context, x, y float64) error {
	m := s.page.Context(ctx).Mouse
	if err := m.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		return err
	}
	return m.Click(proto.InputMouseButtonLeft, 1)
}

func (s *rodSession) InsertText(ctx context.Context, text string) error {
	return s.page.Context(ctx).InsertText(text)
}

func (s *rodSession) PressBackspace(ctx context.Context) error {
	return s.page.Context(ctx).Keyboard.Type(input.Backspace)
}

func (s *rodSession) Scroll(ctx context.Context, dx, dy float64) error {
	return s.page.Context(ctx).Mouse.Scroll(dx, dy, 1)
}

func (s *rodSession) ElementBox(ctx context.Context, selector string) (Box, bool) {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return Box{}, false
	}
	shape, err := el.Shape()
	if err != nil || len(shape.Quads) == 0 {
		return Box{}, false
	}
	box := shape.Box()
	return Box{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, true
}

func (s *rodSession) UserAgent() string { return s.ua }

func (s *rodSession) Viewport() (int, int) { return s.width, s.height }

// Close releases the page, browser and launcher process. All teardown
// steps run even if earlier ones error; repeated calls are no-ops.
func (s *rodSession) Close() error {
	s.closed.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		if s.page != nil {
			_ = s.page.Close()
		}
		if s.browser != nil {
			_ = s.browser.Close()
		}
		if s.launcher != nil {
			s.launcher.Kill()
		}
		slog.Debug("session closed")
	})
	return nil
}

// categorizeError wraps raw errors into typed ScrapeErrors so the
// retry coordinator can classify them.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
