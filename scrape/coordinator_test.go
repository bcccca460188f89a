package scrape

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ysmood/gson"

	"github.com/use-agent/harvester/browser"
	"github.com/use-agent/harvester/models"
	"github.com/use-agent/harvester/proxy"
	"github.com/use-agent/harvester/strategy"
)

// fakeSession is a scriptable Session.
type fakeSession struct {
	navErr error
	html   string
	closed int
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error { return s.navErr }
func (s *fakeSession) WaitStable(ctx context.Context) error           { return nil }
func (s *fakeSession) HTML(ctx context.Context) (string, error)       { return s.html, nil }
func (s *fakeSession) Eval(ctx context.Context, js string) (gson.JSON, error) {
	return gson.New(nil), nil
}
func (s *fakeSession) MoveMouse(ctx context.Context, x, y float64) error { return nil }
func (s *fakeSession) Click(ctx context.Context, x, y float64) error     { return nil }
func (s *fakeSession) InsertText(ctx context.Context, text string) error { return nil }
func (s *fakeSession) PressBackspace(ctx context.Context) error          { return nil }
func (s *fakeSession) Scroll(ctx context.Context, dx, dy float64) error  { return nil }
func (s *fakeSession) ElementBox(ctx context.Context, selector string) (browser.Box, bool) {
	return browser.Box{}, false
}
func (s *fakeSession) UserAgent() string    { return "ua-test" }
func (s *fakeSession) Viewport() (int, int) { return 1280, 720 }
func (s *fakeSession) Close() error         { s.closed++; return nil }

// fakeLauncher hands out sessions from a queue and counts launches.
type fakeLauncher struct {
	sessions []*fakeSession
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context, cfg strategy.Config, px *proxy.Config, ua string) (browser.Session, error) {
	l.launches++
	if len(l.sessions) == 0 {
		return &fakeSession{html: "<html><body>ok</body></html>"}, nil
	}
	s := l.sessions[0]
	if len(l.sessions) > 1 {
		l.sessions = l.sessions[1:]
	}
	return s, nil
}

// fakeExtractor returns scripted results in order, repeating the last.
type fakeExtractor struct {
	results []extractResult
	calls   int
}

type extractResult struct {
	payload map[string]any
	err     error
}

func (e *fakeExtractor) Extract(ctx context.Context, sess browser.Session, spec, sourceURL string) (map[string]any, error) {
	i := e.calls
	if i >= len(e.results) {
		i = len(e.results) - 1
	}
	e.calls++
	r := e.results[i]
	return r.payload, r.err
}

// fakeCaptcha returns scripted Handle errors in order, repeating the last.
type fakeCaptcha struct {
	errs  []error
	calls int
}

func (f *fakeCaptcha) Handle(ctx context.Context, sess browser.Session, pageURL string) error {
	i := f.calls
	if i >= len(f.errs) {
		i = len(f.errs) - 1
	}
	f.calls++
	return f.errs[i]
}

type fakeProxies struct {
	marked  []string
	rotated int
}

func (p *fakeProxies) GetWorkingProxy(ctx context.Context) *proxy.Config {
	return &proxy.Config{Host: "10.0.0.1", Port: 8080}
}
func (p *fakeProxies) RotateProxy(ctx context.Context) *proxy.Config {
	p.rotated++
	return &proxy.Config{Host: "10.0.0.2", Port: 8080}
}
func (p *fakeProxies) MarkFailed(cfg *proxy.Config) { p.marked = append(p.marked, cfg.Key()) }

func testConfig(maxAttempts int) strategy.Config {
	cfg := strategy.ConfigFor(strategy.Fast)
	cfg.MaxAttempts = maxAttempts
	cfg.InteractionWait = 0
	return cfg
}

// newTestCoordinator records non-zero sleeps instead of sleeping.
func newTestCoordinator(launcher SessionLauncher, proxies ProxyRotator, ex Extractor) (*Coordinator, *[]time.Duration) {
	sleeps := &[]time.Duration{}
	c := NewCoordinator(launcher, proxies, nil, nil, ex, slog.New(slog.DiscardHandler))
	c.sleep = func(ctx context.Context, d time.Duration) {
		if d > 0 {
			*sleeps = append(*sleeps, d)
		}
	}
	return c, sleeps
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	launcher := &fakeLauncher{}
	ex := &fakeExtractor{results: []extractResult{
		{payload: map[string]any{"count": 1, "extractionMethod": "headings"}},
	}}
	c, _ := newTestCoordinator(launcher, nil, ex)

	att, err := c.Run(context.Background(), "https://example.com/", "headings", "", testConfig(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if att.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", att.Attempts)
	}
	if att.UserAgent != "ua-test" {
		t.Errorf("user agent = %q", att.UserAgent)
	}
}

func TestRunNeverExceedsMaxAttempts(t *testing.T) {
	launcher := &fakeLauncher{}
	ex := &fakeExtractor{results: []extractResult{
		{err: models.NewScrapeError(models.ErrCodeExtraction, "nothing matched", nil)},
	}}
	c, _ := newTestCoordinator(launcher, nil, ex)

	att, err := c.Run(context.Background(), "https://example.com/", "headings", "", testConfig(3))
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	if att.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", att.Attempts)
	}
	if ex.calls != 3 {
		t.Errorf("extractor calls = %d, want 3", ex.calls)
	}
}

func TestBackoffSequence(t *testing.T) {
	launcher := &fakeLauncher{}
	ex := &fakeExtractor{results: []extractResult{
		{err: models.NewScrapeError(models.ErrCodeNavigation, "boom", nil)},
	}}
	c, sleeps := newTestCoordinator(launcher, nil, ex)

	_, err := c.Run(context.Background(), "https://example.com/", "headings", "", testConfig(4))
	if err == nil {
		t.Fatal("expected terminal failure")
	}

	want := []time.Duration{500 * time.Millisecond, 750 * time.Millisecond, 1125 * time.Millisecond}
	if len(*sleeps) != len(want) {
		t.Fatalf("recorded %d backoffs (%v), want %d", len(*sleeps), *sleeps, len(want))
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Errorf("backoff[%d] = %v, want %v", i, (*sleeps)[i], d)
		}
	}
}

func TestNextBackoffCapped(t *testing.T) {
	if got := nextBackoff(500 * time.Millisecond); got != 750*time.Millisecond {
		t.Errorf("nextBackoff(500ms) = %v, want 750ms", got)
	}
	if got := nextBackoff(4 * time.Second); got != strategy.MaxBackoff {
		t.Errorf("nextBackoff(4s) = %v, want cap %v", got, strategy.MaxBackoff)
	}
	if got := nextBackoff(strategy.MaxBackoff); got != strategy.MaxBackoff {
		t.Errorf("nextBackoff(cap) = %v, want cap", got)
	}
}

func TestBotDetectionRotatesProxyAndSession(t *testing.T) {
	launcher := &fakeLauncher{}
	proxies := &fakeProxies{}
	ex := &fakeExtractor{results: []extractResult{
		{err: models.NewScrapeError(models.ErrCodeBotDetected, "blocked", nil)},
		{payload: map[string]any{"count": 1}},
	}}
	c, _ := newTestCoordinator(launcher, proxies, ex)

	att, err := c.Run(context.Background(), "https://example.com/", "headings", "", testConfig(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if att.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", att.Attempts)
	}
	if len(proxies.marked) != 1 || proxies.marked[0] != "10.0.0.1:8080" {
		t.Errorf("marked proxies = %v, want the first egress quarantined", proxies.marked)
	}
	if proxies.rotated != 1 {
		t.Errorf("rotations = %d, want 1", proxies.rotated)
	}
	if launcher.launches != 2 {
		t.Errorf("launches = %d, want 2 (session restarted)", launcher.launches)
	}
	if att.ProxyUsed != "10.0.0.2:8080" {
		t.Errorf("proxy used = %q, want the rotated egress", att.ProxyUsed)
	}
}

func TestExtractionFailureKeepsSession(t *testing.T) {
	launcher := &fakeLauncher{}
	ex := &fakeExtractor{results: []extractResult{
		{err: models.NewScrapeError(models.ErrCodeExtraction, "nothing matched", nil)},
		{payload: map[string]any{"count": 1}},
	}}
	c, _ := newTestCoordinator(launcher, nil, ex)

	if _, err := c.Run(context.Background(), "https://example.com/", "headings", "", testConfig(3)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if launcher.launches != 1 {
		t.Errorf("launches = %d, want 1 (no session churn on extraction retry)", launcher.launches)
	}
}

func TestRateLimitInflatesBackoff(t *testing.T) {
	launcher := &fakeLauncher{}
	ex := &fakeExtractor{results: []extractResult{
		{err: models.NewScrapeError(models.ErrCodeRateLimited, "slow down", nil)},
		{payload: map[string]any{"count": 1}},
	}}
	c, sleeps := newTestCoordinator(launcher, nil, ex)

	if _, err := c.Run(context.Background(), "https://example.com/", "headings", "", testConfig(3)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 1*time.Second {
		t.Errorf("backoffs = %v, want one inflated 1s delay", *sleeps)
	}
}

func TestInvalidURLFailsFast(t *testing.T) {
	launcher := &fakeLauncher{}
	c, _ := newTestCoordinator(launcher, nil, &fakeExtractor{results: []extractResult{{}}})

	_, err := c.Run(context.Background(), "not a url", "headings", "", testConfig(3))
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
	if code := models.CodeOf(err); code != models.ErrCodeInvalidInput {
		t.Errorf("code = %q, want %q", code, models.ErrCodeInvalidInput)
	}
	if launcher.launches != 0 {
		t.Errorf("launches = %d, want 0", launcher.launches)
	}
}

func TestExpiredDeadlineAbortsSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	launcher := &fakeLauncher{
		sessions: []*fakeSession{{navErr: models.NewScrapeError(models.ErrCodeNavigation, "down", context.Canceled)}},
	}
	c, _ := newTestCoordinator(launcher, nil, &fakeExtractor{results: []extractResult{{}}})

	att, err := c.Run(ctx, "https://example.com/", "headings", "", testConfig(3))
	if err == nil {
		t.Fatal("expected error")
	}
	if code := models.CodeOf(err); code != models.ErrCodeTimeout {
		t.Errorf("code = %q, want %q", code, models.ErrCodeTimeout)
	}
	if att.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry after caller deadline)", att.Attempts)
	}
}

func TestCaptchaDetectHiccupDoesNotAbortAttempt(t *testing.T) {
	launcher := &fakeLauncher{}
	ex := &fakeExtractor{results: []extractResult{
		{payload: map[string]any{"count": 1}},
	}}
	c, _ := newTestCoordinator(launcher, nil, ex)
	c.captchas = &fakeCaptcha{errs: []error{errors.New("captcha detection script failed: eval hiccup")}}

	att, err := c.Run(context.Background(), "https://example.com/", "headings", "", testConfig(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if att.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (detect hiccup must not consume the budget)", att.Attempts)
	}
	if ex.calls != 1 {
		t.Errorf("extractor calls = %d, want 1", ex.calls)
	}
}

func TestCaptchaExhaustionRetriesWithFreshProxy(t *testing.T) {
	launcher := &fakeLauncher{}
	proxies := &fakeProxies{}
	ex := &fakeExtractor{results: []extractResult{
		{payload: map[string]any{"count": 1}},
	}}
	c, _ := newTestCoordinator(launcher, proxies, ex)
	c.captchas = &fakeCaptcha{errs: []error{
		models.NewScrapeError(models.ErrCodeCaptcha, "all captcha solvers exhausted", nil),
		nil,
	}}

	att, err := c.Run(context.Background(), "https://example.com/", "headings", "", testConfig(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if att.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", att.Attempts)
	}
	if proxies.rotated != 1 {
		t.Errorf("rotations = %d, want 1 (burned egress replaced)", proxies.rotated)
	}
	if launcher.launches != 2 {
		t.Errorf("launches = %d, want 2 (session restarted)", launcher.launches)
	}
}

func TestBotWallSniffing(t *testing.T) {
	wall := `<html><head><title>Attention Required! | Cloudflare</title></head><body>checking your browser before accessing</body></html>`
	if !sniffBotWall(wall) {
		t.Error("interstitial not detected")
	}
	if sniffBotWall("<html><body><h1>Welcome</h1></body></html>") {
		t.Error("normal page flagged as bot wall")
	}

	launcher := &fakeLauncher{sessions: []*fakeSession{{html: wall}}}
	proxies := &fakeProxies{}
	ex := &fakeExtractor{results: []extractResult{{payload: map[string]any{"count": 1}}}}
	c, _ := newTestCoordinator(launcher, proxies, ex)

	_, err := c.Run(context.Background(), "https://example.com/", "headings", "", testConfig(1))
	if err == nil {
		t.Fatal("expected bot-detection failure")
	}
	if code := models.CodeOf(err); code != models.ErrCodeBotDetected {
		t.Errorf("code = %q, want %q", code, models.ErrCodeBotDetected)
	}
	if ex.calls != 0 {
		t.Errorf("extractor ran %d times against an interstitial, want 0", ex.calls)
	}
}

func TestRateLimitSniffing(t *testing.T) {
	cases := []struct {
		html string
		want bool
	}{
		{`<html><body><h1>Too Many Requests</h1></body></html>`, true},
		{`<html><body>Error 429: rate limit exceeded</body></html>`, true},
		{`<html><body><title>HTTP 429</title></body></html>`, true},
		{`<html><body>Vintage lamp, $429.00, ships from 429 Elm St</body></html>`, false},
	}
	for _, tc := range cases {
		if got := sniffRateLimit(tc.html); got != tc.want {
			t.Errorf("sniffRateLimit(%q) = %v, want %v", tc.html, got, tc.want)
		}
	}
}
