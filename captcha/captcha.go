// Package captcha detects challenge widgets on a live page and solves
// them through an ordered chain of external solving providers.
package captcha

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/use-agent/harvester/browser"
	"github.com/use-agent/harvester/models"
)

// ChallengeType identifies the widget family.
type ChallengeType string

const (
	TypeRecaptcha ChallengeType = "recaptcha"
	TypeHcaptcha  ChallengeType = "hcaptcha"
	TypeImage     ChallengeType = "image"
)

// Challenge describes one detected challenge. It is consumed once per
// solve attempt.
type Challenge struct {
	Type      ChallengeType
	SiteKey   string
	PageURL   string
	ImageData string // base64, image challenges only
}

// Solver is one external solving provider. Implementations follow a
// two-phase protocol: submit the challenge parameters, then poll a
// status endpoint at a provider-specific interval until solved or the
// provider-specific timeout elapses.
type Solver interface {
	Name() string
	Solve(ctx context.Context, ch *Challenge) (token string, err error)
}

// Manager tries solvers sequentially in registration order.
type Manager struct {
	solvers []Solver
}

// NewManager creates a Manager over the given solver chain.
func NewManager(solvers []Solver) *Manager {
	return &Manager{solvers: solvers}
}

// detectJS inspects the page for known challenge markers and pulls the
// embedded site key.
const detectJS = `() => {
	const g = document.querySelector('.g-recaptcha[data-sitekey], [data-sitekey][class*="recaptcha"]');
	if (g) return { type: "recaptcha", sitekey: g.getAttribute("data-sitekey") || "" };

	const h = document.querySelector('.h-captcha[data-sitekey], [data-sitekey][class*="h-captcha"]');
	if (h) return { type: "hcaptcha", sitekey: h.getAttribute("data-sitekey") || "" };

	const rf = document.querySelector('iframe[src*="recaptcha/api2/anchor"], iframe[src*="recaptcha/enterprise"]');
	if (rf) {
		try {
			const k = new URL(rf.src).searchParams.get("k");
			if (k) return { type: "recaptcha", sitekey: k };
		} catch (e) {}
	}
	const hf = document.querySelector('iframe[src*="hcaptcha.com"]');
	if (hf) {
		try {
			const k = new URL(hf.src).searchParams.get("sitekey");
			if (k) return { type: "hcaptcha", sitekey: k };
		} catch (e) {}
	}

	const img = document.querySelector('img[src*="captcha"], img[id*="captcha"], img[class*="captcha"]');
	if (img) {
		try {
			const c = document.createElement("canvas");
			c.width = img.naturalWidth; c.height = img.naturalHeight;
			c.getContext("2d").drawImage(img, 0, 0);
			return { type: "image", data: c.toDataURL("image/png").split(",")[1] || "" };
		} catch (e) {
			return { type: "image", data: "" };
		}
	}
	return null;
}`

// Detect inspects the current page and returns the challenge found, or
// nil when the page shows none.
func (m *Manager) Detect(ctx context.Context, sess browser.Session, pageURL string) (*Challenge, error) {
	res, err := sess.Eval(ctx, detectJS)
	if err != nil {
		return nil, fmt.Errorf("captcha detection script failed: %w", err)
	}
	if res.Nil() {
		return nil, nil
	}

	ch := &Challenge{
		Type:    ChallengeType(res.Get("type").Str()),
		SiteKey: res.Get("sitekey").Str(),
		PageURL: pageURL,
	}
	if ch.Type == TypeImage {
		ch.ImageData = res.Get("data").Str()
	}
	slog.Info("captcha challenge detected", "type", ch.Type, "url", pageURL)
	return ch, nil
}

// Solve walks the provider chain in order. Each provider failure is
// logged and the next provider is tried; a terminal error is raised
// only when every configured provider has been exhausted.
func (m *Manager) Solve(ctx context.Context, ch *Challenge) (string, error) {
	if len(m.solvers) == 0 {
		return "", models.NewScrapeError(models.ErrCodeCaptcha, "no captcha solvers configured", nil)
	}

	var lastErr error
	for _, s := range m.solvers {
		token, err := s.Solve(ctx, ch)
		if err != nil {
			slog.Warn("captcha solver failed, trying next provider",
				"provider", s.Name(), "type", ch.Type, "error", err)
			lastErr = err
			continue
		}
		slog.Info("captcha solved", "provider", s.Name(), "type", ch.Type)
		return token, nil
	}
	return "", models.NewScrapeError(models.ErrCodeCaptcha, "all captcha solvers exhausted", lastErr)
}

// injectJS writes the solved token into the page's challenge-response
// field and overrides the client-side verification hook so page scripts
// see the externally solved value.
const injectJS = `(token) => {
	const fields = document.querySelectorAll('textarea[name="g-recaptcha-response"], textarea[name="h-captcha-response"]');
	for (const f of fields) {
		f.style.display = "block";
		f.value = token;
	}
	if (window.___grecaptcha_cfg) {
		try {
			for (const id of Object.keys(window.___grecaptcha_cfg.clients || {})) {
				window.grecaptcha.getResponse = () => token;
			}
		} catch (e) {}
	}
	if (window.hcaptcha) {
		try { window.hcaptcha.getResponse = () => token; } catch (e) {}
	}
	return fields.length;
}`

// Inject pushes a solved token back into the page.
func (m *Manager) Inject(ctx context.Context, sess browser.Session, token string) error {
	js := fmt.Sprintf(`() => (%s)(%q)`, injectJS, token)
	if _, err := sess.Eval(ctx, js); err != nil {
		return fmt.Errorf("captcha token injection failed: %w", err)
	}
	return nil
}

// Handle runs the full detect/solve/inject sequence. A nil return with
// nothing detected is the common path.
func (m *Manager) Handle(ctx context.Context, sess browser.Session, pageURL string) error {
	ch, err := m.Detect(ctx, sess, pageURL)
	if err != nil || ch == nil {
		return err
	}
	token, err := m.Solve(ctx, ch)
	if err != nil {
		return err
	}
	return m.Inject(ctx, sess, token)
}
