package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/harvester/httpclient"
)

// TwoCaptcha talks the form-encoded submit/poll API used by 2Captcha
// and compatible services.
type TwoCaptcha struct {
	apiKey  string
	baseURL string
	client  *http.Client

	pollInterval time.Duration
	solveTimeout time.Duration
}

// NewTwoCaptcha creates a TwoCaptcha solver. An empty baseURL uses the
// public endpoint.
func NewTwoCaptcha(apiKey, baseURL string) *TwoCaptcha {
	if baseURL == "" {
		baseURL = "https://2captcha.com"
	}
	return &TwoCaptcha{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       httpclient.New(30 * time.Second),
		pollInterval: 5 * time.Second,
		solveTimeout: 120 * time.Second,
	}
}

func (t *TwoCaptcha) Name() string { return "2captcha" }

// Solve submits the challenge then polls the result endpoint until the
// token is ready or the solve timeout elapses.
func (t *TwoCaptcha) Solve(ctx context.Context, ch *Challenge) (string, error) {
	id, err := t.submit(ctx, ch)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(t.solveTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(t.pollInterval):
		}

		token, ready, err := t.poll(ctx, id)
		if err != nil {
			return "", err
		}
		if ready {
			return token, nil
		}
	}
	return "", fmt.Errorf("2captcha: solve timed out after %s", t.solveTimeout)
}

func (t *TwoCaptcha) submit(ctx context.Context, ch *Challenge) (string, error) {
	form := url.Values{"key": {t.apiKey}}
	switch ch.Type {
	case TypeRecaptcha:
		form.Set("method", "userrecaptcha")
		form.Set("googlekey", ch.SiteKey)
		form.Set("pageurl", ch.PageURL)
	case TypeHcaptcha:
		form.Set("method", "hcaptcha")
		form.Set("sitekey", ch.SiteKey)
		form.Set("pageurl", ch.PageURL)
	case TypeImage:
		form.Set("method", "base64")
		form.Set("body", ch.ImageData)
	default:
		return "", fmt.Errorf("2captcha: unsupported challenge type %q", ch.Type)
	}

	body, err := t.post(ctx, t.baseURL+"/in.php", form)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(body, "OK|") {
		return "", fmt.Errorf("2captcha: submission rejected: %s", body)
	}
	return strings.TrimPrefix(body, "OK|"), nil
}

func (t *TwoCaptcha) poll(ctx context.Context, id string) (token string, ready bool, err error) {
	form := url.Values{
		"key":    {t.apiKey},
		"action": {"get"},
		"id":     {id},
	}
	body, err := t.post(ctx, t.baseURL+"/res.php", form)
	if err != nil {
		return "", false, err
	}
	switch {
	case strings.HasPrefix(body, "OK|"):
		return strings.TrimPrefix(body, "OK|"), true, nil
	case body == "CAPCHA_NOT_READY":
		return "", false, nil
	default:
		return "", false, fmt.Errorf("2captcha: poll error: %s", body)
	}
}

func (t *TwoCaptcha) post(ctx context.Context, endpoint string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("2captcha: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("2captcha: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("2captcha: read response: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// AntiCaptcha talks the JSON createTask/getTaskResult API used by
// AntiCaptcha and compatible services.
type AntiCaptcha struct {
	apiKey  string
	baseURL string
	client  *http.Client

	pollInterval time.Duration
	solveTimeout time.Duration
}

// NewAntiCaptcha creates an AntiCaptcha solver. An empty baseURL uses
// the public endpoint.
func NewAntiCaptcha(apiKey, baseURL string) *AntiCaptcha {
	if baseURL == "" {
		baseURL = "https://api.anti-captcha.com"
	}
	return &AntiCaptcha{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       httpclient.New(30 * time.Second),
		pollInterval: 3 * time.Second,
		solveTimeout: 180 * time.Second,
	}
}

func (a *AntiCaptcha) Name() string { return "anticaptcha" }

type antiTask struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL,omitempty"`
	WebsiteKey string `json:"websiteKey,omitempty"`
	Body       string `json:"body,omitempty"`
}

type antiCreateResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
}

type antiResultResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
		Text               string `json:"text"`
	} `json:"solution"`
}

func (a *AntiCaptcha) Solve(ctx context.Context, ch *Challenge) (string, error) {
	task, err := a.taskFor(ch)
	if err != nil {
		return "", err
	}

	var created antiCreateResponse
	if err := a.post(ctx, "/createTask", map[string]any{
		"clientKey": a.apiKey,
		"task":      task,
	}, &created); err != nil {
		return "", err
	}
	if created.ErrorID != 0 {
		return "", fmt.Errorf("anticaptcha: submission rejected: %s", created.ErrorDescription)
	}

	deadline := time.Now().Add(a.solveTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.pollInterval):
		}

		var result antiResultResponse
		if err := a.post(ctx, "/getTaskResult", map[string]any{
			"clientKey": a.apiKey,
			"taskId":    created.TaskID,
		}, &result); err != nil {
			return "", err
		}
		if result.ErrorID != 0 {
			return "", fmt.Errorf("anticaptcha: poll error: %s", result.ErrorDescription)
		}
		if result.Status == "ready" {
			if result.Solution.GRecaptchaResponse != "" {
				return result.Solution.GRecaptchaResponse, nil
			}
			return result.Solution.Text, nil
		}
	}
	return "", fmt.Errorf("anticaptcha: solve timed out after %s", a.solveTimeout)
}

func (a *AntiCaptcha) taskFor(ch *Challenge) (antiTask, error) {
	switch ch.Type {
	case TypeRecaptcha:
		return antiTask{Type: "RecaptchaV2TaskProxyless", WebsiteURL: ch.PageURL, WebsiteKey: ch.SiteKey}, nil
	case TypeHcaptcha:
		return antiTask{Type: "HCaptchaTaskProxyless", WebsiteURL: ch.PageURL, WebsiteKey: ch.SiteKey}, nil
	case TypeImage:
		return antiTask{Type: "ImageToTextTask", Body: ch.ImageData}, nil
	default:
		return antiTask{}, fmt.Errorf("anticaptcha: unsupported challenge type %q", ch.Type)
	}
}

func (a *AntiCaptcha) post(ctx context.Context, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("anticaptcha: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("anticaptcha: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("anticaptcha: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return fmt.Errorf("anticaptcha: read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("anticaptcha: decode response: %w", err)
	}
	return nil
}
