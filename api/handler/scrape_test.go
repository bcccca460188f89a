package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ysmood/gson"

	"github.com/use-agent/harvester/browser"
	"github.com/use-agent/harvester/cache"
	"github.com/use-agent/harvester/config"
	"github.com/use-agent/harvester/models"
	"github.com/use-agent/harvester/proxy"
	"github.com/use-agent/harvester/scrape"
	"github.com/use-agent/harvester/strategy"
)

type stubSession struct{}

func (stubSession) Navigate(ctx context.Context, url string) error { return nil }
func (stubSession) WaitStable(ctx context.Context) error           { return nil }
func (stubSession) HTML(ctx context.Context) (string, error) {
	return "<html><body><h1>ok</h1></body></html>", nil
}
func (stubSession) Eval(ctx context.Context, js string) (gson.JSON, error) {
	return gson.New(nil), nil
}
func (stubSession) MoveMouse(ctx context.Context, x, y float64) error { return nil }
func (stubSession) Click(ctx context.Context, x, y float64) error     { return nil }
func (stubSession) InsertText(ctx context.Context, text string) error { return nil }
func (stubSession) PressBackspace(ctx context.Context) error          { return nil }
func (stubSession) Scroll(ctx context.Context, dx, dy float64) error  { return nil }
func (stubSession) ElementBox(ctx context.Context, selector string) (browser.Box, bool) {
	return browser.Box{}, false
}
func (stubSession) UserAgent() string    { return "ua-test" }
func (stubSession) Viewport() (int, int) { return 1280, 720 }
func (stubSession) Close() error         { return nil }

type stubLauncher struct{}

func (stubLauncher) Launch(ctx context.Context, cfg strategy.Config, px *proxy.Config, ua string) (browser.Session, error) {
	return stubSession{}, nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, sess browser.Session, spec, sourceURL string) (map[string]any, error) {
	return map[string]any{"headings": []string{"ok"}, "extractionMethod": "headings"}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *cache.Cache) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.DiscardHandler)
	gate := scrape.NewGate(config.ScraperConfig{MaxConcurrent: 8, RequestsPerMinute: 6000})
	coord := scrape.NewCoordinator(stubLauncher{}, nil, nil, nil, stubExtractor{}, log)
	sc := scrape.NewScraper(gate, coord, strategy.NewDomainCache(), log)
	cc := cache.New(16)

	r := gin.New()
	r.POST("/scrape", Scrape(sc, cc))
	return r, cc
}

func doScrape(t *testing.T, r *gin.Engine, body string) (*httptest.ResponseRecorder, models.ScrapeResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/scrape", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var resp models.ScrapeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Errorf("decode response: %v (body %s)", err, w.Body.String())
	}
	return w, resp
}

func TestScrapeHandlerRejectsMalformedRequest(t *testing.T) {
	r, _ := newTestRouter(t)

	w, resp := doScrape(t, r, `{"url": "https://example.com/"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
		t.Errorf("error = %+v, want %s", resp.Error, models.ErrCodeInvalidInput)
	}
}

func TestScrapeHandlerCacheStatusNeverMutatesStoredResponse(t *testing.T) {
	r, cc := newTestRouter(t)
	body := `{"url": "https://example.com/", "extraction_spec": "headings", "max_age": 300}`

	w, first := doScrape(t, r, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if first.CacheStatus != "miss" {
		t.Fatalf("first cache status = %q, want miss", first.CacheStatus)
	}

	// Concurrent hits serve copies; the stored response must keep its
	// original marker no matter how many hits race it.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, resp := doScrape(t, r, body)
			if resp.CacheStatus != "hit" {
				t.Errorf("cache status = %q, want hit", resp.CacheStatus)
			}
		}()
	}
	wg.Wait()

	stored, ok := cc.Get(cache.Key("https://example.com/", "headings"), 300)
	if !ok {
		t.Fatal("response missing from cache")
	}
	if stored.CacheStatus != "miss" {
		t.Errorf("stored cache status = %q, want miss (hits must not write through)", stored.CacheStatus)
	}
}
