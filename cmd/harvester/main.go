package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/harvester/api"
	"github.com/use-agent/harvester/behavior"
	"github.com/use-agent/harvester/browser"
	"github.com/use-agent/harvester/cache"
	"github.com/use-agent/harvester/captcha"
	"github.com/use-agent/harvester/config"
	"github.com/use-agent/harvester/extract"
	"github.com/use-agent/harvester/proxy"
	"github.com/use-agent/harvester/scrape"
	"github.com/use-agent/harvester/strategy"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("harvester starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxConcurrent", cfg.Scraper.MaxConcurrent,
	)

	// ── 3. Assemble the orchestration stack ─────────────────────────
	controller := browser.NewController(cfg.Browser)

	var rotator scrape.ProxyRotator
	if providers := buildProxyProviders(cfg.Proxy); len(providers) > 0 {
		rotator = proxy.NewManager(providers, cfg.Proxy, nil)
		slog.Info("proxy manager enabled", "providers", len(providers))
	}

	solvers := buildCaptchaSolvers(cfg.Captcha)
	captchas := captcha.NewManager(solvers)
	slog.Info("captcha chain configured", "solvers", len(solvers))

	coord := scrape.NewCoordinator(
		controller,
		rotator,
		captchas,
		behavior.NewSimulator(),
		extract.NewDispatcher(slog.Default()),
		slog.Default(),
	)

	gate := scrape.NewGate(cfg.Scraper)
	sc := scrape.NewScraper(gate, coord, strategy.NewDomainCache(), slog.Default())
	cc := cache.New(cfg.Cache.MaxEntries)

	// ── 4. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(sc, gate, cc, cfg, startTime)

	// ── 5. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete; in-progress scrape
	// sessions are torn down when their call contexts are cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("harvester stopped")
}

// buildProxyProviders wires the providers the configuration enables, in
// preference order: the rotating pool first, residential second.
func buildProxyProviders(cfg config.ProxyConfig) []proxy.Provider {
	var providers []proxy.Provider
	if cfg.PoolAPIKey != "" && cfg.PoolEndpoint != "" {
		providers = append(providers, proxy.NewPoolProvider(cfg.PoolAPIKey, cfg.PoolEndpoint))
	}
	if cfg.ResidentialUsername != "" && cfg.ResidentialEndpoint != "" {
		providers = append(providers, proxy.NewResidentialProvider(
			cfg.ResidentialUsername,
			cfg.ResidentialPassword,
			cfg.ResidentialEndpoint,
			cfg.ResidentialPort,
		))
	}
	return providers
}

// buildCaptchaSolvers wires the solver chain in registration order.
func buildCaptchaSolvers(cfg config.CaptchaConfig) []captcha.Solver {
	var solvers []captcha.Solver
	if cfg.TwoCaptchaKey != "" {
		solvers = append(solvers, captcha.NewTwoCaptcha(cfg.TwoCaptchaKey, ""))
	}
	if cfg.AntiCaptchaKey != "" {
		solvers = append(solvers, captcha.NewAntiCaptcha(cfg.AntiCaptchaKey, ""))
	}
	return solvers
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
