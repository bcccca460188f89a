// Package proxy maintains a pool of egress proxy providers, supplying
// a validated working proxy to browser sessions and quarantining keys
// that fail.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/use-agent/harvester/config"
)

// Config describes one egress proxy.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Protocol string // "http" or "socks5"
}

// Key identifies the proxy for quarantine purposes.
func (c *Config) Key() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// URL renders the proxy as a URL suitable for browser launch flags and
// http.Transport.
func (c *Config) URL() *url.URL {
	u := &url.URL{
		Scheme: c.Protocol,
		Host:   c.Key(),
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u
}

// Provider supplies proxy candidates. Implementations are configured
// with provider-specific credentials out of band.
type Provider interface {
	Name() string
	GetProxy(ctx context.Context) (*Config, error)
}

// SessionRotator is implemented by providers that can rotate the egress
// at session level (e.g. by changing a session token) rather than
// returning the same endpoint. The manager prefers it when present.
type SessionRotator interface {
	RotateProxy(ctx context.Context) (*Config, error)
}

// ProbeFunc validates a candidate proxy with a lightweight outbound
// request. It returns nil when the proxy is usable.
type ProbeFunc func(ctx context.Context, cfg *Config) error

// Manager holds at most one current proxy plus a time-bounded
// quarantine set of failed proxy keys. Safe for concurrent use.
type Manager struct {
	providers []Provider
	cfg       config.ProxyConfig
	probe     ProbeFunc
	now       func() time.Time

	mu         sync.Mutex
	current    *Config
	acquiredAt time.Time
	quarantine map[string]time.Time // key -> eligible-again time
}

// NewManager creates a Manager over the given providers, tried in
// registration order. A nil probe falls back to the HTTP probe.
func NewManager(providers []Provider, cfg config.ProxyConfig, probe ProbeFunc) *Manager {
	if probe == nil {
		probe = httpProbe(cfg)
	}
	return &Manager{
		providers:  providers,
		cfg:        cfg,
		probe:      probe,
		now:        time.Now,
		quarantine: make(map[string]time.Time),
	}
}

// GetWorkingProxy returns the current proxy, rotating first if the
// rotation interval has elapsed or no proxy is held. A nil return with
// no error means no provider could supply a working proxy; the caller
// proceeds proxy-less.
func (m *Manager) GetWorkingProxy(ctx context.Context) *Config {
	m.mu.Lock()
	current := m.current
	fresh := current != nil && m.now().Sub(m.acquiredAt) < m.cfg.RotationInterval
	m.mu.Unlock()

	if fresh {
		return current
	}
	return m.RotateProxy(ctx)
}

// RotateProxy asks each provider in registration order for a candidate,
// skipping quarantined keys, and commits the first candidate that
// probes successfully. Returns nil when every provider is exhausted.
func (m *Manager) RotateProxy(ctx context.Context) *Config {
	for _, p := range m.providers {
		cand, err := m.candidateFrom(ctx, p)
		if err != nil {
			slog.Debug("proxy provider yielded no candidate", "provider", p.Name(), "error", err)
			continue
		}
		if cand == nil {
			continue
		}
		if m.isQuarantined(cand.Key()) {
			slog.Debug("proxy candidate quarantined, skipping", "provider", p.Name(), "key", cand.Key())
			continue
		}
		if err := m.probe(ctx, cand); err != nil {
			slog.Warn("proxy candidate failed probe", "provider", p.Name(), "key", cand.Key(), "error", err)
			m.MarkFailed(cand)
			continue
		}

		m.mu.Lock()
		m.current = cand
		m.acquiredAt = m.now()
		m.mu.Unlock()
		slog.Info("proxy rotated", "provider", p.Name(), "key", cand.Key())
		return cand
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	slog.Warn("no working proxy available, proceeding proxy-less")
	return nil
}

// candidateFrom prefers session-level rotation when the provider
// supports it.
func (m *Manager) candidateFrom(ctx context.Context, p Provider) (*Config, error) {
	if rot, ok := p.(SessionRotator); ok {
		return rot.RotateProxy(ctx)
	}
	return p.GetProxy(ctx)
}

// MarkFailed quarantines the proxy key for the configured window, after
// which it becomes eligible again. Transient provider outages self-heal
// without manual intervention. Expired entries are swept on each write.
func (m *Manager) MarkFailed(cfg *Config) {
	if cfg == nil {
		return
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, until := range m.quarantine {
		if !now.Before(until) {
			delete(m.quarantine, key)
		}
	}
	m.quarantine[cfg.Key()] = now.Add(m.cfg.QuarantineWindow)
	if m.current != nil && m.current.Key() == cfg.Key() {
		m.current = nil
	}
}

func (m *Manager) isQuarantined(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.quarantine[key]
	if !ok {
		return false
	}
	if !m.now().Before(until) {
		delete(m.quarantine, key)
		return false
	}
	return true
}
