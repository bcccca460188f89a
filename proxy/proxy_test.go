package proxy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/use-agent/harvester/config"
)

// stubProvider returns a fixed sequence of candidates.
type stubProvider struct {
	name    string
	configs []*Config
	err     error
	calls   int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GetProxy(ctx context.Context) (*Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	cfg := s.configs[s.calls%len(s.configs)]
	s.calls++
	return cfg, nil
}

func testCfg() config.ProxyConfig {
	return config.ProxyConfig{
		RotationInterval: 10 * time.Minute,
		QuarantineWindow: 30 * time.Minute,
	}
}

func okProbe(ctx context.Context, cfg *Config) error { return nil }

func TestRotateProxy_ProviderOrder(t *testing.T) {
	first := &stubProvider{name: "first", err: errors.New("provider down")}
	second := &stubProvider{name: "second", configs: []*Config{{Host: "10.0.0.2", Port: 8080, Protocol: "http"}}}

	m := NewManager([]Provider{first, second}, testCfg(), okProbe)
	got := m.RotateProxy(context.Background())

	if got == nil || got.Host != "10.0.0.2" {
		t.Fatalf("expected second provider's proxy, got %+v", got)
	}
}

func TestRotateProxy_AllExhaustedReturnsNil(t *testing.T) {
	p := &stubProvider{name: "p", err: errors.New("no proxies")}
	m := NewManager([]Provider{p}, testCfg(), okProbe)

	if got := m.RotateProxy(context.Background()); got != nil {
		t.Errorf("expected nil when no provider yields a proxy, got %+v", got)
	}
}

func TestRotateProxy_ProbeFailureQuarantinesAndSkips(t *testing.T) {
	bad := &Config{Host: "10.0.0.9", Port: 3128, Protocol: "http"}
	good := &Config{Host: "10.0.0.10", Port: 3128, Protocol: "http"}
	p := &stubProvider{name: "p", configs: []*Config{bad, good}}

	probe := func(ctx context.Context, cfg *Config) error {
		if cfg.Host == "10.0.0.9" {
			return errors.New("connect refused")
		}
		return nil
	}

	m := NewManager([]Provider{p}, testCfg(), probe)

	// First rotation: bad candidate fails probe, manager retries the
	// provider chain only once per rotation, so the result is nil here
	// and the bad key is quarantined.
	_ = m.RotateProxy(context.Background())

	if !m.isQuarantined(bad.Key()) {
		t.Fatal("expected failed candidate to be quarantined")
	}

	// Second rotation: provider now serves the good candidate.
	got := m.RotateProxy(context.Background())
	if got == nil || got.Host != "10.0.0.10" {
		t.Fatalf("expected good proxy on second rotation, got %+v", got)
	}
}

func TestMarkFailed_QuarantineWindow(t *testing.T) {
	cfg := &Config{Host: "10.0.0.5", Port: 8080, Protocol: "http"}
	p := &stubProvider{name: "p", configs: []*Config{cfg}}

	m := NewManager([]Provider{p}, testCfg(), okProbe)

	base := time.Now()
	now := base
	m.now = func() time.Time { return now }

	m.MarkFailed(cfg)

	if got := m.RotateProxy(context.Background()); got != nil {
		t.Errorf("quarantined proxy must not be selected, got %+v", got)
	}

	// One second before expiry: still excluded.
	now = base.Add(30*time.Minute - time.Second)
	if got := m.RotateProxy(context.Background()); got != nil {
		t.Errorf("proxy selected before quarantine expiry, got %+v", got)
	}

	// At expiry: eligible again.
	now = base.Add(30 * time.Minute)
	got := m.RotateProxy(context.Background())
	if got == nil || got.Key() != cfg.Key() {
		t.Errorf("expected proxy eligible at quarantine expiry, got %+v", got)
	}
}

func TestGetWorkingProxy_ReusesWithinRotationInterval(t *testing.T) {
	cfg := &Config{Host: "10.0.0.7", Port: 8080, Protocol: "http"}
	p := &stubProvider{name: "p", configs: []*Config{cfg}}
	m := NewManager([]Provider{p}, testCfg(), okProbe)

	first := m.GetWorkingProxy(context.Background())
	second := m.GetWorkingProxy(context.Background())

	if first == nil || second == nil {
		t.Fatal("expected a working proxy")
	}
	if p.calls != 1 {
		t.Errorf("expected a single provider call within the rotation interval, got %d", p.calls)
	}
}

func TestGetWorkingProxy_RotatesAfterInterval(t *testing.T) {
	cfg := &Config{Host: "10.0.0.7", Port: 8080, Protocol: "http"}
	p := &stubProvider{name: "p", configs: []*Config{cfg}}
	m := NewManager([]Provider{p}, testCfg(), okProbe)

	base := time.Now()
	now := base
	m.now = func() time.Time { return now }

	_ = m.GetWorkingProxy(context.Background())
	now = base.Add(11 * time.Minute)
	_ = m.GetWorkingProxy(context.Background())

	if p.calls != 2 {
		t.Errorf("expected rotation after interval elapsed, provider calls: %d", p.calls)
	}
}

func TestSessionRotatorPreferred(t *testing.T) {
	p := NewResidentialProvider("user", "pass", "gw.example.net", 7777)

	c1, _ := p.RotateProxy(context.Background())
	c2, _ := p.RotateProxy(context.Background())

	if c1.Username == c2.Username {
		t.Error("expected rotation to produce distinct session tokens")
	}
	if c1.Host != "gw.example.net" || c2.Host != "gw.example.net" {
		t.Error("residential gateway endpoint must stay fixed across rotations")
	}
}

func TestConfigURL(t *testing.T) {
	cfg := &Config{Host: "10.1.1.1", Port: 3128, Username: "u", Password: "p", Protocol: "http"}
	u := cfg.URL()

	if u.Scheme != "http" || u.Host != "10.1.1.1:3128" {
		t.Errorf("unexpected proxy URL: %s", u)
	}
	if u.User == nil || u.User.Username() != "u" {
		t.Errorf("expected credentials in proxy URL, got %s", u)
	}
}
