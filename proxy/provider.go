package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/harvester/httpclient"
)

// PoolProvider fetches proxies from a rotating-pool HTTP API
// authenticated with an API key. Each GetProxy call may return a
// different endpoint from the pool.
type PoolProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewPoolProvider creates a PoolProvider against the given API endpoint.
func NewPoolProvider(apiKey, endpoint string) *PoolProvider {
	return &PoolProvider{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   httpclient.New(15 * time.Second),
	}
}

func (p *PoolProvider) Name() string { return "pool" }

// poolResponse is the provider API's proxy descriptor.
type poolResponse struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Protocol string `json:"protocol"`
}

func (p *PoolProvider) GetProxy(ctx context.Context) (*Config, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("pool: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pool: fetch proxy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pool: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("pool: read body: %w", err)
	}

	var pr poolResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("pool: decode response: %w", err)
	}
	if pr.Host == "" || pr.Port == 0 {
		return nil, fmt.Errorf("pool: incomplete proxy descriptor")
	}
	if pr.Protocol == "" {
		pr.Protocol = "http"
	}

	return &Config{
		Host:     pr.Host,
		Port:     pr.Port,
		Username: pr.Username,
		Password: pr.Password,
		Protocol: pr.Protocol,
	}, nil
}

// ResidentialProvider represents a credentialed residential gateway.
// The endpoint stays fixed; rotation happens by changing the session
// token embedded in the username, which tells the gateway to assign a
// fresh egress IP.
type ResidentialProvider struct {
	username string
	password string
	endpoint string
	port     int
}

// NewResidentialProvider creates a ResidentialProvider from credentials.
func NewResidentialProvider(username, password, endpoint string, port int) *ResidentialProvider {
	return &ResidentialProvider{
		username: username,
		password: password,
		endpoint: endpoint,
		port:     port,
	}
}

func (p *ResidentialProvider) Name() string { return "residential" }

// GetProxy returns the gateway with a sticky session token.
func (p *ResidentialProvider) GetProxy(ctx context.Context) (*Config, error) {
	return p.withSession(uuid.NewString()[:8]), nil
}

// RotateProxy satisfies SessionRotator: a new session token forces the
// gateway to hand out a different egress IP.
func (p *ResidentialProvider) RotateProxy(ctx context.Context) (*Config, error) {
	return p.withSession(uuid.NewString()[:8]), nil
}

func (p *ResidentialProvider) withSession(session string) *Config {
	return &Config{
		Host:     p.endpoint,
		Port:     p.port,
		Username: fmt.Sprintf("%s-session-%s", p.username, session),
		Password: p.password,
		Protocol: "http",
	}
}
