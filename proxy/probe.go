package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/use-agent/harvester/config"
	"github.com/use-agent/harvester/httpclient"
)

// httpProbe builds the default ProbeFunc: fetch the configured probe
// URL through the candidate and accept any non-5xx response. A 204
// no-content endpoint keeps the probe cheap.
func httpProbe(cfg config.ProxyConfig) ProbeFunc {
	return func(ctx context.Context, cand *Config) error {
		client := httpclient.NewWithProxy(cand.URL(), cfg.ProbeTimeout)

		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, cfg.ProbeURL, nil)
		if err != nil {
			return fmt.Errorf("probe: build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("probe: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

		if resp.StatusCode >= 500 {
			return fmt.Errorf("probe: upstream status %d", resp.StatusCode)
		}
		return nil
	}
}
