package scrape

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/harvester/config"
)

// Gate enforces the global scrape budget: a concurrency bound on calls
// holding live sessions and a requests-per-minute pace. Callers block
// at the gate instead of failing when the budget is exhausted.
type Gate struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

func NewGate(cfg config.ScraperConfig) *Gate {
	rpm := cfg.RequestsPerMinute
	if rpm < 1 {
		rpm = 1
	}
	interval := time.Minute / time.Duration(rpm)
	return &Gate{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		slots:   make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Acquire blocks until a concurrency slot and a rate token are both
// available, or ctx expires. A successful Acquire must be paired with
// Release.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		<-g.slots
		return err
	}
	return nil
}

func (g *Gate) Release() {
	<-g.slots
}

// InUse reports how many concurrency slots are currently held.
func (g *Gate) InUse() int {
	return len(g.slots)
}
