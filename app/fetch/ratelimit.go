package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

const (
	hostRequestsPerSecond = 1
	hostBurst             = 2
)

// hostLimiter throttles outbound requests per target host so that a
// dense scheduler tick does not hammer a single site.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHostLimiter() *hostLimiter {
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *hostLimiter) wait(ctx context.Context, host string) error {
	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(hostRequestsPerSecond), hostBurst)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()

	return limiter.Wait(ctx)
}
