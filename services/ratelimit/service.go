package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/integration-gateway/internal/observability"
	"github.com/upb/integration-gateway/internal/policy"
	"go.uber.org/zap"
)

// ReasonUnavailable is reported when the counter backend fails.
const ReasonUnavailable = "rate limiter unavailable"

// Counter owns per-key fixed-window counts. CheckAndIncrement increments
// the counter for key only when it is below limit and reports the count
// after the call. The key expires at expiresAt.
type Counter interface {
	CheckAndIncrement(ctx context.Context, key string, limit int, expiresAt time.Time) (count int, allowed bool, err error)
}

// Request identifies one rate-limited call
type Request struct {
	TerminalIntegrationID string
	Provider              policy.Provider
	Category              policy.Category
	Limits                policy.RateLimits
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed     bool
	Limited     bool // false when the category has no configured limit
	Unavailable bool
	Limit       int
	Current     int
	Remaining   int
	Window      policy.Window
	ResetAt     time.Time
	Reason      string
}

// RetryAfter returns how long the caller should wait before retrying
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.ResetAt.IsZero() || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// Service checks fixed-window limits against a Counter and fails closed
type Service struct {
	counter Counter
	backend string
	timeout time.Duration
	metrics observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new Service. timeout bounds every counter call.
func NewService(counter Counter, backend string, timeout time.Duration, metrics observability.Metrics, logger *zap.Logger) *Service {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Service{
		counter: counter,
		backend: backend,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Check consumes one unit of the request's category budget in every
// configured window, shortest first, and denies on the first exhausted
// window. It never returns an error: backend failures deny the call.
func (s *Service) Check(ctx context.Context, req Request) *Result {
	limits := req.Limits.For(req.Category)
	if len(limits) == 0 {
		return &Result{Allowed: true}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	now := s.now()
	var tightest *Result
	for _, l := range limits {
		result := s.checkWindow(ctx, req, l, now)
		if !result.Allowed {
			return result
		}
		if tightest == nil || result.Remaining < tightest.Remaining {
			tightest = result
		}
	}
	return tightest
}

// checkWindow consumes one unit in a single window. A shorter window that
// was already incremented keeps its unit when a longer one denies, which
// can only matter once the longer window is exhausted.
func (s *Service) checkWindow(ctx context.Context, req Request, l policy.Limit, now time.Time) *Result {
	start, resetAt := windowBounds(now, l.Window)
	key := buildKey(req, l.Window, start)

	count, allowed, err := s.counter.CheckAndIncrement(ctx, key, l.Max, resetAt)
	if err != nil {
		s.metrics.RecordRateLimiterError(s.backend)
		s.logger.Error("rate limiter unavailable, denying request",
			zap.String("key", key),
			zap.String("backend", s.backend),
			zap.Error(err),
		)
		return &Result{
			Limited:     true,
			Unavailable: true,
			Limit:       l.Max,
			Window:      l.Window,
			Reason:      ReasonUnavailable,
		}
	}

	result := &Result{
		Allowed: allowed,
		Limited: true,
		Limit:   l.Max,
		Current: count,
		Window:  l.Window,
		ResetAt: resetAt,
	}
	if count < l.Max {
		result.Remaining = l.Max - count
	}
	if !allowed {
		result.Reason = fmt.Sprintf("rate limit exceeded: %d %s per %s", l.Max, req.Category, l.Window)
	}
	return result
}

// windowBounds aligns now to the start of its fixed window
func windowBounds(now time.Time, window policy.Window) (start, reset time.Time) {
	d := window.Duration()
	start = now.UTC().Truncate(d)
	return start, start.Add(d)
}

// buildKey builds the counter key for one integration, category and window
func buildKey(req Request, window policy.Window, start time.Time) string {
	return fmt.Sprintf("ti:%s:%s:%s:%s:%d",
		req.TerminalIntegrationID, req.Provider, req.Category, window, start.Unix())
}
