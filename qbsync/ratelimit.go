package qbsync

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Returned when the limiter cannot grant a reservation at all, which only
// happens when the requested burst exceeds the bucket size.
var errRateLimitUnreservable = errors.New("rate limiter cannot reserve a slot")

var (
	requestsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qbsync",
		Name:      "requests_succeeded_total",
		Help:      "Outbound QuickBooks calls that completed without error.",
	})
	requestsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qbsync",
		Name:      "requests_failed_total",
		Help:      "Outbound QuickBooks calls that returned an error.",
	})
	throttleWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qbsync",
		Name:      "throttle_waits_total",
		Help:      "Calls delayed because the token bucket was empty.",
	})
)

// RateLimiter bounds outbound request rate and concurrency to QuickBooks'
// documented limits. Steady-state throughput is capped at requestsPerSecond
// with short bursts up to the reservoir size; at most maxConcurrent tasks run
// at once. Task errors pass through unmodified.
type RateLimiter struct {
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

func NewRateLimiter(requestsPerSecond float64, burst int, maxConcurrent int64) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 8
	}
	if burst < 1 {
		burst = 1
	}
	if maxConcurrent < 1 {
		maxConcurrent = 6
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		sem:     semaphore.NewWeighted(maxConcurrent),
	}
}

// Schedule admits task once the concurrency and rate budgets allow it.
func (rl *RateLimiter) Schedule(ctx context.Context, task func() error) error {
	if err := rl.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer rl.sem.Release(1)

	res := rl.limiter.Reserve()
	if !res.OK() {
		return errRateLimitUnreservable
	}
	if delay := res.Delay(); delay > 0 {
		throttleWaits.Inc()
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			res.Cancel()
			return ctx.Err()
		}
	}

	err := task()
	if err != nil {
		requestsFailed.Inc()
		return err
	}
	requestsSucceeded.Inc()
	return nil
}
