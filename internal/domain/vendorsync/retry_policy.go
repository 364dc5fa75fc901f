package vendorsync

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// DefaultRetryBaseDelay is the backoff base for vendor sync jobs
const DefaultRetryBaseDelay = 5 * time.Second

// RetryPolicy decides whether a failed job is retried and how long to wait.
// It holds no state.
type RetryPolicy struct {
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the delay; zero means uncapped
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the vendor sync retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: DefaultRetryBaseDelay}
}

// ShouldRetry classifies err. Only network and timeout class failures are
// retryable; anything unrecognised is treated as a business failure.
func (p RetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if IsTerminalError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransientTransport) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// ComputeDelay returns BaseDelay * 2^retryCount, capped by MaxDelay when set
func (p RetryPolicy) ComputeDelay(retryCount int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	if retryCount < 0 {
		retryCount = 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
		delay *= 2
		if delay <= 0 {
			// overflow
			if p.MaxDelay > 0 {
				return p.MaxDelay
			}
			return time.Duration(1<<63 - 1)
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// RetryDecision is the outcome of consulting the policy for one failure
type RetryDecision struct {
	Retry   bool
	Delay   time.Duration
	Reason  string
	ReadyAt time.Time
}

// Decide evaluates a failed job. It does not mutate the job.
func (p RetryPolicy) Decide(job *SyncJob, err error, now time.Time) RetryDecision {
	switch {
	case job.CancelRequested:
		return RetryDecision{Reason: "cancel requested"}
	case !p.ShouldRetry(err):
		return RetryDecision{Reason: "error is not retryable"}
	case job.RetryCount >= job.MaxRetries:
		return RetryDecision{Reason: "retry budget exhausted"}
	}
	delay := p.ComputeDelay(job.RetryCount)
	return RetryDecision{
		Retry:   true,
		Delay:   delay,
		Reason:  "transient failure",
		ReadyAt: now.Add(delay),
	}
}
