// Package retry holds the irrigation retry policy and a small in-process retry
// helper for best-effort calls such as notification delivery.
package retry

import (
	"errors"
	"time"
)

// Policy bounds automatic re-execution of a failed irrigation.
type Policy struct {
	// MaxAttempts is the number of failed executions after which a task is FAILED.
	MaxAttempts int
	// RetryDelay is the fixed wait between a failed attempt and the next one.
	RetryDelay time.Duration
	// OverdueAfter is how long a task may stay due before the sweep fails it.
	OverdueAfter time.Duration
}

// DefaultPolicy is 3 attempts, 15 minutes apart, overdue after 24 hours.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, RetryDelay: 15 * time.Minute, OverdueAfter: 24 * time.Hour}
}

// NewPolicy builds a Policy from the integer options exposed in configuration.
func NewPolicy(maxAttempts, retryDelayMinutes, overdueHours int) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		RetryDelay:   time.Duration(retryDelayMinutes) * time.Minute,
		OverdueAfter: time.Duration(overdueHours) * time.Hour,
	}
}

func (p Policy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, errors.New("max_attempts must be at least 1"))
	}
	if p.RetryDelay < 0 {
		errs = append(errs, errors.New("retry_delay_minutes must not be negative"))
	}
	if p.OverdueAfter <= 0 {
		errs = append(errs, errors.New("overdue_hours must be positive"))
	}
	return errors.Join(errs...)
}

// Exhausted reports whether retryCount failed attempts use up the budget.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxAttempts
}

// NextAttemptAt is when a task that failed at now becomes due again.
func (p Policy) NextAttemptAt(now time.Time) time.Time {
	return now.Add(p.RetryDelay)
}

// OverdueDeadline is the scheduled time at or before which a still-due task is stuck.
func (p Policy) OverdueDeadline(now time.Time) time.Time {
	return now.Add(-p.OverdueAfter)
}
