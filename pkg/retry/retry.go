package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) IsRetryable() bool {
	return true
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func NewRetryableError(err error) RetryableError {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

type FatalError interface {
	error
	IsFatal() bool
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return e.err.Error()
}

func (e *fatalError) IsFatal() bool {
	return true
}

func (e *fatalError) Unwrap() error {
	return e.err
}

func NewFatalError(err error) FatalError {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsRetryable reports whether err explicitly asks to be retried.
func IsRetryable(err error) bool {
	var retryableErr RetryableError
	return errors.As(err, &retryableErr) && retryableErr.IsRetryable()
}

// IsFatal reports whether err explicitly forbids a retry.
func IsFatal(err error) bool {
	var fatalErr FatalError
	return errors.As(err, &fatalErr) && fatalErr.IsFatal()
}

// NotifyFunc is called before each wait with the number of the attempt that
// just failed, its error and the delay before the next one.
type NotifyFunc func(attempt int, err error, nextDelay time.Duration)

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  5 * time.Minute,
	}
}

// Retry runs fn with exponential backoff until it succeeds, returns a fatal
// error or the policy is exhausted. Errors that are not marked fatal are
// retried.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	return RetryWithCallback(ctx, policy, fn, nil)
}

func RetryWithCallback(ctx context.Context, policy Policy, fn func() error, onRetry NotifyFunc) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}

	var b backoff.BackOff
	if policy.MaxElapsedTime > 0 {
		b = ExponentialBackoffWithMaxElapsed(
			policy.InitialInterval,
			policy.MaxInterval,
			policy.MaxElapsedTime,
			policy.Multiplier,
		)
	} else {
		b = ExponentialBackoff(
			policy.InitialInterval,
			policy.MaxInterval,
			policy.Multiplier,
		)
	}

	b = backoff.WithContext(b, ctx)
	b = backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}

		if IsFatal(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	return backoff.RetryNotify(operation, b, notifier(onRetry))
}

// Forever runs fn until it succeeds, returns an error that is not marked
// retryable, or ctx is done. Retryable errors are retried without limit at a
// constant interval. When ctx ends first its error is returned.
func Forever(ctx context.Context, interval time.Duration, fn func() error, onRetry NotifyFunc) error {
	b := backoff.WithContext(ConstantBackoff(interval), ctx)

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	return backoff.RetryNotify(operation, b, notifier(onRetry))
}

func notifier(onRetry NotifyFunc) backoff.Notify {
	if onRetry == nil {
		return nil
	}

	attempt := 0
	return func(err error, next time.Duration) {
		attempt++
		onRetry(attempt, err, next)
	}
}
