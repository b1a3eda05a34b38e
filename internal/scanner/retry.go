package scanner

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	listingRetryAttemptsConstant        = 3
	listingRetryInitialIntervalConstant = 200 * time.Millisecond
	listingRetryMaximumIntervalConstant = 2 * time.Second
	contentRetryAttemptsConstant        = 10
	contentRetryInitialIntervalConstant = 500 * time.Millisecond
	contentRetryMaximumIntervalConstant = 30 * time.Second
)

// RetryPolicy is an immutable description of a bounded retry loop. Policies
// are evaluated fresh for every guarded call, so no retry state leaks from
// one revision to the next.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaximumInterval time.Duration
}

// ListingRetryPolicy bounds file-listing fetches at three attempts, matching
// the budget the charmstore historically tolerated for manifest lookups.
func ListingRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     listingRetryAttemptsConstant,
		InitialInterval: listingRetryInitialIntervalConstant,
		MaximumInterval: listingRetryMaximumIntervalConstant,
	}
}

// ContentRetryPolicy bounds provenance-file fetches. The file is known to
// exist once it appears in the listing, so the budget is generous, but it is
// a ceiling rather than an open loop against a persistently failing store.
func ContentRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     contentRetryAttemptsConstant,
		InitialInterval: contentRetryInitialIntervalConstant,
		MaximumInterval: contentRetryMaximumIntervalConstant,
	}
}

func (policy RetryPolicy) isZero() bool {
	return policy.MaxAttempts == 0
}

// executeWithPolicy runs the operation under the policy, retrying only errors
// the classifier reports as retryable. Non-retryable errors abort immediately
// and surface unchanged.
func executeWithPolicy[T any](executionContext context.Context, policy RetryPolicy, retryable func(error) bool, operation func() (T, error)) (T, error) {
	exponentialBackOff := backoff.NewExponentialBackOff()
	exponentialBackOff.InitialInterval = policy.InitialInterval
	exponentialBackOff.MaxInterval = policy.MaximumInterval

	return backoff.Retry(
		executionContext,
		func() (T, error) {
			operationResult, operationError := operation()
			if operationError != nil && !retryable(operationError) {
				return operationResult, backoff.Permanent(operationError)
			}
			return operationResult, operationError
		},
		backoff.WithBackOff(exponentialBackOff),
		backoff.WithMaxTries(policy.MaxAttempts),
	)
}
