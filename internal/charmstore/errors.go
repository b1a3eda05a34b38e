package charmstore

import "errors"

const (
	entityNotFoundMessageConstant      = "charmstore entity not found"
	interactionRequiredMessageConstant = "charmstore requires interactive authentication"
	serverTransientMessageConstant     = "charmstore transient server error"
)

// ErrEntityNotFound indicates the requested charm or revision is unknown to
// the charmstore. Callers skip rather than retry.
var ErrEntityNotFound = errors.New(entityNotFoundMessageConstant)

// ErrInteractionRequired indicates the charmstore demanded credentials the
// client cannot supply. Callers skip rather than retry.
var ErrInteractionRequired = errors.New(interactionRequiredMessageConstant)

// ErrServerTransient indicates a retryable charmstore server failure.
var ErrServerTransient = errors.New(serverTransientMessageConstant)
