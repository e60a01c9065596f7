package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// Reconciliation error taxonomy. Callers discriminate with errors.Is:
// - validation errors surface as 400 and are never retried
// - authentication errors mean an event failed signature verification and was not applied
// - transient gateway errors are retried with backoff inside the gateway client,
//   then surfaced once attempts are exhausted
var (
	ErrorValidation       = errors.New("validation failed")
	ErrorAuthentication   = errors.New("signature verification failed")
	ErrorConflict         = errors.New("record already in a final state")
	ErrorTransientGateway = errors.New("payment gateway unavailable")
)

func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrorValidation}, args...)...)
}

func AuthenticationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrorAuthentication}, args...)...)
}

func ConflictErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrorConflict}, args...)...)
}

func TransientGatewayErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrorTransientGateway}, args...)...)
}
