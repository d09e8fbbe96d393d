package resumes

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the caller is not an administrator.
	ErrUnauthorized = errors.New("resumes: unauthorized")
	// ErrValidation indicates a missing or malformed input field.
	ErrValidation = errors.New("resumes: validation failed")
	// ErrNotFound indicates the targeted resume version does not exist.
	ErrNotFound = errors.New("resumes: not found")
	// ErrPersistence indicates the record store failed to read or write.
	ErrPersistence = errors.New("resumes: persistence failure")
)

// ServiceError carries a dotted operation code alongside the failure class and cause.
type ServiceError struct {
	code string
	kind error
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes both the failure class and the underlying cause to errors.Is.
func (e *ServiceError) Unwrap() []error {
	unwrapped := make([]error, 0, 2)
	if e.kind != nil {
		unwrapped = append(unwrapped, e.kind)
	}
	if e.err != nil {
		unwrapped = append(unwrapped, e.err)
	}
	return unwrapped
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "resumes.service.new"
	opList       = "resumes.list"
	opCurrent    = "resumes.current"
	opCreate     = "resumes.create"
	opUpdate     = "resumes.update"
	opDelete     = "resumes.delete"
	opRecompute  = "resumes.recompute"
)

func newServiceError(operation, reason string, kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, kind: kind, err: cause}
}
