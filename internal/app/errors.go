package app

import "fmt"

// DomainError is a failure with a client-facing shape. Handlers map it
// straight onto the error response; anything else collapses into a 500 so
// pipeline internals never leak.
type DomainError struct {
	Status  int
	Code    string
	Message string
	// Details carries field-level context for validation errors, nil
	// otherwise.
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
