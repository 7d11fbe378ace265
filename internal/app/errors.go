package app

import "fmt"

// DomainError carries the HTTP status and stable code a handler wants on the
// wire. writeError serializes it as {code, error, details?}. Codes such as
// VALIDATION_ERROR, DUPLICATE_URL and TIER_LIMIT are part of the API surface
// and clients match on them, so they never change spelling.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// domainError lets the service layer pick a response without importing HTTP
// concerns into store or importer code. Details is optional structured
// payload, e.g. the conflicting site id on a DUPLICATE_URL conflict.
func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
