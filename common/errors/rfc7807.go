package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ProblemDetails represents RFC 7807 compliant error response
// RFC 7807: Problem Details for HTTP APIs
type ProblemDetails struct {
	// Type is a URI reference that identifies the problem type
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Status is the HTTP status code
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence of the problem
	Detail string `json:"detail"`
	// Instance is a URI reference that identifies the specific occurrence of the problem
	Instance string `json:"instance,omitempty"`
	// Timestamp when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// TraceID for request tracing and debugging
	TraceID string `json:"traceId,omitempty"`
	// Errors contains field-specific validation errors
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents field-specific validation errors
type ValidationError struct {
	// Field name that failed validation
	Field string `json:"field"`
	// Message describing the validation failure
	Message string `json:"message"`
	// Code is machine-readable error code for the field
	Code string `json:"code,omitempty"`
}

// Standard error types with URIs
const (
	TypeValidationError    = "https://assetgw.dev/errors/validation-error"
	TypeUnauthorized       = "https://assetgw.dev/errors/unauthorized"
	TypeForbidden          = "https://assetgw.dev/errors/forbidden"
	TypeNotFound           = "https://assetgw.dev/errors/not-found"
	TypeMethodNotAllowed   = "https://assetgw.dev/errors/method-not-allowed"
	TypeConflict           = "https://assetgw.dev/errors/conflict"
	TypeInternalError      = "https://assetgw.dev/errors/internal-error"
	TypeNodeError          = "https://assetgw.dev/errors/node-error"
	TypeServiceUnavailable = "https://assetgw.dev/errors/service-unavailable"
)

// Standard error titles
const (
	TitleValidationError    = "Validation Error"
	TitleUnauthorized       = "Unauthorized"
	TitleForbidden          = "Forbidden"
	TitleNotFound           = "Not Found"
	TitleMethodNotAllowed   = "Method Not Allowed"
	TitleConflict           = "Conflict"
	TitleInternalError      = "Internal Server Error"
	TitleNodeError          = "Node Request Failed"
	TitleServiceUnavailable = "Service Unavailable"
)

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
	}
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// WithValidationErrors adds validation errors to the problem details
func (p *ProblemDetails) WithValidationErrors(errors []ValidationError) *ProblemDetails {
	p.Errors = errors
	return p
}

// AddValidationError adds a single validation error
func (p *ProblemDetails) AddValidationError(field, message, code string) *ProblemDetails {
	p.Errors = append(p.Errors, ValidationError{
		Field:   field,
		Message: message,
		Code:    code,
	})
	return p
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

// NewValidationError creates a validation error
func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeUnauthorized, TitleUnauthorized, http.StatusUnauthorized, detail, instance)
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeForbidden, TitleForbidden, http.StatusForbidden, detail, instance)
}

// NewConflictError reports a request that no longer fits the current state
func NewConflictError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeConflict, TitleConflict, http.StatusConflict, detail, instance)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNotFound, TitleNotFound, http.StatusNotFound, detail, instance)
}

// NewMethodNotAllowedError creates a method not allowed error
func NewMethodNotAllowedError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeMethodNotAllowed, TitleMethodNotAllowed, http.StatusMethodNotAllowed, detail, instance)
}

// NewInternalError creates an internal server error
func NewInternalError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

// NewNodeError reports a failed round trip to the blockchain node
func NewNodeError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNodeError, TitleNodeError, http.StatusBadGateway, detail, instance)
}

// NewServiceUnavailableError reports a feature that is not configured or not ready
func NewServiceUnavailableError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeServiceUnavailable, TitleServiceUnavailable, http.StatusServiceUnavailable, detail, instance)
}
