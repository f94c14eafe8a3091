package apiutil

import (
	stderrors "errors"

	"github.com/MoMannn/wanchain-example/common/errors"
	"github.com/gin-gonic/gin"
)

// ProblemMapper converts a handler error into RFC 7807 problem details.
// Returning nil falls back to a generic internal error.
type ProblemMapper func(err error, instance string) *errors.ProblemDetails

// RFC7807ErrorMiddleware creates a middleware that renders the last error attached
// with c.Error as an RFC 7807 response
func RFC7807ErrorMiddleware(mapper ProblemMapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		instance := c.Request.URL.Path

		var problemDetails *errors.ProblemDetails
		switch {
		case stderrors.As(err.Err, &problemDetails):
			if problemDetails.Instance == "" {
				problemDetails.Instance = instance
			}
		case err.IsType(gin.ErrorTypeBind):
			problemDetails = errors.NewValidationError("Request binding failed: "+err.Error(), instance)
		case mapper != nil:
			problemDetails = mapper(err.Err, instance)
		}

		if problemDetails == nil {
			// Generic error - don't expose internal details
			problemDetails = errors.NewInternalError("An unexpected error occurred", instance)
		}

		RFC7807ErrorResponse(c, problemDetails)
	}
}

// GetTraceID extracts trace ID from context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}

	return c.GetHeader(RequestIDHeader)
}

// RFC7807ErrorResponse writes an RFC 7807 compliant error response
func RFC7807ErrorResponse(c *gin.Context, problemDetails *errors.ProblemDetails) {
	if traceID := GetTraceID(c); traceID != "" && problemDetails.TraceID == "" {
		problemDetails.WithTraceID(traceID)
	}

	c.Header("Content-Type", "application/problem+json")
	c.JSON(problemDetails.Status, problemDetails)
}

// RFC7807NotFoundResponse writes a not found error response
func RFC7807NotFoundResponse(c *gin.Context, detail string) {
	RFC7807ErrorResponse(c, errors.NewNotFoundError(detail, c.Request.URL.Path))
}

// RFC7807MethodNotAllowedResponse writes a method not allowed error response
func RFC7807MethodNotAllowedResponse(c *gin.Context, detail string) {
	RFC7807ErrorResponse(c, errors.NewMethodNotAllowedError(detail, c.Request.URL.Path))
}
