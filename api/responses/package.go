// Package responses writes the success bodies of the gateway API. Errors are
// rendered as RFC 7807 problems by the apiutil middleware.
package responses
