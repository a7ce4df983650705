package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers and pipeline components MUST use these constants instead of
// hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationEmptyAddress  ErrorCode = "validation_empty_address"
	ErrCodeValidationBuildingType  ErrorCode = "validation_invalid_building_type"
	ErrCodeValidationCompareCount  ErrorCode = "validation_compare_count_out_of_range"
	ErrCodeValidationInvalidMetric ErrorCode = "validation_invalid_heatmap_metric"
	ErrCodeValidationInvalidRegion ErrorCode = "validation_invalid_region"
	ErrCodeValidationInvalidEmail  ErrorCode = "validation_invalid_email"
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidJSON   ErrorCode = "validation_invalid_json"
	ErrCodeValidationFailed        ErrorCode = "validation_failed"

	// Limits (429)
	ErrCodeRateLimit      ErrorCode = "rate_limit_exceeded"
	ErrCodeLimitQueueFull ErrorCode = "limit_queue_full"

	// Not Found (404)
	ErrCodeNotFoundAnalysis ErrorCode = "not_found_analysis"

	// Conflict (409)
	ErrCodeConflictState ErrorCode = "conflict_invalid_state_transition"

	// Pipeline (fatal, reported on failed requests)
	ErrCodeUnresolvableAddress ErrorCode = "unresolvable_address"
	ErrCodeAmbiguousAddress    ErrorCode = "ambiguous_address"
	ErrCodeNoClimateData       ErrorCode = "no_climate_data"
	ErrCodeInsufficientRoof    ErrorCode = "insufficient_roof_area"
	ErrCodeProviderExhausted   ErrorCode = "provider_exhausted"
	ErrCodeTimeout             ErrorCode = "timeout_exceeded"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeInternalInvariant   ErrorCode = "internal_invariant_violation"
	ErrCodeUpstreamGeocoder    ErrorCode = "upstream_geocoder_unavailable"
	ErrCodeUpstreamImagery     ErrorCode = "upstream_imagery_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamTimeout     ErrorCode = "upstream_timeout"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case s == string(ErrCodeRateLimit), strings.HasPrefix(s, "limit_"):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeUnresolvableAddress),
		s == string(ErrCodeAmbiguousAddress),
		s == string(ErrCodeNoClimateData),
		s == string(ErrCodeInsufficientRoof):
		return http.StatusUnprocessableEntity // 422
	case s == string(ErrCodeTimeout), s == string(ErrCodeUpstreamTimeout):
		return http.StatusGatewayTimeout // 504
	case s == string(ErrCodeProviderExhausted), strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// IsTransient reports whether the code describes a provider condition that is
// expected to clear on its own. A provider rejecting the request outright
// (upstream_geocoder_unavailable, upstream_imagery_unavailable) is not.
func (c ErrorCode) IsTransient() bool {
	switch c {
	case ErrCodeUpstreamUnavailable, ErrCodeUpstreamRateLimited, ErrCodeUpstreamTimeout:
		return true
	}
	return false
}

// AppError is the standard application error type used throughout the service.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// NewInvariantError reports a broken internal precondition: malformed reference
// data, a provider returning impossible values, or a computation producing a
// value outside its documented domain.
func NewInvariantError(format string, args ...any) *AppError {
	return NewAppError(ErrCodeInternalInvariant, fmt.Sprintf(format, args...), nil)
}

// CodeOf extracts the ErrorCode from an error chain. Errors that carry no
// AppError report ErrCodeInternalUnexpected.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}

// IsTransient reports whether err is worth retrying. Context deadline errors
// count as transient only while the caller's own context is still alive, which
// means a per-attempt timeout fired rather than the overall request budget.
func IsTransient(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err() == nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code.IsTransient()
	}
	return false
}

// AmbiguousAddressError is returned by the geocoder when several candidates
// score within the ambiguity margin of each other. It is recoverable: Best holds
// the top-ranked location and Candidates the ranked shortlist shown to callers.
type AmbiguousAddressError struct {
	Best       Location
	Candidates []Candidate
}

// Error implements the error interface.
func (e *AmbiguousAddressError) Error() string {
	return fmt.Sprintf("%s: %d candidates within ambiguity margin", ErrCodeAmbiguousAddress, len(e.Candidates))
}
