package types

// ErrorCode classifies a failure with a stable machine-readable code.
// Codes are part of the API contract: they never change meaning and new
// conditions get new codes rather than overloading existing ones.
type ErrorCode string

// Gateway and admission codes
const (
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidAPIKey   ErrorCode = "INVALID_API_KEY"
	ErrCodeAPIKeyExpired   ErrorCode = "API_KEY_EXPIRED"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeStudyNotFound   ErrorCode = "STUDY_NOT_FOUND"
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeConflict        ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
)

// Execution and recovery codes
const (
	ErrCodeCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	ErrCodeUpstreamRateLimit  ErrorCode = "RATE_LIMIT"
	ErrCodeAntiBot            ErrorCode = "ANTI_BOT"
	ErrCodeSessionExpired     ErrorCode = "SESSION_EXPIRED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeNetwork            ErrorCode = "NETWORK_ERROR"
	ErrCodeDeadlineExceeded   ErrorCode = "DEADLINE_EXCEEDED"
	ErrCodeCancelled          ErrorCode = "CANCELLED"
	ErrCodeSurfaceUnavailable ErrorCode = "SURFACE_UNAVAILABLE"
	ErrCodeUnknown            ErrorCode = "UNKNOWN"
)

// Retryable reports whether the same adapter may be retried after this
// failure. RATE_LIMIT retries with exponential backoff; TIMEOUT,
// NETWORK_ERROR and UNKNOWN retry after the constant base delay.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeUpstreamRateLimit, ErrCodeTimeout, ErrCodeNetwork, ErrCodeUnknown:
		return true
	default:
		return false
	}
}

// BreaksSession reports whether the failure invalidates the adapter's
// session. These conditions end the retry loop for the current adapter
// immediately since repeating the call cannot succeed.
func (c ErrorCode) BreaksSession() bool {
	return c == ErrCodeAntiBot || c == ErrCodeSessionExpired
}
