package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199). Fatal before any loop starts.
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidTimeframe     ErrorCode = 102
	ErrCodeInvalidBackend       ErrorCode = 103
	ErrCodeMissingParameter     ErrorCode = 104

	// Data errors (200-299). The run or iteration is skipped.
	ErrCodeInsufficientData ErrorCode = 200
	ErrCodeNoDataFound      ErrorCode = 201
	ErrCodeQueryFailed      ErrorCode = 202

	// Decision errors (300-399). The action is skipped, never retried.
	ErrCodeInvariantViolation ErrorCode = 300
	ErrCodeNoOpenPosition     ErrorCode = 301
	ErrCodePositionExists     ErrorCode = 302

	// State errors (400-499)
	ErrCodeStateReadFailed  ErrorCode = 400
	ErrCodeStateWriteFailed ErrorCode = 401
	ErrCodeVersionMismatch  ErrorCode = 402

	// Output errors (500-599)
	ErrCodeWriterFailed ErrorCode = 500

	// Market data errors (700-799). Transient, retried with backoff.
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataWriteFailed ErrorCode = 701
	ErrCodeMarketDataParseFailed ErrorCode = 702
	ErrCodeRetryExhausted        ErrorCode = 703

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800
)

// IsTransient reports whether the code belongs to a failure class worth retrying.
func (c ErrorCode) IsTransient() bool {
	return c == ErrCodeMarketDataFetchFailed || c == ErrCodeUnknown
}
