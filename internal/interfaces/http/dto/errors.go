package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a dependency cannot take more work
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeValidation is used when a payload fails validation
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Webhook error codes
const (
	ErrCodeSignatureInvalid      = "ERR_SIGNATURE_INVALID"
	ErrCodeVendorNotFound        = "ERR_VENDOR_NOT_FOUND"
	ErrCodeVendorInactive        = "ERR_VENDOR_INACTIVE"
	ErrCodeCapabilityUnsupported = "ERR_CAPABILITY_UNSUPPORTED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Vendors retry non-2xx deliveries, so only transient failures map to 5xx
	ErrCodeSignatureInvalid:      http.StatusUnauthorized,
	ErrCodeVendorNotFound:        http.StatusNotFound,
	ErrCodeVendorInactive:        http.StatusConflict,
	ErrCodeCapabilityUnsupported: http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
