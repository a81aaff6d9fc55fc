package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed      = errors.New("request failed after all retries")       // Wraps the last underlying error
	ErrConnection       = errors.New("connection error")                        // Transport-level failure, no HTTP response
	ErrNotFound         = errors.New("resource not found")                      // Redirect-as-not-found, 404, 410
	ErrNoText           = errors.New("book has no downloadable text")           // Text endpoint redirected or failed
	ErrMalformedPage    = errors.New("malformed page")                          // Expected page structure absent
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")                 // Wraps original error/status
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")                 // Wraps original error/status
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")              // Wraps original error/status
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	ErrParsing          = errors.New("parsing error")    // Wraps specific parsing error (HTML, URL, JSON)
	ErrFilesystem       = errors.New("filesystem error") // Wraps os errors
	ErrDatabase         = errors.New("database error")   // Wraps badger errors
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrConfigValidation = errors.New("configuration validation error")
)

// WrapErrorf prefixes err with a formatted message, keeping it unwrappable.
// Returns nil when err is nil.
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsHTTPStatusError reports whether err came from a non-2xx HTTP response.
func IsHTTPStatusError(err error) bool {
	return errors.Is(err, ErrClientHTTPError) ||
		errors.Is(err, ErrServerHTTPError) ||
		errors.Is(err, ErrOtherHTTPError)
}

// IsSkippable reports whether err only affects the current unit of work.
// Connection failures, filesystem failures and cancellation are not skippable.
func IsSkippable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrFilesystem) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNoText) ||
		errors.Is(err, ErrMalformedPage) ||
		errors.Is(err, ErrRobotsDisallowed) ||
		errors.Is(err, ErrRetryFailed) ||
		errors.Is(err, ErrParsing) ||
		errors.Is(err, ErrResponseBodyRead) ||
		IsHTTPStatusError(err)
}

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRetryFailed):
		if errors.Is(err, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		if errors.Is(err, ErrClientHTTPError) {
			return "RetryFailed_HTTPClient"
		}
		if errors.Is(err, ErrConnection) {
			return "RetryFailed_Connection"
		}
		return "RetryFailed_Unknown"
	case errors.Is(err, ErrConnection):
		return categorizeNetwork(err, "Connection")
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrNoText):
		return "NoText"
	case errors.Is(err, ErrMalformedPage):
		return "Content_Malformed"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 401 ") {
			return "HTTP_401"
		}
		if strings.Contains(errMsg, " 429 ") {
			return "HTTP_429"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	return categorizeNetwork(err, "Network")
}

// categorizeNetwork inspects common transport failures by type and message.
func categorizeNetwork(err error, prefix string) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return prefix + "_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return prefix + "_Timeout"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return prefix + "_Refused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return prefix + "_DNSLookup"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return prefix + "_Reset"
	case strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate"):
		return prefix + "_TLS"
	case strings.Contains(lowerErrMsg, "eof"):
		return prefix + "_EOF"
	}
	if prefix == "Network" {
		return "Unknown"
	}
	return prefix + "_Other"
}
