package models

// BookStatus represents the outcome of processing one book
type BookStatus string

const (
	BookStatusUnset         BookStatus = ""               // Zero value = unset/unknown
	BookStatusSuccess       BookStatus = "success"        // Book saved and added to the catalog
	BookStatusNotFound      BookStatus = "not_found"      // Detail page redirected or returned 404/410
	BookStatusMalformed     BookStatus = "malformed"      // Detail page lacked an expected element
	BookStatusNoText        BookStatus = "no_text"        // Text endpoint had nothing for this id
	BookStatusHTTPError     BookStatus = "http_error"     // Other status error, unit skipped
	BookStatusRobots        BookStatus = "skipped_robots" // Disallowed by robots.txt
	BookStatusFailure       BookStatus = "failure"        // Unrecoverable error, run aborted
	BookStatusRetryExceeded BookStatus = "retry_exceeded" // Connection retry budget exhausted
)

// String implements fmt.Stringer for logging
func (s BookStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known recorded value
func (s BookStatus) IsValid() bool {
	switch s {
	case BookStatusSuccess, BookStatusNotFound, BookStatusMalformed, BookStatusNoText,
		BookStatusHTTPError, BookStatusRobots, BookStatusFailure, BookStatusRetryExceeded:
		return true
	}
	return false
}

// IsSkip reports whether the status marks a per-book skip that lets the run continue
func (s BookStatus) IsSkip() bool {
	switch s {
	case BookStatusNotFound, BookStatusMalformed, BookStatusNoText, BookStatusHTTPError, BookStatusRobots:
		return true
	}
	return false
}
