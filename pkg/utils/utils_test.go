package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	result := CategorizeError(nil)
	if result != "None" {
		t.Errorf("CategorizeError(nil) = %q, want %q", result, "None")
	}
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"NotFound", ErrNotFound, "NotFound"},
		{"NoText", ErrNoText, "NoText"},
		{"MalformedPage", ErrMalformedPage, "Content_Malformed"},
		{"RobotsDisallowed", ErrRobotsDisallowed, "Policy_Robots"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
		{"ServerHTTPError", ErrServerHTTPError, "HTTP_5xx"},
		{"OtherHTTPError", ErrOtherHTTPError, "HTTP_OtherStatus"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
		{"Connection", ErrConnection, "Connection_Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_WrappedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "NotFoundWinsOverClientStatus",
			err:      fmt.Errorf("%w: %w: status 404", ErrNotFound, ErrClientHTTPError),
			expected: "NotFound",
		},
		{
			name:     "RetryFailedServer",
			err:      fmt.Errorf("%w: %w: status 503", ErrRetryFailed, ErrServerHTTPError),
			expected: "RetryFailed_HTTPServer",
		},
		{
			name:     "RetryFailedConnection",
			err:      fmt.Errorf("%w: %w: dial tcp: connection refused", ErrRetryFailed, ErrConnection),
			expected: "RetryFailed_Connection",
		},
		{
			name:     "ConnectionRefused",
			err:      fmt.Errorf("%w: dial tcp 127.0.0.1:1: connection refused", ErrConnection),
			expected: "Connection_Refused",
		},
		{
			name:     "ConnectionEOF",
			err:      fmt.Errorf("%w: Get \"https://tululu.org/b7/\": EOF", ErrConnection),
			expected: "Connection_EOF",
		},
		{
			name:     "FilesystemPermission",
			err:      fmt.Errorf("%w: writing: %w", ErrFilesystem, os.ErrPermission),
			expected: "Filesystem_Permission",
		},
		{
			name:     "DoubleWrapped",
			err:      fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrMalformedPage)),
			expected: "Content_Malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ClientHTTPCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"403", fmt.Errorf("%w: status 403 Forbidden", ErrClientHTTPError), "HTTP_403"},
		{"401", fmt.Errorf("%w: status 401 Unauthorized", ErrClientHTTPError), "HTTP_401"},
		{"Generic4xx", fmt.Errorf("%w: status 400", ErrClientHTTPError), "HTTP_4xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ContextCanceled", context.Canceled, "System_ContextCanceled"},
		{"ContextDeadlineExceeded", context.DeadlineExceeded, "System_ContextDeadlineExceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_Unknown(t *testing.T) {
	err := errors.New("some completely unknown error")
	result := CategorizeError(err)
	if result != "Unknown" {
		t.Errorf("CategorizeError(%v) = %q, want %q", err, result, "Unknown")
	}
}

// --- Error class helpers ---

func TestIsSkippable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"Nil", nil, false},
		{"NotFound", fmt.Errorf("book 7: %w", ErrNotFound), true},
		{"Malformed", fmt.Errorf("book 7: %w", ErrMalformedPage), true},
		{"NoText", ErrNoText, true},
		{"ClientStatus", fmt.Errorf("%w: status 403", ErrClientHTTPError), true},
		{"ServerRetryFailed", fmt.Errorf("%w: %w", ErrRetryFailed, ErrServerHTTPError), true},
		{"Connection", fmt.Errorf("%w: EOF", ErrConnection), false},
		{"ConnectionRetryFailed", fmt.Errorf("%w: %w", ErrRetryFailed, ErrConnection), false},
		{"Filesystem", fmt.Errorf("%w: disk full", ErrFilesystem), false},
		{"Canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSkippable(tt.err); got != tt.expected {
				t.Errorf("IsSkippable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsHTTPStatusError(t *testing.T) {
	if !IsHTTPStatusError(fmt.Errorf("x: %w", ErrServerHTTPError)) {
		t.Error("server error should be an HTTP status error")
	}
	if IsHTTPStatusError(fmt.Errorf("x: %w", ErrConnection)) {
		t.Error("connection error should not be an HTTP status error")
	}
}

// --- SanitizeFilename Tests ---

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Simple", "hello", "hello"},
		{"Cyrillic", "Алиса в стране чудес", "Алиса в стране чудес"},
		{"BookFilename", "7.Путешествие: том 1.txt", "7.Путешествие_ том 1.txt"},
		{"WithSlash", "path/to/file", "path_to_file"},
		{"WithBackslash", "path\\to\\file", "path_to_file"},
		{"WithQuotes", `file"name`, "file_name"},
		{"ConsecutiveUnderscores", "a___b", "a_b"},
		{"LeadingTrailingSpaces", "  file  ", "file"},
		{"Empty", "", "untitled"},
		{"OnlyInvalidChars", "<>:", "untitled"},
		{"DotDot", "..", "untitled"},
		{"Dot", ".", "untitled"},
		{"QuestionMark", "file?name", "file_name"},
		{"NullChar", "file\x00name", "file_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename_LongCyrillicNames(t *testing.T) {
	longName := strings.Repeat("ж", 150) // 300 bytes

	result := SanitizeFilename(longName)
	if len(result) > maxFilenameLength {
		t.Errorf("SanitizeFilename(long) length = %d, want <= %d", len(result), maxFilenameLength)
	}
	if !strings.HasPrefix(longName, result) {
		t.Errorf("SanitizeFilename(long) should cut on a rune boundary, got %q", result)
	}
}

func TestSanitizeRelPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Nested", "books/1.Title.txt", filepath.Join("books", "1.Title.txt")},
		{"Traversal", "../../etc/passwd", filepath.Join("etc", "passwd")},
		{"Absolute", "/images/cover.jpg", filepath.Join("images", "cover.jpg")},
		{"Backslashes", `comments\1_comments.txt`, filepath.Join("comments", "1_comments.txt")},
		{"InvalidChars", "books/5.Что? Где?.txt", filepath.Join("books", "5.Что_ Где_.txt")},
		{"Empty", "", "untitled"},
		{"OnlyDots", "./..", "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeRelPath(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeRelPath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// --- CalculateBytesSHA256 Tests ---

func TestCalculateBytesSHA256(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string // SHA256 hex output
	}{
		{
			name:     "Empty",
			input:    nil,
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "HelloWorld",
			input:    []byte("hello world"),
			expected: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateBytesSHA256(tt.input)
			if result != tt.expected {
				t.Errorf("CalculateBytesSHA256(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// --- WrapErrorf Tests ---

func TestWrapErrorf_NilError(t *testing.T) {
	result := WrapErrorf(nil, "some context")
	if result != nil {
		t.Errorf("WrapErrorf(nil, ...) = %v, want nil", result)
	}
}

func TestWrapErrorf_WrapsError(t *testing.T) {
	wrapped := WrapErrorf(ErrNotFound, "book %s", "7")

	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("WrapErrorf() result should wrap original error")
	}
	expectedMsg := "book 7: resource not found"
	if wrapped.Error() != expectedMsg {
		t.Errorf("WrapErrorf() message = %q, want %q", wrapped.Error(), expectedMsg)
	}
}
