package utils

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// --- Filename Sanitization ---
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`) // Characters invalid in Windows/Unix filenames
var consecutiveUnderscores = regexp.MustCompile(`_+`)                  // Pattern to replace multiple underscores with one
const maxFilenameLength = 200                                          // Max length in bytes for sanitized filenames

// SanitizeFilename cleans a string to be safe for use as a filename component
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")       // Replace invalid chars with underscore
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_") // Collapse multiple underscores
	sanitized = strings.Trim(sanitized, "_ ")                           // Remove leading/trailing underscores or spaces

	// Titles are mostly Cyrillic, so cut on a rune boundary
	if len(sanitized) > maxFilenameLength {
		cut := maxFilenameLength
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = strings.Trim(sanitized[:cut], "_ ")
	}

	// A bare "." or ".." would escape the target directory
	if strings.Trim(sanitized, ".") == "" {
		sanitized = ""
	}

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// SanitizeRelPath sanitizes every component of a slash or OS separated relative path.
// Empty, "." and ".." components are dropped, so the result never climbs out of its root.
func SanitizeRelPath(relPath string) string {
	normalized := strings.ReplaceAll(relPath, "\\", "/")
	parts := strings.Split(normalized, "/")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" || trimmed == "." || trimmed == ".." {
			continue
		}
		clean = append(clean, SanitizeFilename(trimmed))
	}
	if len(clean) == 0 {
		return "untitled"
	}
	return filepath.Join(clean...)
}
