package errors

import (
	"strings"
	"unicode"
)

// maxRegionIDLength bounds region identifiers accepted from requests.
const maxRegionIDLength = 256

// ValidateRegionID validates a capturable region identifier.
// Region ids end up in file names, URLs and element ids, so the rules are
// conservative:
//   - No empty ids
//   - No control characters
//   - No path separators or traversal sequences
//   - Maximum length of 256 bytes
func ValidateRegionID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidRegion, "region id cannot be empty")
	}

	if len(id) > maxRegionIDLength {
		return New(ErrCodeInvalidRegion, "region id too long (max %d characters)", maxRegionIDLength)
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidRegion, "region id contains invalid control characters")
		}
	}

	for _, pattern := range []string{"..", "/", "\\"} {
		if strings.Contains(id, pattern) {
			return New(ErrCodeInvalidRegion, "region id contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateQuality checks a lossy encoder quality on the 1..100 scale.
func ValidateQuality(q int) error {
	if q < 1 || q > 100 {
		return New(ErrCodeInvalidFormat, "quality must be between 1 and 100, got %d", q)
	}
	return nil
}
