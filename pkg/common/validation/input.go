package validation

import (
	"fmt"
	"mime"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

// Field limits, in runes
const (
	MaxNameLength        = 200
	MaxDescriptionLength = 4000
	MaxCatalogRefLength  = 255
	MaxUserIDLength      = 128
	MaxContentTypeLength = 255
)

// ValidationError represents a validation error. It matches
// vaulterr.ErrInvalidInput under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return vaulterr.ErrInvalidInput
}

// SanitizeInput removes null bytes and control characters other than
// newlines and tabs, then trims surrounding whitespace.
func SanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}

	return strings.TrimSpace(result.String())
}

func checkText(field, value string, max int, multiline bool) error {
	if !utf8.ValidString(value) {
		return ValidationError{Field: field, Message: "not valid UTF-8"}
	}
	if n := utf8.RuneCountInString(value); n > max {
		return ValidationError{Field: field, Message: fmt.Sprintf("too long (%d characters, max %d)", n, max)}
	}
	for _, r := range value {
		if unicode.IsControl(r) && !(multiline && (r == '\n' || r == '\t')) {
			return ValidationError{Field: field, Message: "contains control characters"}
		}
	}
	return nil
}

// ValidateResourceName checks a resource display name
func ValidateResourceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError{Field: "name", Message: "name cannot be empty"}
	}
	return checkText("name", name, MaxNameLength, false)
}

// ValidateDescription checks a resource description. Empty is allowed.
func ValidateDescription(description string) error {
	return checkText("description", description, MaxDescriptionLength, true)
}

// ValidateCatalogRef checks an external catalog reference. Empty is allowed.
func ValidateCatalogRef(ref string) error {
	if err := checkText("catalog_ref", ref, MaxCatalogRefLength, false); err != nil {
		return err
	}
	if strings.ContainsFunc(ref, unicode.IsSpace) {
		return ValidationError{Field: "catalog_ref", Message: "contains whitespace"}
	}
	return nil
}

// ValidateUserID checks a user identifier as supplied by the identity provider
func ValidateUserID(userID string) error {
	if userID == "" {
		return ValidationError{Field: "user_id", Message: "user id cannot be empty"}
	}
	if err := checkText("user_id", userID, MaxUserIDLength, false); err != nil {
		return err
	}
	if strings.ContainsFunc(userID, unicode.IsSpace) {
		return ValidationError{Field: "user_id", Message: "contains whitespace"}
	}
	if strings.ContainsAny(userID, "/\\") {
		return ValidationError{Field: "user_id", Message: "contains path separators"}
	}
	return nil
}

// ValidateContentType checks that a declared media type parses as
// type/subtype. The declared value is stored as given.
func ValidateContentType(contentType string) error {
	if len(contentType) > MaxContentTypeLength {
		return ValidationError{Field: "content_type", Message: "content type too long"}
	}
	if strings.ContainsAny(contentType, "\r\n") {
		return ValidationError{Field: "content_type", Message: "content type contains newline characters"}
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ValidationError{Field: "content_type", Message: "malformed content type"}
	}
	if !strings.Contains(mediaType, "/") {
		return ValidationError{Field: "content_type", Message: "content type must be type/subtype"}
	}
	return nil
}
