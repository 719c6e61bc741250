package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

func TestValidateResourceName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "Summer 2026", false},
		{"unicode", "Été à Montréal", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"control character", "bad\x07name", true},
		{"newline", "two\nlines", true},
		{"too long", strings.Repeat("a", MaxNameLength+1), true},
		{"max length", strings.Repeat("é", MaxNameLength), false},
		{"invalid utf8", "bad\xffname", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResourceName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResourceName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrorIsInvalidInput(t *testing.T) {
	err := ValidateResourceName("")
	if !errors.Is(err, vaulterr.ErrInvalidInput) {
		t.Errorf("Expected validation error to match ErrInvalidInput, got %v", err)
	}

	var ve ValidationError
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Errorf("Expected ValidationError for field name, got %v", err)
	}
}

func TestValidateDescription(t *testing.T) {
	if err := ValidateDescription(""); err != nil {
		t.Errorf("Empty description should be allowed: %v", err)
	}
	if err := ValidateDescription("line one\nline two\twith tab"); err != nil {
		t.Errorf("Multiline description should be allowed: %v", err)
	}
	if err := ValidateDescription("bell\x07"); err == nil {
		t.Error("Expected error for control character")
	}
	if err := ValidateDescription(strings.Repeat("x", MaxDescriptionLength+1)); err == nil {
		t.Error("Expected error for long description")
	}
}

func TestValidateCatalogRef(t *testing.T) {
	if err := ValidateCatalogRef(""); err != nil {
		t.Errorf("Empty catalog ref should be allowed: %v", err)
	}
	if err := ValidateCatalogRef("tmdb:603"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := ValidateCatalogRef("tmdb 603"); err == nil {
		t.Error("Expected error for whitespace")
	}
}

func TestValidateUserID(t *testing.T) {
	valid := []string{"alice", "alice@example.com", "svc-42"}
	for _, id := range valid {
		if err := ValidateUserID(id); err != nil {
			t.Errorf("ValidateUserID(%q) unexpected error: %v", id, err)
		}
	}

	invalid := []string{"", "al ice", "../etc", "a\\b", "tab\tuser", strings.Repeat("u", MaxUserIDLength+1)}
	for _, id := range invalid {
		if err := ValidateUserID(id); err == nil {
			t.Errorf("ValidateUserID(%q) expected error", id)
		}
	}
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"image/jpeg", false},
		{"Image/JPEG", false},
		{"text/plain; charset=UTF-8", false},
		{"jpeg", true},
		{"", true},
		{"image/png\r\nX-Injected: 1", true},
		{"image/" + strings.Repeat("x", MaxContentTypeLength), true},
	}

	for _, tt := range tests {
		err := ValidateContentType(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateContentType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  hello  ", "hello"},
		{"nul\x00byte", "nulbyte"},
		{"bell\x07ring", "bellring"},
		{"keep\nnewline", "keep\nnewline"},
	}

	for _, tt := range tests {
		if got := SanitizeInput(tt.input); got != tt.want {
			t.Errorf("SanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
