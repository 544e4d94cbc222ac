package validation_test

import (
	"strings"
	"testing"

	"gatekeep/internal/validation"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		valid    bool
		expected validation.Reason
	}{
		{"empty", "", false, validation.ReasonRequired},
		{"whitespace only", "   ", false, validation.ReasonRequired},
		{"too short", "ab", false, validation.ReasonTooShort},
		{"too long", strings.Repeat("a", 21), false, validation.ReasonTooLong},
		{"hyphen", "bad-name", false, validation.ReasonInvalidChars},
		{"space inside", "bad name", false, validation.ReasonInvalidChars},
		{"unicode letter", "josé_1", false, validation.ReasonInvalidChars},
		{"minimum length", "abc", true, ""},
		{"maximum length", strings.Repeat("Z", 20), true, ""},
		{"mixed", "Alice_99", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validation.ValidateUsername(tt.input)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.expected, res.Reason)
			assert.Equal(t, validation.FieldUsername, res.Field)
			if !tt.valid {
				assert.NotEmpty(t, res.Message)
			}
		})
	}
}

func TestValidateUsername_Charset(t *testing.T) {
	// Every printable ASCII character either belongs to [a-zA-Z0-9_] or is rejected.
	for c := rune(33); c < 127; c++ {
		name := "ab" + string(c)
		res := validation.ValidateUsername(name)
		allowed := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
		if allowed {
			assert.True(t, res.Valid, "expected %q to pass", name)
		} else {
			assert.Equal(t, validation.ReasonInvalidChars, res.Reason, "expected %q to fail on charset", name)
		}
	}
}

func TestValidateUsername_Lengths(t *testing.T) {
	for n := 1; n <= 25; n++ {
		res := validation.ValidateUsername(strings.Repeat("x", n))
		switch {
		case n < validation.MinUsernameLength:
			assert.Equal(t, validation.ReasonTooShort, res.Reason, "length %d", n)
		case n > validation.MaxUsernameLength:
			assert.Equal(t, validation.ReasonTooLong, res.Reason, "length %d", n)
		default:
			assert.True(t, res.Valid, "length %d", n)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"", true},
		{"alice@example.com", true},
		{"Alice.Smith+tag@mail.example.org", true},
		{"alice@example", false},
		{"alice.example.com", false},
		{"alice@@example.com", false},
		{"ali ce@example.com", false},
		{"alice@exa mple.com", false},
		{"@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := validation.ValidateEmail(tt.input)
			assert.Equal(t, tt.valid, res.Valid)
			if !tt.valid {
				assert.Equal(t, validation.ReasonInvalidFormat, res.Reason)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		valid    bool
		expected validation.Reason
	}{
		{"empty", "", false, validation.ReasonRequired},
		{"too short", "ab1", false, validation.ReasonTooShort},
		{"too long", strings.Repeat("a1", 26), false, validation.ReasonTooLong},
		{"letters only", "abcdefgh", false, validation.ReasonWeakComposition},
		{"digits only", "12345678", false, validation.ReasonWeakComposition},
		{"symbols and digits", "!!!111", false, validation.ReasonWeakComposition},
		{"minimum", "abc123", true, ""},
		{"maximum", strings.Repeat("a", 49) + "1", true, ""},
		{"with symbols", "p@ssw0rd!", true, ""},
		{"multi-byte over hash limit", "a" + strings.Repeat("é", 40) + "1", false, validation.ReasonTooLong},
		{"multi-byte at hash limit", "a" + strings.Repeat("é", 35) + "1", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validation.ValidatePassword(tt.input)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.expected, res.Reason)
		})
	}
}

func TestValidatePassword_LengthBounds(t *testing.T) {
	for n := 2; n <= 55; n++ {
		pw := "1" + strings.Repeat("a", n-1)
		res := validation.ValidatePassword(pw)
		switch {
		case n < validation.MinPasswordLength:
			assert.Equal(t, validation.ReasonTooShort, res.Reason, "length %d", n)
		case n > validation.MaxPasswordLength:
			assert.Equal(t, validation.ReasonTooLong, res.Reason, "length %d", n)
		default:
			assert.True(t, res.Valid, "length %d", n)
		}
	}
}

func TestFirstFailure(t *testing.T) {
	_, failed := validation.FirstFailure(
		validation.ValidateUsername("alice"),
		validation.ValidatePassword("abc123"),
		validation.ValidateEmail(""),
	)
	assert.False(t, failed)

	res, failed := validation.FirstFailure(
		validation.ValidateUsername("alice"),
		validation.ValidatePassword("short"),
		validation.ValidateEmail("nope"),
	)
	assert.True(t, failed)
	assert.Equal(t, validation.FieldPassword, res.Field)
	assert.Equal(t, validation.ReasonTooShort, res.Reason)
}
