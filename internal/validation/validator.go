// Package validation holds the input rules shared by the registration pipeline,
// the interactive pre-check endpoint and the CLI. Every function here is pure.
package validation

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Reason identifies why a field was rejected.
type Reason string

const (
	ReasonRequired        Reason = "Required"
	ReasonTooShort        Reason = "TooShort"
	ReasonTooLong         Reason = "TooLong"
	ReasonInvalidChars    Reason = "InvalidChars"
	ReasonInvalidFormat   Reason = "InvalidFormat"
	ReasonWeakComposition Reason = "WeakComposition"
)

// Field names reported in results.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
)

// Length bounds, counted in characters.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
	MinPasswordLength = 6
	MaxPasswordLength = 50
)

// MaxPasswordBytes is the most input bcrypt hashes. A password within
// MaxPasswordLength characters can still exceed it with multi-byte runes.
const MaxPasswordBytes = 72

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRegex    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	letterRegex   = regexp.MustCompile(`[a-zA-Z]`)
	digitRegex    = regexp.MustCompile(`[0-9]`)
)

// validate is configured once and only read afterwards; validator.Validate is
// safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	register := func(tag string, re ...*regexp.Regexp) {
		err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			for _, r := range re {
				if !r.MatchString(s) {
					return false
				}
			}
			return true
		})
		if err != nil {
			panic(err)
		}
	}
	register("username_chars", usernameRegex)
	register("email_shape", emailRegex)
	register("letter_and_digit", letterRegex, digitRegex)
	err := v.RegisterValidation("max_bytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxPasswordBytes
	})
	if err != nil {
		panic(err)
	}
	return v
}

// Result is the verdict of a single field check.
type Result struct {
	Field   string `json:"field"`
	Valid   bool   `json:"valid"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type rule struct {
	tag     string
	reason  Reason
	message string
}

var usernameRules = []rule{
	{"min=3", ReasonTooShort, "Username must be at least 3 characters long"},
	{"max=20", ReasonTooLong, "Username cannot exceed 20 characters"},
	{"username_chars", ReasonInvalidChars, "Username can only contain letters, numbers and underscores"},
}

var passwordRules = []rule{
	{"required", ReasonRequired, "Password is required"},
	{"min=6", ReasonTooShort, "Password must be at least 6 characters long"},
	{"max=50", ReasonTooLong, "Password cannot exceed 50 characters"},
	{"max_bytes", ReasonTooLong, "Password is too long"},
	{"letter_and_digit", ReasonWeakComposition, "Password must contain at least one letter and one number"},
}

var emailRules = []rule{
	{"email_shape", ReasonInvalidFormat, "Please provide a valid email address"},
}

// check applies rules in order and stops at the first failure.
func check(field, value string, rules []rule) Result {
	for _, r := range rules {
		if err := validate.Var(value, r.tag); err != nil {
			return Result{Field: field, Reason: r.reason, Message: r.message}
		}
	}
	return Result{Field: field, Valid: true}
}

// ValidateUsername checks presence, length and charset of a username.
func ValidateUsername(username string) Result {
	if strings.TrimSpace(username) == "" {
		return Result{Field: FieldUsername, Reason: ReasonRequired, Message: "Username is required"}
	}
	return check(FieldUsername, username, usernameRules)
}

// ValidateEmail checks the shape of an optional email. Empty input passes.
func ValidateEmail(email string) Result {
	if email == "" {
		return Result{Field: FieldEmail, Valid: true}
	}
	return check(FieldEmail, email, emailRules)
}

// ValidatePassword checks presence, length and composition of a password.
func ValidatePassword(password string) Result {
	return check(FieldPassword, password, passwordRules)
}

// FirstFailure returns the first failed result, if any.
func FirstFailure(results ...Result) (Result, bool) {
	for _, r := range results {
		if !r.Valid {
			return r, true
		}
	}
	return Result{}, false
}
