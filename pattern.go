package sanitizex

import (
	"regexp"

	"github.com/pkg/errors"
)

// Mask is the replacement for every redacted value.
const Mask = "********"

// Default matching rules.
const (
	// DefaultFieldPattern matches key names that suggest sensitive content.
	// It is unanchored, so "user_password" and "X-Authorization" match too.
	DefaultFieldPattern = `(?i)(authorization|password|passwd|secret|password_confirmation|card_number|auth_pw)`
	// DefaultValuePattern matches strings shaped like a payment card number:
	// 13 to 16 digits, optionally separated by spaces or hyphens.
	DefaultValuePattern = `^(?:\d[ -]*?){13,16}$`
)

var (
	// ErrInvalidPattern is returned when a field or value pattern does not compile.
	ErrInvalidPattern = errors.New("sanitizex: invalid pattern")
	// ErrInvalidKey is returned when a payload map has a key that cannot be
	// read as a string or an integer.
	ErrInvalidKey = errors.New("sanitizex: invalid payload key")
	// ErrInvalidJSON is returned by the JSON helpers for malformed input.
	ErrInvalidJSON = errors.New("sanitizex: invalid json")
)

var (
	defaultFieldRe = regexp.MustCompile(DefaultFieldPattern)
	defaultValueRe = regexp.MustCompile(DefaultValuePattern)
)

// compilePattern compiles expr, tagging failures with ErrInvalidPattern.
// name identifies the pattern in the error message.
func compilePattern(name, expr string) (*regexp.Regexp, error) {
	switch expr {
	case DefaultFieldPattern:
		return defaultFieldRe, nil
	case DefaultValuePattern:
		return defaultValueRe, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidPattern, "%s %q: %v", name, expr, err)
	}
	return re, nil
}

// FieldPattern returns the expression tested against key names.
func (r *Redactor) FieldPattern() string {
	return r.fieldRe.String()
}

// SetFieldPattern replaces the key-name pattern. On error the current
// pattern is kept.
//
// Setters must not run concurrently with Process on the same Redactor.
func (r *Redactor) SetFieldPattern(expr string) error {
	re, err := compilePattern("field pattern", expr)
	if err != nil {
		return err
	}
	r.fieldRe = re
	return nil
}

// ValuePattern returns the expression tested against string values.
func (r *Redactor) ValuePattern() string {
	return r.valueRe.String()
}

// SetValuePattern replaces the value pattern. On error the current
// pattern is kept.
func (r *Redactor) SetValuePattern(expr string) error {
	re, err := compilePattern("value pattern", expr)
	if err != nil {
		return err
	}
	r.valueRe = re
	return nil
}
