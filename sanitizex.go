// Package sanitizex redacts sensitive data from error and event payloads
// before they are handed to a remote collector.
//
// A Redactor walks a nested payload of maps, slices and scalars and replaces
// with Mask every value that:
//   - sits under a key matching the field pattern (password, secret, ...)
//   - is a string shaped like a payment card number
//   - is the configured session cookie under request.cookies
//
// Containers with more than MaxItems entries are cut down to their first
// MaxItems entries before they are walked.
//
// Basic Usage:
//
//	r, err := sanitizex.New(sanitizex.WithSessionCookieName("PHPSESSID"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	payload := map[string]any{"password": "hunter2", "note": "hello"}
//	if _, err := r.Process(payload); err != nil {
//		log.Fatal(err)
//	}
//	// payload["password"] == "********"
package sanitizex

import (
	"regexp"
	"sync/atomic"

	"go.uber.org/zap"
)

// MaxItems is the largest number of direct entries a container keeps.
const MaxItems = 100

// defaultRedactor backs the package-level Process.
var defaultRedactor atomic.Pointer[Redactor]

func init() {
	r, err := New()
	if err != nil {
		panic(err)
	}
	defaultRedactor.Store(r)
}

// Redactor masks sensitive values in nested payloads.
//
// Process may be called from several goroutines on different payloads.
// The pattern setters are not synchronized with Process.
type Redactor struct {
	fieldRe       *regexp.Regexp
	valueRe       *regexp.Regexp
	sessionCookie string
	logger        *zap.Logger
}

// New creates a Redactor with the given options.
// Returns an error wrapping ErrInvalidPattern if a pattern does not compile.
//
// Example:
//
//	r, err := sanitizex.New(
//	    sanitizex.WithSessionCookieName("PHPSESSID"),
//	    sanitizex.WithValuePattern(`^\d{6}$`),
//	)
func New(opts ...Option) (*Redactor, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	fieldRe, err := compilePattern("field pattern", cfg.FieldPattern)
	if err != nil {
		return nil, err
	}
	valueRe, err := compilePattern("value pattern", cfg.ValuePattern)
	if err != nil {
		return nil, err
	}

	return &Redactor{
		fieldRe:       fieldRe,
		valueRe:       valueRe,
		sessionCookie: cfg.SessionCookieName,
		logger:        newLogger(cfg),
	}, nil
}

// SessionCookieName returns the cookie masked under request.cookies.
func (r *Redactor) SessionCookieName() string {
	return r.sessionCookie
}

// Process redacts payload.
//
// Maps and slices reachable from payload are modified in place. The returned
// value is the sanitized payload; it only differs from the argument when the
// root itself had to be replaced, i.e. a masked root scalar, a root slice
// longer than MaxItems or a root array (arrays are redacted as a copy).
// Callers holding such a root should use the result.
//
// Any map, slice or array is walked. Byte slices, structs and pointers are
// leaves.
//
// The only error is a map key that is neither a string nor an integer,
// reported as ErrInvalidKey.
func (r *Redactor) Process(payload any) (any, error) {
	out, err := r.walk(payload, 0, "")
	if err != nil {
		r.logger.Error("payload rejected",
			zap.String("severity", severityError),
			zap.Error(err),
		)
		return payload, err
	}
	r.sanitizeHTTP(out)
	return out, nil
}

// Process redacts payload with the default Redactor.
func Process(payload any) (any, error) {
	return defaultRedactor.Load().Process(payload)
}

// Default returns the Redactor used by the package-level Process.
func Default() *Redactor {
	return defaultRedactor.Load()
}

// SetDefault replaces the Redactor used by the package-level Process.
// A nil r is ignored.
func SetDefault(r *Redactor) {
	if r == nil {
		return
	}
	defaultRedactor.Store(r)
}
