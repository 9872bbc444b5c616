package sanitizex

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds Redactor configuration options.
type Config struct {
	// FieldPattern is tested against the key of every leaf.
	// Default: DefaultFieldPattern
	FieldPattern string

	// ValuePattern is tested against every string leaf.
	// Default: DefaultValuePattern
	ValuePattern string

	// SessionCookieName is the cookie masked under request.cookies regardless
	// of the patterns. Empty disables the cookie step.
	SessionCookieName string

	// ServiceName is attached to diagnostic log entries as "application_name".
	ServiceName string

	// Level is the minimum level of diagnostic logs.
	// Default: zapcore.InfoLevel
	Level zapcore.Level

	// Output receives diagnostic logs as JSON lines. When nil and Logger is
	// nil, diagnostics are discarded.
	Output io.Writer

	// Logger overrides the logger built from Level and Output.
	Logger *zap.Logger
}

// Option configures a Redactor.
type Option func(*Config)

// WithFieldPattern overrides the key-name pattern.
//
// Example:
//
//	r, _ := sanitizex.New(sanitizex.WithFieldPattern(`(?i)(token|password)`))
func WithFieldPattern(expr string) Option {
	return func(c *Config) {
		c.FieldPattern = expr
	}
}

// WithValuePattern overrides the value pattern.
func WithValuePattern(expr string) Option {
	return func(c *Config) {
		c.ValuePattern = expr
	}
}

// WithSessionCookieName sets the session cookie that is always masked when
// present under request.cookies.
//
// Example:
//
//	r, _ := sanitizex.New(sanitizex.WithSessionCookieName("PHPSESSID"))
func WithSessionCookieName(name string) Option {
	return func(c *Config) {
		c.SessionCookieName = name
	}
}

// WithProcessorOptions applies the non-empty fields of opts. Fields left
// empty keep whatever value they already had.
func WithProcessorOptions(opts ProcessorOptions) Option {
	return func(c *Config) {
		if opts.FieldsRe != "" {
			c.FieldPattern = opts.FieldsRe
		}
		if opts.ValuesRe != "" {
			c.ValuePattern = opts.ValuesRe
		}
		if opts.SessionCookieName != "" {
			c.SessionCookieName = opts.SessionCookieName
		}
	}
}

// WithServiceName sets the service name attached to diagnostic logs.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithOutput sets the writer for diagnostic logs.
//
// Example:
//
//	r, _ := sanitizex.New(
//	    sanitizex.WithOutput(os.Stderr),
//	    sanitizex.WithDebug(true),
//	)
func WithOutput(w io.Writer) Option {
	return func(c *Config) {
		c.Output = w
	}
}

func WithDebug(debug bool) Option {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	return func(c *Config) {
		c.Level = level
	}
}

// WithLogger routes diagnostics to an existing zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// defaultConfig returns the default Redactor configuration.
func defaultConfig() *Config {
	return &Config{
		FieldPattern: DefaultFieldPattern,
		ValuePattern: DefaultValuePattern,
		ServiceName:  "unknown",
		Level:        zapcore.InfoLevel,
	}
}
