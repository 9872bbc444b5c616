package sanitizex

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvFieldsRe      = "SANITIZEX_FIELDS_RE"
	EnvValuesRe      = "SANITIZEX_VALUES_RE"
	EnvSessionCookie = "SANITIZEX_SESSION_COOKIE"
)

// ProcessorOptions is the externally supplied override set, usually loaded
// from a YAML file. Empty fields keep the defaults.
//
// Example file:
//
//	fields_re: '(?i)(password|token)'
//	session_cookie_name: PHPSESSID
type ProcessorOptions struct {
	FieldsRe          string `yaml:"fields_re"`
	ValuesRe          string `yaml:"values_re"`
	SessionCookieName string `yaml:"session_cookie_name"`
}

// ParseProcessorOptions decodes YAML processor options.
func ParseProcessorOptions(data []byte) (ProcessorOptions, error) {
	var opts ProcessorOptions
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return ProcessorOptions{}, errors.Wrap(err, "failed to parse processor options")
	}
	return opts, nil
}

// LoadProcessorOptions reads YAML processor options from path and applies
// environment overrides on top.
func LoadProcessorOptions(path string) (ProcessorOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProcessorOptions{}, errors.Wrap(err, "failed to read processor options")
	}
	opts, err := ParseProcessorOptions(data)
	if err != nil {
		return ProcessorOptions{}, err
	}
	opts.ApplyEnv()
	if err := opts.Validate(); err != nil {
		return ProcessorOptions{}, err
	}
	return opts, nil
}

// ApplyEnv overrides fields from SANITIZEX_* environment variables that are set
// and non-empty.
func (o *ProcessorOptions) ApplyEnv() {
	if v := os.Getenv(EnvFieldsRe); v != "" {
		o.FieldsRe = v
	}
	if v := os.Getenv(EnvValuesRe); v != "" {
		o.ValuesRe = v
	}
	if v := os.Getenv(EnvSessionCookie); v != "" {
		o.SessionCookieName = v
	}
}

// Validate compiles every supplied pattern and reports all failures at once.
func (o ProcessorOptions) Validate() error {
	var err error
	if o.FieldsRe != "" {
		_, cerr := compilePattern("fields_re", o.FieldsRe)
		err = multierr.Append(err, cerr)
	}
	if o.ValuesRe != "" {
		_, cerr := compilePattern("values_re", o.ValuesRe)
		err = multierr.Append(err, cerr)
	}
	return err
}
