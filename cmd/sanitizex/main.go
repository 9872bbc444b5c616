package main

import (
	"fmt"
	"io"
	"os"

	"github.com/muhammadluth/sanitizex"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

// Flags
var (
	configFile    string
	fieldsRe      string
	valuesRe      string
	sessionCookie string
	debug         bool
)

var rootCmd = &cobra.Command{
	Use:   "sanitizex [file...]",
	Short: "Redact sensitive values from JSON payloads",
	Long: `Read JSON documents and write them back with sensitive values masked.

Values are replaced with "********" when:
  - their key matches the field pattern (password, secret, authorization, ...)
  - they are strings shaped like a payment card number
  - they are the session cookie under request.cookies

Each file argument is processed in order and written to stdout, one document
per line. With no arguments the document is read from stdin.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRedact,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sanitizex %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "",
		"Path to a YAML file with fields_re, values_re and session_cookie_name")
	rootCmd.Flags().StringVar(&fieldsRe, "fields-re", "",
		"Key-name pattern (overrides config file)")
	rootCmd.Flags().StringVar(&valuesRe, "values-re", "",
		"Value pattern (overrides config file)")
	rootCmd.Flags().StringVar(&sessionCookie, "session-cookie", "",
		"Session cookie name masked under request.cookies (overrides config file)")
	rootCmd.Flags().BoolVar(&debug, "debug", false,
		"Write diagnostic logs to stderr")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildRedactor merges the config file, environment and flags, in that
// order of increasing precedence.
func buildRedactor(stderr io.Writer) (*sanitizex.Redactor, error) {
	var opts sanitizex.ProcessorOptions
	if configFile != "" {
		loaded, err := sanitizex.LoadProcessorOptions(configFile)
		if err != nil {
			return nil, err
		}
		opts = loaded
	} else {
		opts.ApplyEnv()
	}

	flagOpts := sanitizex.ProcessorOptions{
		FieldsRe:          fieldsRe,
		ValuesRe:          valuesRe,
		SessionCookieName: sessionCookie,
	}

	options := []sanitizex.Option{
		sanitizex.WithServiceName("sanitizex"),
		sanitizex.WithProcessorOptions(opts),
		sanitizex.WithProcessorOptions(flagOpts),
	}
	if debug {
		options = append(options, sanitizex.WithOutput(stderr), sanitizex.WithDebug(true))
	}
	return sanitizex.New(options...)
}

func runRedact(cmd *cobra.Command, args []string) error {
	r, err := buildRedactor(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return redactStream(r, cmd.InOrStdin(), out, "stdin")
	}
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "failed to open input")
		}
		err = redactStream(r, f, out, path)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func redactStream(r *sanitizex.Redactor, in io.Reader, out io.Writer, name string) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", name)
	}
	redacted, err := r.ProcessJSON(data)
	if err != nil {
		return errors.Wrapf(err, "failed to redact %s", name)
	}
	if _, err := out.Write(append(redacted, '\n')); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	return nil
}
