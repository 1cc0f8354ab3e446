package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pardoc/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	EnvFile    string

	// Root and Backend override the configured values when set.
	Root    string
	Backend string

	// lookupEnv reads the process environment. Nil means os.LookupEnv.
	lookupEnv func(string) (string, bool)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pardoc CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pardoc",
		Short: "pardoc - versioned paragraph documents",
		Long: `A document engine that stores documents as ordered lists of
independently versioned paragraphs, with references between documents and
diff-based text updates.

Configuration is read from --config (YAML), a .env file and PARDOC_*
environment variables, in increasing priority. --root and --backend win
over all of them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "path to dotenv file (default .env, optional)")
	cmd.PersistentFlags().StringVar(&opts.Root, "root", "", "data directory (overrides "+config.EnvPrefix+"ROOT)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "storage backend: file|sqlite|badger")

	// Add subcommands
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewModifyCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewSectionCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))
	cmd.AddCommand(NewGCCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors are reported on stdout in JSON mode and on stderr otherwise.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	return execute(ctx, newRootCommand(opts), opts, args, stdin, stdout, stderr)
}

func execute(ctx context.Context, cmd *cobra.Command, opts *RootOptions, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: stderr, Verbose: opts.Verbose}
	if opts.Format == "json" {
		formatter.Writer = stdout
	} else {
		formatter.Format = "text"
	}
	_ = formatter.Error(errorCode(err), err.Error(), errorDetails(err))
	return GetExitCode(err)
}

// lookup returns the environment lookup with the flag overrides on top.
func (o *RootOptions) lookup() func(string) (string, bool) {
	env := o.lookupEnv
	if env == nil {
		env = os.LookupEnv
	}
	overrides := map[string]string{}
	if o.Root != "" {
		overrides[config.EnvPrefix+"ROOT"] = o.Root
	}
	if o.Backend != "" {
		overrides[config.EnvPrefix+"BACKEND"] = o.Backend
	}
	if o.Verbose {
		overrides[config.EnvPrefix+"LOG_LEVEL"] = "debug"
	}
	return func(key string) (string, bool) {
		if v, ok := overrides[key]; ok {
			return v, true
		}
		return env(key)
	}
}

// loadConfig reads the configuration the flags point at.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Loader{
		File:      o.ConfigFile,
		EnvFile:   o.EnvFile,
		LookupEnv: o.lookup(),
	}.Load()
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// formatter returns the output formatter of cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// exitErrorf is NewExitError with a formatted command error message.
func exitErrorf(format string, args ...any) error {
	return NewExitError(ExitCommandError, fmt.Sprintf(format, args...))
}

var errNoInput = errors.New("no input: use --text, --file or --file -")
