// Package cmd implements the go-speedvitals command line interface
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/mrz1836/go-speedvitals/internal/config"
	"github.com/mrz1836/go-speedvitals/internal/output"
)

// CLIApp holds the application state and configuration
type CLIApp struct {
	version   string
	commit    string
	buildDate string
	config    *AppConfig

	out    io.Writer
	errOut io.Writer
	clock  clock.WithTicker
}

// AppConfig holds global application configuration
type AppConfig struct {
	Verbose   bool
	NoColor   bool
	ColorMode string // "auto", "always", "never"
}

// NewCLIApp creates a new CLI application instance
func NewCLIApp(version, commit, buildDate string) *CLIApp {
	return &CLIApp{
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		config:    &AppConfig{},
		out:       os.Stdout,
		errOut:    os.Stderr,
		clock:     clock.RealClock{},
	}
}

// SetOutput redirects regular and error output
func (app *CLIApp) SetOutput(out, errOut io.Writer) {
	app.out = out
	app.errOut = errOut
}

// CommandBuilder creates cobra commands with dependency injection
type CommandBuilder struct {
	app *CLIApp
}

// NewCommandBuilder creates a new command builder
func NewCommandBuilder(app *CLIApp) *CommandBuilder {
	return &CommandBuilder{app: app}
}

// BuildRootCmd creates the root command
func (cb *CommandBuilder) BuildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "go-speedvitals",
		Short: "SpeedVitals CLI - Lighthouse performance budgets for your pages",
		Long: `go-speedvitals runs Lighthouse tests through the SpeedVitals API and
checks the results against a performance budget.

Key features:
  - Test many URLs across devices and locations in parallel
  - Budgets from flags, a YAML file, or sensible defaults
  - Automatic retries for failed or stuck tests
  - CI aware progress output and exit codes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// Get flags and set in app config
			cb.app.config.Verbose, _ = cmd.Flags().GetBool("verbose")
			cb.app.config.NoColor, _ = cmd.Flags().GetBool("no-color")
			cb.app.config.ColorMode, _ = cmd.Flags().GetString("color")
			cb.initConfig()
		},
	}

	// Set version information
	cmd.Version = cb.app.versionString()
	cmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
	cmd.SetOut(cb.app.out)
	cmd.SetErr(cb.app.errOut)

	// Add persistent flags
	cmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output (same as --color=never)")
	cmd.PersistentFlags().String("color", "auto", "Control color output: auto, always, never")

	return cmd
}

// Execute runs the root command using the provided CLI app
func (cb *CommandBuilder) Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cb.ExecuteContext(ctx, nil)
}

// ExecuteContext runs the root command with the given arguments; nil args
// means os.Args
func (cb *CommandBuilder) ExecuteContext(ctx context.Context, args []string) error {
	rootCmd := cb.BuildRootCmd()

	// Add subcommands
	rootCmd.AddCommand(cb.BuildAnalyzeCmd())
	rootCmd.AddCommand(cb.BuildConfigCmd())

	if args != nil {
		rootCmd.SetArgs(args)
	}
	return rootCmd.ExecuteContext(ctx)
}

func (app *CLIApp) versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", app.version, app.commit, app.buildDate)
}

// initConfig applies the global color flags
func (cb *CommandBuilder) initConfig() {
	// --no-color wins over --color; auto defers to the formatter's detection
	switch {
	case cb.app.config.NoColor, cb.app.config.ColorMode == "never":
		color.NoColor = true
	case cb.app.config.ColorMode == "always":
		color.NoColor = false
	}
}

// colorMode resolves the global flags and the loaded configuration to a mode
func (cb *CommandBuilder) colorMode(cfg *config.Config) (output.ColorMode, error) {
	if cb.app.config.NoColor {
		return output.ColorNever, nil
	}

	mode, err := output.ParseColorMode(cb.app.config.ColorMode)
	if err != nil {
		return output.ColorAuto, err
	}
	if mode == output.ColorAuto && cfg != nil && !cfg.UI.ColorOutput {
		return output.ColorNever, nil
	}
	return mode, nil
}

// newFormatter creates a formatter bound to the app's writers
func (cb *CommandBuilder) newFormatter(cfg *config.Config) (*output.Formatter, error) {
	mode, err := cb.colorMode(cfg)
	formatter := output.New(output.Options{
		ColorEnabled: err == nil && output.ShouldUseColor(mode),
		Out:          cb.app.out,
		Err:          cb.app.errOut,
	})
	return formatter, err
}
