package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/go-speedvitals/internal/config"
)

// BuildConfigCmd creates the config command
func (cb *CommandBuilder) BuildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration options",
		Long: `Show the environment variables that configure go-speedvitals.

With --show, load the configuration the analyze command would use and print
the effective values. The API key is masked.`,
		Example: `  # List configuration variables
  go-speedvitals config

  # Print the effective configuration
  go-speedvitals config --show --env-file ci.env`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			show, err := cmd.Flags().GetBool("show")
			if err != nil {
				return err
			}

			envFile, err := cmd.Flags().GetString("env-file")
			if err != nil {
				return err
			}

			if !show {
				_, err = fmt.Fprint(cb.app.out, config.GetConfigHelp())
				return err
			}
			return cb.showConfig(envFile)
		},
	}

	cmd.Flags().Bool("show", false, "Print the effective configuration")
	cmd.Flags().String("env-file", "", "Environment file to load instead of searching for "+config.EnvFileName)

	return cmd
}

// showConfig prints the loaded configuration
func (cb *CommandBuilder) showConfig(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		formatter, _ := cb.newFormatter(nil)
		formatter.Error("Failed to load configuration: %v", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	formatter, err := cb.newFormatter(cfg)
	if err != nil {
		return err
	}

	source := cfg.EnvFile
	if source == "" {
		source = "environment only"
	}

	formatter.Header("Configuration")
	formatter.Detail("Source:          %s", source)
	formatter.Detail("API key:         %s", maskSecret(cfg.APIKey))
	formatter.Detail("Base URL:        %s", cfg.BaseURL)
	formatter.Detail("Log level:       %s", cfg.LogLevel)
	formatter.Detail("Device:          %s", cfg.Defaults.Device)
	formatter.Detail("Location:        %s", cfg.Defaults.Location)
	formatter.Detail("Concurrency:     %d", cfg.Performance.Concurrency)
	formatter.Detail("Max retries:     %d", cfg.Performance.MaxRetries)
	formatter.Detail("Poll interval:   %s", cfg.Polling.Interval)
	formatter.Detail("Poll attempts:   %d", cfg.Polling.MaxAttempts)
	formatter.Detail("HTTP timeout:    %s", cfg.HTTP.Timeout)
	formatter.Detail("Color output:    %t", cfg.UI.ColorOutput)

	return nil
}

// maskSecret keeps the last four characters of a secret
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 4:
		return strings.Repeat("*", len(s))
	default:
		return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
	}
}
