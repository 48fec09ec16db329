package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/go-speedvitals/internal/config"
	"github.com/mrz1836/go-speedvitals/internal/output"
)

// newTestApp creates an app writing into buffers
func newTestApp() (*CLIApp, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	app := NewCLIApp("1.2.3", "commit456", "2025-08-10")
	app.SetOutput(&out, &errOut)
	return app, &out, &errOut
}

// restoreColor resets the global color switch after a test
func restoreColor(t *testing.T) {
	t.Helper()
	original := color.NoColor
	t.Cleanup(func() { color.NoColor = original })
}

func TestNewCLIApp(t *testing.T) {
	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "standard version info",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2025-01-01",
		},
		{
			name:      "empty version info",
			version:   "",
			commit:    "",
			buildDate: "",
		},
		{
			name:      "dev build info",
			version:   "dev",
			commit:    "unknown",
			buildDate: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewCLIApp(tt.version, tt.commit, tt.buildDate)

			require.NotNil(t, app)
			assert.Equal(t, tt.version, app.version)
			assert.Equal(t, tt.commit, app.commit)
			assert.Equal(t, tt.buildDate, app.buildDate)
			require.NotNil(t, app.config)
			assert.False(t, app.config.Verbose) // Default should be false
			assert.False(t, app.config.NoColor) // Default should be false
			assert.NotNil(t, app.out)
			assert.NotNil(t, app.errOut)
			assert.NotNil(t, app.clock)
		})
	}
}

func TestNewCommandBuilder(t *testing.T) {
	app := NewCLIApp("1.0.0", "abc123", "2025-01-01")
	builder := NewCommandBuilder(app)

	require.NotNil(t, builder)
	assert.Equal(t, app, builder.app)
}

func TestBuildRootCmdProperties(t *testing.T) {
	app, _, _ := newTestApp()
	cmd := NewCommandBuilder(app).BuildRootCmd()

	// Test basic command properties
	assert.Equal(t, "go-speedvitals", cmd.Use)
	assert.Contains(t, cmd.Short, "SpeedVitals CLI")
	assert.Contains(t, cmd.Long, "checks the results against a performance budget")
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)

	// Test version information
	assert.Equal(t, "1.2.3 (commit: commit456, built: 2025-08-10)", cmd.Version)
	assert.Contains(t, cmd.VersionTemplate(), "{{with .Name}}")

	// Test persistent flags
	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "false", verboseFlag.DefValue)

	noColorFlag := cmd.PersistentFlags().Lookup("no-color")
	require.NotNil(t, noColorFlag)
	assert.Equal(t, "false", noColorFlag.DefValue)

	colorFlag := cmd.PersistentFlags().Lookup("color")
	require.NotNil(t, colorFlag)
	assert.Equal(t, "auto", colorFlag.DefValue)
}

func TestBuildRootCmdPersistentPreRun(t *testing.T) {
	tests := []struct {
		name            string
		args            []string
		expectedVerbose bool
		expectedNoColor bool
		expectedMode    string
		globalNoColor   bool
	}{
		{
			name:         "no flags",
			args:         []string{},
			expectedMode: "auto",
		},
		{
			name:            "verbose flag",
			args:            []string{"--verbose"},
			expectedVerbose: true,
			expectedMode:    "auto",
		},
		{
			name:            "no-color flag",
			args:            []string{"--no-color"},
			expectedNoColor: true,
			expectedMode:    "auto",
			globalNoColor:   true,
		},
		{
			name:          "color never",
			args:          []string{"--color", "never"},
			expectedMode:  "never",
			globalNoColor: true,
		},
		{
			name:         "color always",
			args:         []string{"--color=always"},
			expectedMode: "always",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreColor(t)
			color.NoColor = false

			app, _, _ := newTestApp()
			cmd := NewCommandBuilder(app).BuildRootCmd()

			// Parse flags without executing
			require.NoError(t, cmd.ParseFlags(tt.args))

			// Manually trigger PersistentPreRun to test flag handling
			cmd.PersistentPreRun(cmd, []string{})

			assert.Equal(t, tt.expectedVerbose, app.config.Verbose)
			assert.Equal(t, tt.expectedNoColor, app.config.NoColor)
			assert.Equal(t, tt.expectedMode, app.config.ColorMode)
			assert.Equal(t, tt.globalNoColor, color.NoColor)
		})
	}
}

func TestColorModeResolution(t *testing.T) {
	colorOff := &config.Config{}
	colorOn := &config.Config{}
	colorOn.UI.ColorOutput = true

	tests := []struct {
		name     string
		app      AppConfig
		cfg      *config.Config
		expected output.ColorMode
		wantErr  bool
	}{
		{"default", AppConfig{ColorMode: "auto"}, colorOn, output.ColorAuto, false},
		{"no config yet", AppConfig{ColorMode: "auto"}, nil, output.ColorAuto, false},
		{"disabled in config", AppConfig{ColorMode: "auto"}, colorOff, output.ColorNever, false},
		{"always beats config", AppConfig{ColorMode: "always"}, colorOff, output.ColorAlways, false},
		{"no-color beats always", AppConfig{NoColor: true, ColorMode: "always"}, colorOn, output.ColorNever, false},
		{"invalid", AppConfig{ColorMode: "rainbow"}, colorOn, output.ColorAuto, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApp()
			*app.config = tt.app

			mode, err := NewCommandBuilder(app).colorMode(tt.cfg)
			if tt.wantErr {
				require.ErrorIs(t, err, output.ErrInvalidColorMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestExecuteContext(t *testing.T) {
	restoreColor(t)

	t.Run("version", func(t *testing.T) {
		app, out, _ := newTestApp()

		err := NewCommandBuilder(app).ExecuteContext(context.Background(), []string{"--version"})
		require.NoError(t, err)
		assert.Equal(t, "go-speedvitals version 1.2.3 (commit: commit456, built: 2025-08-10)\n", out.String())
	})

	t.Run("help lists subcommands", func(t *testing.T) {
		app, out, _ := newTestApp()

		err := NewCommandBuilder(app).ExecuteContext(context.Background(), []string{"--help"})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "analyze")
		assert.Contains(t, out.String(), "config")
	})

	t.Run("unknown command", func(t *testing.T) {
		app, _, _ := newTestApp()

		err := NewCommandBuilder(app).ExecuteContext(context.Background(), []string{"bogus"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown command")
	})
}
