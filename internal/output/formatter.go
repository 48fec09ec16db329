// Package output provides utilities for formatting user-facing output and messages
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/mrz1836/go-speedvitals/internal/analyzer"
	"github.com/mrz1836/go-speedvitals/internal/budget"
	"github.com/mrz1836/go-speedvitals/internal/ci"
)

// ErrInvalidColorMode is returned for an unknown --color value
var ErrInvalidColorMode = errors.New("invalid color mode")

// Formatter handles all output formatting for the CLI
type Formatter struct {
	colorEnabled bool
	out          io.Writer
	err          io.Writer
}

// Options for configuring the formatter
type Options struct {
	ColorEnabled bool
	Out          io.Writer
	Err          io.Writer
}

// New creates a new formatter with the given options
func New(opts Options) *Formatter {
	f := &Formatter{
		colorEnabled: opts.ColorEnabled,
		out:          opts.Out,
		err:          opts.Err,
	}

	// Default to stdout/stderr if not specified
	if f.out == nil {
		f.out = os.Stdout
	}
	if f.err == nil {
		f.err = os.Stderr
	}

	return f
}

// ColorMode represents the color output mode
type ColorMode int

const (
	// ColorAuto automatically detects the best color setting
	ColorAuto ColorMode = iota
	// ColorAlways always enables color output
	ColorAlways
	// ColorNever never enables color output
	ColorNever
)

// ParseColorMode maps a --color flag value to a ColorMode
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("%w: %q (want auto, always or never)", ErrInvalidColorMode, s)
	}
}

// NewDefault creates a formatter with default settings, respecting environment variables
func NewDefault() *Formatter {
	return NewWithColorMode(ColorAuto)
}

// NewWithColorMode creates a formatter with the specified color mode
func NewWithColorMode(mode ColorMode) *Formatter {
	return New(Options{
		ColorEnabled: ShouldUseColor(mode),
		Out:          os.Stdout,
		Err:          os.Stderr,
	})
}

// ShouldUseColor determines if color output should be enabled based on the mode
func ShouldUseColor(mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	case ColorAuto:
		// Check explicit disable flags first
		if os.Getenv("NO_COLOR") != "" {
			return false
		}
		if os.Getenv("SPEEDVITALS_COLOR_OUTPUT") == "false" {
			return false
		}
		// Check for dumb terminal
		if os.Getenv("TERM") == "dumb" {
			return false
		}
		if ci.DetectFromEnvironment().IsCI {
			return false
		}
		return isTTY()
	default:
		return false
	}
}

// isTTY checks if stdout is connected to a terminal
func isTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// ColorEnabled reports whether the formatter emits ANSI colors
func (f *Formatter) ColorEnabled() bool {
	return f.colorEnabled
}

// Out returns the writer used for regular output
func (f *Formatter) Out() io.Writer {
	return f.out
}

// Success prints a success message with green checkmark
func (f *Formatter) Success(format string, args ...interface{}) {
	f.print(f.out, color.FgGreen, "✓ "+format, args...)
}

// Error prints an error message with red X
func (f *Formatter) Error(format string, args ...interface{}) {
	f.print(f.err, color.FgRed, "✗ "+format, args...)
}

// Warning prints a warning message with yellow warning symbol
func (f *Formatter) Warning(format string, args ...interface{}) {
	f.print(f.err, color.FgYellow, "⚠ "+format, args...)
}

// Info prints an info message with blue info symbol
func (f *Formatter) Info(format string, args ...interface{}) {
	f.print(f.out, color.FgBlue, "ℹ "+format, args...)
}

// Progress prints a progress message
func (f *Formatter) Progress(format string, args ...interface{}) {
	f.print(f.out, color.FgCyan, "⏳ "+format, args...)
}

// SuggestAction prints an actionable suggestion
func (f *Formatter) SuggestAction(action string) {
	f.print(f.out, color.FgMagenta, "💡 %s", action)
}

// print writes one line, colored when enabled
func (f *Formatter) print(w io.Writer, attr color.Attribute, format string, args ...interface{}) {
	if f.colorEnabled {
		c := color.New(attr)
		c.EnableColor()
		_, _ = c.Fprintf(w, format+"\n", args...)
		return
	}
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

// Header prints a section header
func (f *Formatter) Header(text string) {
	underline := strings.Repeat("─", len([]rune(text)))
	if f.colorEnabled {
		c1 := color.New(color.FgCyan, color.Bold)
		c1.EnableColor()
		_, _ = c1.Fprintf(f.out, "\n%s\n", text)
		c2 := color.New(color.FgCyan)
		c2.EnableColor()
		_, _ = c2.Fprintf(f.out, "%s\n", underline)
	} else {
		_, _ = fmt.Fprintf(f.out, "\n%s\n%s\n", text, underline)
	}
}

// Detail prints detailed information with indentation
func (f *Formatter) Detail(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(f.out, "  "+format+"\n", args...)
}

// Duration formats a duration for display
func (f *Formatter) Duration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dμs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// highlight colors s when color is enabled
func (f *Formatter) highlight(attr color.Attribute, s string) string {
	if !f.colorEnabled {
		return s
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(s)
}

// ResultsTable prints one block per result with its report link and the
// values of the budgeted metrics
func (f *Formatter) ResultsTable(results []analyzer.Result, rules []budget.Rule) {
	metrics := budget.Metrics(rules)

	f.Header("Results")
	for i, r := range results {
		_, _ = fmt.Fprintf(f.out, "┌─ Test %d: %s | Device: %s | Location: %s\n",
			i+1, r.Request.URL, r.Request.Device, r.Request.Location)

		for _, m := range metrics {
			v, ok := r.Job.Metrics.Value(m)
			var value *float64
			if ok {
				value = &v
			}
			_, _ = fmt.Fprintf(f.out, "│  %-26s %s\n", m, budget.FormatValue(m, value))
		}

		report := r.Job.ReportURL
		if report == "" {
			report = "N/A"
		}
		_, _ = fmt.Fprintf(f.out, "└─ 📄 Report: %s\n\n", report)
	}
}

// Regressions prints every violation, or a success line when there are none
func (f *Formatter) Regressions(verdict budget.Verdict) {
	if !verdict.HasRegression {
		f.Success("No budget regressions detected.")
		return
	}

	for _, v := range verdict.Violations {
		f.Warning("Budget regression detected for %s: %s %s %s | URL %s Device: %s, Location: %s",
			v.Metric,
			f.highlight(color.FgRed, budget.FormatValue(v.Metric, v.Value)),
			v.Comparator,
			f.highlight(color.FgGreen, budget.FormatThreshold(v.Threshold)),
			v.Subject.URL, v.Subject.Device, v.Subject.Location)
	}
}

// Report is the machine-readable form of a finished run
type Report struct {
	RunID         string            `json:"runId"`
	Duration      string            `json:"duration"`
	Results       []ReportResult    `json:"results"`
	Rules         []budget.Rule     `json:"budgets"`
	HasRegression bool              `json:"hasRegression"`
	Violations    []ReportViolation `json:"violations"`
}

// ReportResult is one analyzed request
type ReportResult struct {
	URL       string              `json:"url"`
	Device    string              `json:"device"`
	Location  string              `json:"location"`
	JobID     string              `json:"testId"`
	ReportURL string              `json:"reportUrl,omitempty"`
	Attempts  int                 `json:"attempts"`
	Metrics   map[string]*float64 `json:"metrics"`
}

// ReportViolation is one failed budget comparison
type ReportViolation struct {
	Metric     string   `json:"metric"`
	Value      *float64 `json:"value"`
	Threshold  float64  `json:"threshold"`
	Comparator string   `json:"comparator"`
	URL        string   `json:"url"`
	Device     string   `json:"device"`
	Location   string   `json:"location"`
}

// NewReport builds a Report
func NewReport(runID string, duration time.Duration, results []analyzer.Result, rules []budget.Rule, verdict budget.Verdict) Report {
	r := Report{
		RunID:         runID,
		Duration:      duration.Round(time.Millisecond).String(),
		Results:       make([]ReportResult, 0, len(results)),
		Rules:         rules,
		HasRegression: verdict.HasRegression,
		Violations:    make([]ReportViolation, 0, len(verdict.Violations)),
	}

	for _, res := range results {
		r.Results = append(r.Results, ReportResult{
			URL:       res.Request.URL,
			Device:    res.Request.Device,
			Location:  res.Request.Location,
			JobID:     res.Job.ID,
			ReportURL: res.Job.ReportURL,
			Attempts:  res.Attempts,
			Metrics:   res.Job.Metrics,
		})
	}
	for _, v := range verdict.Violations {
		r.Violations = append(r.Violations, ReportViolation{
			Metric:     v.Metric,
			Value:      v.Value,
			Threshold:  v.Threshold,
			Comparator: v.Comparator,
			URL:        v.Subject.URL,
			Device:     v.Subject.Device,
			Location:   v.Subject.Location,
		})
	}
	return r
}

// JSON writes the report as indented JSON to the output writer
func (f *Formatter) JSON(report Report) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
