package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mrz1836/go-speedvitals/internal/analyzer"
	"github.com/mrz1836/go-speedvitals/internal/budget"
	"github.com/mrz1836/go-speedvitals/internal/ci"
	"github.com/mrz1836/go-speedvitals/internal/config"
	prerrors "github.com/mrz1836/go-speedvitals/internal/errors"
	"github.com/mrz1836/go-speedvitals/internal/input"
	"github.com/mrz1836/go-speedvitals/internal/output"
	"github.com/mrz1836/go-speedvitals/internal/progress"
	"github.com/mrz1836/go-speedvitals/internal/runner"
	"github.com/mrz1836/go-speedvitals/internal/speedvitals"
)

// Output formats
const (
	formatText = "text"
	formatJSON = "json"
)

var (
	// ErrInvalidFormat is returned for an unknown --format value
	ErrInvalidFormat = errors.New("invalid output format")
	// ErrInvalidConcurrency is returned when --concurrency is not positive
	ErrInvalidConcurrency = errors.New("--concurrency must be greater than 0")
	// ErrInvalidMaxRetries is returned when --max-retries is negative
	ErrInvalidMaxRetries = errors.New("--max-retries must be 0 or positive")
)

// budgetFlags binds each budget flag to its threshold
//
//nolint:gochecknoglobals // static flag table
var budgetFlags = []struct {
	name  string
	usage string
	set   func(t *budget.Thresholds, v *float64)
}{
	{"performance-score", "Minimum performance score (0-100)", func(t *budget.Thresholds, v *float64) { t.PerformanceScore = v }},
	{"lcp", "Largest Contentful Paint budget in ms", func(t *budget.Thresholds, v *float64) { t.LCP = v }},
	{"cls", "Cumulative Layout Shift budget", func(t *budget.Thresholds, v *float64) { t.CLS = v }},
	{"fcp", "First Contentful Paint budget in ms", func(t *budget.Thresholds, v *float64) { t.FCP = v }},
	{"tbt", "Total Blocking Time budget in ms", func(t *budget.Thresholds, v *float64) { t.TBT = v }},
	{"tti", "Time to Interactive budget in ms", func(t *budget.Thresholds, v *float64) { t.TTI = v }},
	{"server-response-time", "Server response time budget in ms", func(t *budget.Thresholds, v *float64) { t.ServerResponseTime = v }},
	{"speed-index", "Speed Index budget in ms", func(t *budget.Thresholds, v *float64) { t.SpeedIndex = v }},
	{"first-meaningful-paint", "First Meaningful Paint budget in ms", func(t *budget.Thresholds, v *float64) { t.FirstMeaningfulPaint = v }},
}

// AnalyzeConfig holds configuration for the analyze command
type AnalyzeConfig struct {
	Config           string // raw --config JSON
	URLs             string // raw --urls JSON
	Device           string
	Location         string
	Budget           budget.Thresholds
	BudgetFile       string
	FailOnRegression bool
	BaseBranch       string
	APIKey           string
	EnvFile          string
	Concurrency      *int // nil uses SPEEDVITALS_CONCURRENCY
	MaxRetries       *int // nil uses SPEEDVITALS_MAX_RETRIES
	Format           string
}

// BuildAnalyzeCmd creates the analyze command
func (cb *CommandBuilder) BuildAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run Lighthouse tests and check them against a budget",
		Long: `Run Lighthouse tests through the SpeedVitals API and compare the
results with a performance budget.

Pages are given either with --config, a JSON list of [url, device, location]
tuples, or with --urls, a JSON list of URLs tested with --device and
--location. Budget thresholds come from the budget flags, a YAML budget file,
or the default budget when neither is set.

Each test is polled until it finishes and retried when it fails or times out.
If any page exhausts its retries the whole run stops with an error.`,
		Example: `  # Test two pages with the default budget
  go-speedvitals analyze --urls '["https://example.com", "https://example.com/about"]'

  # Test specific device and location combinations
  go-speedvitals analyze --config '[["https://example.com", "mobile", "us"], ["https://example.com", "desktop", "de"]]'

  # Custom budget that only reports regressions
  go-speedvitals analyze --urls '["https://example.com"]' --lcp 2000 --cls 0.05 --fail-on-regression=false

  # Budget from a file, JSON output for other tools
  go-speedvitals analyze --urls '["https://example.com"]' --budget-file budgets.yaml --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := analyzeConfigFromFlags(cmd)
			if err != nil {
				return err
			}

			return cb.runAnalyzeWithConfig(cmd.Context(), opts)
		},
	}

	// Input flags
	cmd.Flags().String("config", "", "JSON list of [url, device, location] tuples")
	cmd.Flags().String("urls", "", "JSON list of URLs")
	cmd.Flags().String("device", "", "Device used with --urls (default from SPEEDVITALS_DEFAULT_DEVICE)")
	cmd.Flags().String("location", "", "Location used with --urls (default from SPEEDVITALS_DEFAULT_LOCATION)")

	// Budget flags
	for _, f := range budgetFlags {
		cmd.Flags().Float64(f.name, 0, f.usage)
	}
	cmd.Flags().String("budget-file", "", "YAML file with budget rules")
	cmd.Flags().Bool("fail-on-regression", true, "Exit with an error when the budget is exceeded")

	// Run flags
	cmd.Flags().String("baseBranch", "", "Branch reported to SpeedVitals instead of the detected one")
	cmd.Flags().String("api-key", "", "SpeedVitals API key (default from SPEEDVITALS_API_KEY)")
	cmd.Flags().String("env-file", "", "Environment file to load instead of searching for "+config.EnvFileName)
	cmd.Flags().Int("concurrency", 0, "Tests running at the same time (default from SPEEDVITALS_CONCURRENCY)")
	cmd.Flags().Int("max-retries", 0, "Extra attempts per page after a failure (default from SPEEDVITALS_MAX_RETRIES)")
	cmd.Flags().String("format", formatText, "Output format: text, json")

	return cmd
}

// analyzeConfigFromFlags reads the analyze flags; budget, concurrency and
// retry flags count only when set explicitly
func analyzeConfigFromFlags(cmd *cobra.Command) (AnalyzeConfig, error) {
	opts := AnalyzeConfig{}
	var err error

	stringFlags := []struct {
		name string
		dst  *string
	}{
		{"config", &opts.Config},
		{"urls", &opts.URLs},
		{"device", &opts.Device},
		{"location", &opts.Location},
		{"budget-file", &opts.BudgetFile},
		{"baseBranch", &opts.BaseBranch},
		{"api-key", &opts.APIKey},
		{"env-file", &opts.EnvFile},
		{"format", &opts.Format},
	}
	for _, s := range stringFlags {
		if *s.dst, err = cmd.Flags().GetString(s.name); err != nil {
			return opts, err
		}
	}

	opts.FailOnRegression, err = cmd.Flags().GetBool("fail-on-regression")
	if err != nil {
		return opts, err
	}

	for _, f := range budgetFlags {
		if !cmd.Flags().Changed(f.name) {
			continue
		}
		v, err := cmd.Flags().GetFloat64(f.name)
		if err != nil {
			return opts, err
		}
		f.set(&opts.Budget, speedvitals.Float(v))
	}

	if cmd.Flags().Changed("concurrency") {
		v, err := cmd.Flags().GetInt("concurrency")
		if err != nil {
			return opts, err
		}
		opts.Concurrency = &v
	}

	if cmd.Flags().Changed("max-retries") {
		v, err := cmd.Flags().GetInt("max-retries")
		if err != nil {
			return opts, err
		}
		opts.MaxRetries = &v
	}

	return opts, nil
}

func (cb *CommandBuilder) runAnalyzeWithConfig(ctx context.Context, opts AnalyzeConfig) error {
	// Load configuration first
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		// Use basic formatter for this error since config failed to load
		formatter, _ := cb.newFormatter(nil)
		formatter.Error("Failed to load configuration: %v", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	formatter, err := cb.newFormatter(cfg)
	if err != nil {
		return err
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format != formatText && format != formatJSON {
		return fmt.Errorf("%w: %q (want text or json)", ErrInvalidFormat, opts.Format)
	}

	concurrency := cfg.Performance.Concurrency
	if opts.Concurrency != nil {
		if *opts.Concurrency <= 0 {
			return ErrInvalidConcurrency
		}
		concurrency = *opts.Concurrency
	}

	maxRetries := cfg.Performance.MaxRetries
	if opts.MaxRetries != nil {
		if *opts.MaxRetries < 0 {
			return ErrInvalidMaxRetries
		}
		maxRetries = *opts.MaxRetries
	}

	in, err := cb.buildInput(opts, cfg, formatter)
	if err != nil {
		return err
	}

	// Resolve the budget: file rules, overridden by flags, else defaults
	var fileRules []budget.Rule
	if opts.BudgetFile != "" {
		fileRules, err = budget.LoadFile(opts.BudgetFile)
		if err != nil {
			formatter.Error("%v", err)
			return err
		}
	}
	rules := budget.Resolve(fileRules, opts.Budget)

	logger := cfg.NewLogger(cb.app.errOut, cb.app.config.Verbose)
	runID := uuid.NewString()
	ciMeta := ci.DetectFromEnvironment().WithBranch(opts.BaseBranch)
	logger.WithField("run", runID).Debugf("budget metrics: %s", strings.Join(budget.Metrics(rules), ", "))

	client := speedvitals.NewClient(speedvitals.ClientOptions{
		BaseURL: cfg.BaseURL,
		APIKey:  in.APIKey,
		Version: cb.app.version,
		RunID:   runID,
		Timeout: cfg.HTTP.Timeout,
		Logger:  logger,
	})

	a := analyzer.New(client, analyzer.Options{
		PollInterval:    cfg.Polling.Interval,
		MaxPollAttempts: cfg.Polling.MaxAttempts,
		MaxRetries:      maxRetries,
		Rules:           rules,
		CI:              ciMeta,
		Clock:           cb.app.clock,
		Logger:          logger,
	})

	// Keep stdout clean for the JSON report
	progressOut := cb.app.out
	if format == formatJSON {
		progressOut = cb.app.errOut
	}
	bar := progress.New(progress.Options{
		Writer: progressOut,
		Mode:   progress.DetectMode(ciMeta.IsCI),
		Clock:  cb.app.clock,
	})

	r := runner.New(a, runner.Options{
		Concurrency: concurrency,
		RunID:       runID,
		Progress:    bar,
		Logger:      logger,
	})

	summary, err := r.Run(ctx, in.Requests())
	if err != nil {
		formatter.Error("Analysis failed: %v", err)
		return fmt.Errorf("analysis failed: %w", err)
	}

	verdict := budget.Evaluate(summary.Measurements(), rules)

	if format == formatJSON {
		if err := formatter.JSON(output.NewReport(summary.RunID, summary.Duration, summary.Results, rules, verdict)); err != nil {
			return err
		}
	} else {
		formatter.ResultsTable(summary.Results, rules)
		formatter.Regressions(verdict)
		formatter.Info("Analyzed %d page(s) in %s", len(summary.Results), formatter.Duration(summary.Duration))
		if verdict.HasRegression && !opts.FailOnRegression {
			formatter.Info("Budget regressions are not failing this run (--fail-on-regression=false)")
		}
	}

	return verdict.Err(opts.FailOnRegression)
}

// buildInput parses the request arguments and validates every option,
// reporting problems through the formatter
func (cb *CommandBuilder) buildInput(opts AnalyzeConfig, cfg *config.Config, formatter *output.Formatter) (input.Options, error) {
	in := input.Options{
		APIKey:   opts.APIKey,
		Device:   opts.Device,
		Location: opts.Location,
		Budget:   opts.Budget,
	}
	if in.APIKey == "" {
		in.APIKey = cfg.APIKey
	}

	var err error
	if opts.Config != "" {
		if in.Config, err = input.ParseConfig(opts.Config); err != nil {
			formatter.Error("%v", err)
			formatter.SuggestAction(fmt.Sprintf("Example: --config '%s'", input.ConfigExample))
			return in, err
		}
	}

	if opts.URLs != "" {
		device, location := opts.Device, opts.Location
		if device == "" {
			device = cfg.Defaults.Device
		}
		if location == "" {
			location = cfg.Defaults.Location
		}
		if in.URLs, err = input.ParseURLs(opts.URLs, device, location); err != nil {
			formatter.Error("%v", err)
			formatter.SuggestAction(fmt.Sprintf("Example: --urls '%s'", input.URLsExample))
			return in, err
		}
	}

	if err = in.Validate(); err != nil {
		formatter.Error("%v", err)
		if errors.Is(err, prerrors.ErrAPIKeyMissing) {
			formatter.SuggestAction("Get an API key at https://speedvitals.com/account/api and set SPEEDVITALS_API_KEY")
		}
		return in, err
	}

	return in, nil
}
