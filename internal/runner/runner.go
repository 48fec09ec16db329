// Package runner provides the bounded-concurrency execution engine that
// drives every test request through the analyzer
package runner

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/go-speedvitals/internal/analyzer"
	"github.com/mrz1836/go-speedvitals/internal/budget"
	prerrors "github.com/mrz1836/go-speedvitals/internal/errors"
	"github.com/mrz1836/go-speedvitals/internal/progress"
	"github.com/mrz1836/go-speedvitals/internal/speedvitals"
)

// DefaultConcurrency is the in-flight request ceiling when Options leaves it zero
const DefaultConcurrency = 3

// Analyzer runs one request through submit, poll and retry
type Analyzer interface {
	Analyze(ctx context.Context, req speedvitals.TestRequest, onRetry analyzer.RetryFunc) (*analyzer.Result, error)
	MaxRetries() int
}

// failer is implemented by reporters that can render an aborted run
type failer interface {
	Fail(message string)
}

// Options configures a Runner
type Options struct {
	Concurrency int
	RunID       string
	Progress    progress.Reporter
	Logger      logrus.FieldLogger
}

// Summary is the outcome of a run in which every request succeeded
type Summary struct {
	RunID    string
	Results  []analyzer.Result // in input order
	Duration time.Duration
}

// Measurements converts the results for budget evaluation
func (s *Summary) Measurements() []budget.Measurement {
	out := make([]budget.Measurement, 0, len(s.Results))
	for _, r := range s.Results {
		out = append(out, budget.Measurement{
			Subject: budget.Subject{URL: r.Request.URL, Device: r.Request.Device, Location: r.Request.Location},
			Metrics: r.Job.Metrics,
		})
	}
	return out
}

// Runner executes test requests with a fixed concurrency ceiling
type Runner struct {
	analyzer Analyzer
	opts     Options
}

// New creates a new Runner
func New(a Analyzer, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Progress == nil {
		opts.Progress = progress.Nop{}
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}

	return &Runner{analyzer: a, opts: opts}
}

// RunID returns the identifier attached to this run
func (r *Runner) RunID() string {
	return r.opts.RunID
}

// Run analyzes every request. The first request to exhaust its retries
// cancels the rest and its error is returned alone; otherwise every result
// is returned in input order.
func (r *Runner) Run(ctx context.Context, requests []speedvitals.TestRequest) (*Summary, error) {
	if len(requests) == 0 {
		return nil, prerrors.ErrNoRequests
	}

	start := time.Now()
	log := r.opts.Logger.WithField("run", r.opts.RunID)
	log.WithFields(logrus.Fields{
		"requests":    len(requests),
		"concurrency": r.opts.Concurrency,
	}).Info("starting run")

	var (
		mu        sync.Mutex
		completed int
	)
	report := r.opts.Progress
	report.Start(len(requests))
	report.Update(0, "")

	onRetry := func(e analyzer.RetryEvent) {
		mu.Lock()
		defer mu.Unlock()
		report.Update(completed, fmt.Sprintf("(retrying for %s %d/%d)", e.Request.URL, e.Attempt, e.MaxRetries))
	}

	results := make([]analyzer.Result, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for i, req := range requests {
		g.Go(func() error {
			// A failed request already aborted the run
			if err := gctx.Err(); err != nil {
				return err
			}

			result, err := r.analyzer.Analyze(gctx, req, onRetry)
			if err != nil {
				return err
			}
			results[i] = *result

			mu.Lock()
			completed++
			report.Update(completed, "")
			mu.Unlock()

			log.WithFields(logrus.Fields{
				"request":  req.String(),
				"attempts": result.Attempts,
			}).Debug("request completed")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if f, ok := report.(failer); ok {
			f.Fail(fmt.Sprintf("Analysis aborted: %v", err))
		}
		log.WithError(err).Error("run aborted")
		return nil, err
	}

	summary := &Summary{
		RunID:    r.opts.RunID,
		Results:  results,
		Duration: time.Since(start),
	}
	report.Complete("")
	log.WithField("duration", summary.Duration).Info("run completed")

	return summary, nil
}
