// Package analyzer drives a single test request through the remote service:
// create the job, poll it to a terminal status, check the budgeted metrics,
// and retry the whole cycle on failure
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/mrz1836/go-speedvitals/internal/budget"
	"github.com/mrz1836/go-speedvitals/internal/ci"
	prerrors "github.com/mrz1836/go-speedvitals/internal/errors"
	"github.com/mrz1836/go-speedvitals/internal/speedvitals"
)

// Defaults used when Options leaves a field zero
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollAttempts = 60
	DefaultMaxRetries      = 2
)

// Clock is the part of k8s.io/utils/clock.Clock the poller waits on
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

// Options configures an Analyzer
type Options struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	// MaxRetries is the number of extra attempts after the first one; negative means none
	MaxRetries int
	Rules      []budget.Rule
	CI         ci.Metadata
	Clock      Clock
	Logger     logrus.FieldLogger
}

// Result is the successful outcome of one request: a job with status success
// and a value for every budgeted metric
type Result struct {
	Request  speedvitals.TestRequest
	Job      *speedvitals.Job
	Attempts int
}

// RetryEvent is emitted before a request is attempted again
type RetryEvent struct {
	Request    speedvitals.TestRequest
	Attempt    int // the attempt that failed, starting at 1
	MaxRetries int
	Err        error
}

// RetryFunc receives retry events; it must not block
type RetryFunc func(RetryEvent)

// Analyzer runs requests against a Service
type Analyzer struct {
	service  speedvitals.Service
	opts     Options
	required []string
}

// New creates a new Analyzer
func New(service speedvitals.Service, opts Options) *Analyzer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPollAttempts <= 0 {
		opts.MaxPollAttempts = DefaultMaxPollAttempts
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}

	return &Analyzer{
		service:  service,
		opts:     opts,
		required: budget.Metrics(opts.Rules),
	}
}

// MaxRetries returns the configured retry bound
func (a *Analyzer) MaxRetries() int {
	return a.opts.MaxRetries
}

// Analyze runs full submit and poll cycles until one succeeds or
// MaxRetries+1 attempts have failed. Each retry creates a fresh job.
func (a *Analyzer) Analyze(ctx context.Context, req speedvitals.TestRequest, onRetry RetryFunc) (*Result, error) {
	log := a.opts.Logger.WithField("request", req.String())

	var (
		attempts int
		result   *Result
	)

	err := retry.Do(
		func() error {
			attempts++
			r, err := a.Attempt(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Unrecoverable(err)
				}
				return err
			}
			r.Attempts = attempts
			result = r
			return nil
		},
		retry.Attempts(uint(a.opts.MaxRetries+1)),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			attempt := int(n) + 1
			if attempt > a.opts.MaxRetries {
				return
			}
			log.WithError(err).WithField("attempt", attempt).Warn("attempt failed, retrying")
			if onRetry != nil {
				onRetry(RetryEvent{Request: req, Attempt: attempt, MaxRetries: a.opts.MaxRetries, Err: err})
			}
		}),
	)
	if err == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("analysis of %s stopped: %w", req.String(), ctxErr)
	}

	log.WithError(err).WithField("attempts", attempts).Error("retries exhausted")
	return nil, &prerrors.ExhaustedRetriesError{Request: req.String(), Attempts: attempts, Err: err}
}

// state is a step of one submit and poll cycle
type state string

const (
	stateCreated   state = "created"
	statePolling   state = "polling"
	stateSucceeded state = "succeeded"
	stateFailed    state = "failed"
	stateTimedOut  state = "timed_out"
)

// Attempt runs one submit and poll cycle without retrying
func (a *Analyzer) Attempt(ctx context.Context, req speedvitals.TestRequest) (*Result, error) {
	log := a.opts.Logger.WithField("request", req.String())
	transition := func(s state, jobID string) {
		log.WithFields(logrus.Fields{"state": s, "job": jobID}).Debug("test state")
	}

	transition(stateCreated, "")
	created, err := a.service.CreateTest(ctx, speedvitals.CreateTestInput{Request: req, CI: a.opts.CI})
	if err != nil {
		transition(stateFailed, "")
		return nil, fmt.Errorf("creating test for %s: %w", req.URL, err)
	}
	if msg := created.ErrorMessage(); msg != "" {
		transition(stateFailed, created.ID)
		return nil, &prerrors.RemoteError{JobID: created.ID, Message: msg}
	}

	transition(statePolling, created.ID)
	job, err := a.poll(ctx, created.ID)
	if err != nil {
		var timeoutErr *prerrors.TimeoutError
		if errors.As(err, &timeoutErr) {
			transition(stateTimedOut, created.ID)
		} else {
			transition(stateFailed, created.ID)
		}
		return nil, err
	}

	if job.Status != speedvitals.StatusSuccess {
		transition(stateFailed, job.ID)
		return nil, &prerrors.RemoteError{JobID: job.ID, Message: fmt.Sprintf("test finished with status %q", job.Status)}
	}

	if missing := job.Metrics.Missing(a.required); len(missing) > 0 {
		transition(stateFailed, job.ID)
		return nil, &prerrors.MissingMetricError{URL: req.URL, Metrics: missing}
	}

	transition(stateSucceeded, job.ID)
	return &Result{Request: req, Job: job, Attempts: 1}, nil
}

// poll fetches the job until it leaves idle/active, reports an error, or
// MaxPollAttempts fetches have been made
func (a *Analyzer) poll(ctx context.Context, id string) (*speedvitals.Job, error) {
	var lastStatus speedvitals.Status

	for attempt := 1; attempt <= a.opts.MaxPollAttempts; attempt++ {
		job, err := a.service.GetTest(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("polling test %s: %w", id, err)
		}
		if msg := job.ErrorMessage(); msg != "" {
			return nil, &prerrors.RemoteError{JobID: id, Message: msg}
		}

		lastStatus = job.Status
		if !job.Status.Pending() {
			return job, nil
		}

		if attempt == a.opts.MaxPollAttempts {
			break
		}

		select {
		case <-a.opts.Clock.After(a.opts.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, &prerrors.TimeoutError{JobID: id, LastStatus: string(lastStatus), Attempts: a.opts.MaxPollAttempts}
}
