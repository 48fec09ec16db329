// Package errors defines common errors for the speedvitals analysis system
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	// ErrRemote is returned when the remote test service reports an error
	ErrRemote = errors.New("remote test service error")

	// ErrMissingMetric is returned when a finished test lacks a budgeted metric
	ErrMissingMetric = errors.New("budgeted metric missing from result")

	// ErrTimeout is returned when a test does not leave the pending state in time
	ErrTimeout = errors.New("timed out waiting for test result")

	// ErrExhaustedRetries is returned when every attempt for a request failed
	ErrExhaustedRetries = errors.New("retries exhausted")

	// ErrRegression is returned when budget violations fail the run
	ErrRegression = errors.New("budget regression detected")

	// ErrInvalidOptions is returned when analyze options do not validate
	ErrInvalidOptions = errors.New("invalid options")

	// ErrNoRequests is returned when there is nothing to analyze
	ErrNoRequests = errors.New("no test requests to run")

	// ErrAPIKeyMissing is returned when no API key is configured
	ErrAPIKeyMissing = errors.New("API key is required")

	// ErrUnknownMetric is returned when a budget names a metric that does not exist
	ErrUnknownMetric = errors.New("unknown budget metric")

	// ErrInvalidDirection is returned when a budget direction is not above or below
	ErrInvalidDirection = errors.New("budget direction must be 'above' or 'below'")

	// ErrEnvFileNotFound is returned when no .speedvitals.env file exists above the working directory
	ErrEnvFileNotFound = errors.New(".speedvitals.env file not found")

	// ErrUnexpectedResponse is returned when the service response cannot be interpreted
	ErrUnexpectedResponse = errors.New("unexpected response from test service")
)

// RemoteError is an explicit error reported by the remote test service,
// either as an error envelope or as the error field of a job
type RemoteError struct {
	// Code from the error envelope (empty for per-job errors)
	Code string

	// Message reported by the service
	Message string

	// JobID of the affected job, when known
	JobID string
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString("analysis failed")
	if e.JobID != "" {
		fmt.Fprintf(&b, " for test %s", e.JobID)
	}
	b.WriteString(": ")
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString("unknown error")
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (code: %s)", e.Code)
	}
	return b.String()
}

// Is implements the error checking interface
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}

// MissingMetricError means a test finished but some budgeted metrics are null
type MissingMetricError struct {
	URL     string
	Metrics []string
}

// Error implements the error interface
func (e *MissingMetricError) Error() string {
	return fmt.Sprintf("analysis returned null for url %s and metric(s) %s", e.URL, strings.Join(e.Metrics, ", "))
}

// Is implements the error checking interface
func (e *MissingMetricError) Is(target error) bool {
	return target == ErrMissingMetric
}

// TimeoutError means polling ran out of attempts while the test was still pending
type TimeoutError struct {
	JobID      string
	LastStatus string
	Attempts   int
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for test %s to leave the active/idle state after %d polls, last known status: %s",
		e.JobID, e.Attempts, e.LastStatus)
}

// Is implements the error checking interface
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ExhaustedRetriesError is the final failure of a request after all attempts failed
type ExhaustedRetriesError struct {
	// Request identifies the failed request (url | device | location)
	Request string

	// Attempts is the number of full submit and poll cycles made
	Attempts int

	// Err is the failure of the last attempt
	Err error
}

// Error implements the error interface
func (e *ExhaustedRetriesError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to analyze %s after %d attempt(s)", e.Request, e.Attempts)
	}
	return fmt.Sprintf("failed to analyze %s after %d attempt(s): %v", e.Request, e.Attempts, e.Err)
}

// Unwrap implements the error unwrapping interface
func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Err
}

// Is implements the error checking interface
func (e *ExhaustedRetriesError) Is(target error) bool {
	return target == ErrExhaustedRetries
}

// RegressionError fails a run whose results violate the budget
type RegressionError struct {
	Violations int
}

// Error implements the error interface
func (e *RegressionError) Error() string {
	return fmt.Sprintf("budget regression detected: %d violation(s)", e.Violations)
}

// Is implements the error checking interface
func (e *RegressionError) Is(target error) bool {
	return target == ErrRegression
}
