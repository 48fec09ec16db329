// Package speedvitals provides the client and data model for the SpeedVitals
// Lighthouse test API
package speedvitals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Status is the lifecycle state of a remote test job
type Status string

// Job statuses reported by the service
const (
	StatusIdle    Status = "idle"
	StatusActive  Status = "active"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Pending reports whether the job has not reached a terminal status yet
func (s Status) Pending() bool {
	return s == StatusIdle || s == StatusActive
}

// Metric names reported by the service
const (
	MetricPerformanceScore       = "performance_score"
	MetricLargestContentfulPaint = "largest_contentful_paint"
	MetricCumulativeLayoutShift  = "cumulative_layout_shift"
	MetricFirstContentfulPaint   = "first_contentful_paint"
	MetricTotalBlockingTime      = "total_blocking_time"
	MetricServerResponseTime     = "server_response_time"
	MetricSpeedIndex             = "speed_index"
	MetricTimeToInteractive      = "time_to_interactive"
	MetricFirstMeaningfulPaint   = "first_meaningful_paint"
)

// Metrics maps a metric name to its measured value; nil means the service
// could not measure it
type Metrics map[string]*float64

// Value returns the measured value of a metric and whether it is present
func (m Metrics) Value(name string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Missing returns the names that have no measured value, in the given order
func (m Metrics) Missing(names []string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := m.Value(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Names returns the metric names in sorted order
func (m Metrics) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Float is a helper for building Metrics literals
func Float(v float64) *float64 {
	return &v
}

// TestRequest is one unit of work: a URL tested on a device from a location
type TestRequest struct {
	URL      string `json:"url"`
	Device   string `json:"device"`
	Location string `json:"location"`
}

// String identifies the request in messages
func (r TestRequest) String() string {
	return fmt.Sprintf("%s | %s | %s", r.URL, r.Device, r.Location)
}

// Job is a snapshot of a remote test job
type Job struct {
	ID                string          `json:"id"`
	URL               string          `json:"url"`
	Device            string          `json:"device"`
	Location          string          `json:"location"`
	Status            Status          `json:"status"`
	Metrics           Metrics         `json:"metrics"`
	Error             json.RawMessage `json:"error,omitempty"`
	ReportURL         string          `json:"report_url,omitempty"`
	LighthouseVersion string          `json:"lighthouse_version,omitempty"`
	CreatedAt         int64           `json:"created_at,omitempty"`
	ExpiresAt         int64           `json:"expires_at,omitempty"`
}

// ErrorMessage returns the job's error field as text, or "" when the job has no error.
// The service sends either a string or an object with a message field; falsy
// values (null, false, "", 0) mean no error.
func (j *Job) ErrorMessage() string {
	raw := bytes.TrimSpace(j.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return ""
		}
		return s
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}

	if bytes.Equal(raw, []byte("false")) {
		return ""
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && n == 0 {
		return ""
	}
	return string(raw)
}

// ErrorEnvelope is the body the service returns instead of a job on failure
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
