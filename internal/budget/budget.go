// Package budget defines performance budget rules and evaluates test results against them
package budget

import (
	"fmt"
	"math"
	"sort"

	prerrors "github.com/mrz1836/go-speedvitals/internal/errors"
	"github.com/mrz1836/go-speedvitals/internal/speedvitals"
)

// Direction tells which side of the threshold passes
type Direction string

const (
	// Above means the metric must be >= threshold (higher is better)
	Above Direction = "above"
	// Below means the metric must be <= threshold (lower is better)
	Below Direction = "below"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == Above || d == Below
}

// Comparator is the operator shown when a value violates the direction
func (d Direction) Comparator() string {
	if d == Above {
		return "<"
	}
	return ">"
}

// Rule is a threshold a metric must satisfy
type Rule struct {
	Metric    string    `json:"metric" yaml:"metric"`
	Threshold float64   `json:"threshold" yaml:"threshold"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// Validate checks the rule is usable
func (r Rule) Validate() error {
	if _, ok := knownMetrics[r.Metric]; !ok {
		return fmt.Errorf("%w: %q", prerrors.ErrUnknownMetric, r.Metric)
	}
	if !r.Direction.Valid() {
		return fmt.Errorf("%w: %q for %s", prerrors.ErrInvalidDirection, r.Direction, r.Metric)
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return fmt.Errorf("threshold for %s must be a finite number", r.Metric)
	}
	return nil
}

// Passes reports whether value satisfies the rule
func (r Rule) Passes(value float64) bool {
	if r.Direction == Above {
		return value >= r.Threshold
	}
	return value <= r.Threshold
}

// Metrics returns the metric names referenced by rules, in rule order without duplicates
func Metrics(rules []Rule) []string {
	seen := make(map[string]bool, len(rules))
	names := make([]string, 0, len(rules))
	for _, r := range rules {
		if seen[r.Metric] {
			continue
		}
		seen[r.Metric] = true
		names = append(names, r.Metric)
	}
	return names
}

// Subject identifies the tested page a result belongs to
type Subject struct {
	URL      string `json:"url"`
	Device   string `json:"device"`
	Location string `json:"location"`
}

// Measurement is the input to Evaluate: one result's metrics
type Measurement struct {
	Subject Subject
	Metrics speedvitals.Metrics
}

// Violation is one metric of one result failing one rule
type Violation struct {
	Metric     string    `json:"metric"`
	Value      *float64  `json:"value"`
	Threshold  float64   `json:"threshold"`
	Direction  Direction `json:"direction"`
	Comparator string    `json:"comparator"`
	Subject    Subject   `json:"subject"`
}

// Verdict is the outcome of evaluating a set of results
type Verdict struct {
	HasRegression bool        `json:"hasRegression"`
	Violations    []Violation `json:"violations"`
}

// Err returns a RegressionError when the verdict should fail the run
func (v Verdict) Err(failOnRegression bool) error {
	if failOnRegression && v.HasRegression {
		return &prerrors.RegressionError{Violations: len(v.Violations)}
	}
	return nil
}

// Evaluate checks every (measurement, rule) pair and reports every violation.
// A missing value is a violation. The result does not depend on the order of measurements.
func Evaluate(measurements []Measurement, rules []Rule) Verdict {
	verdict := Verdict{Violations: []Violation{}}

	for _, m := range measurements {
		for _, rule := range rules {
			value, ok := m.Metrics.Value(rule.Metric)
			if ok && rule.Passes(value) {
				continue
			}

			v := Violation{
				Metric:     rule.Metric,
				Threshold:  rule.Threshold,
				Direction:  rule.Direction,
				Comparator: rule.Direction.Comparator(),
				Subject:    m.Subject,
			}
			if ok {
				v.Value = speedvitals.Float(value)
			}
			verdict.Violations = append(verdict.Violations, v)
		}
	}

	sortViolations(verdict.Violations)
	verdict.HasRegression = len(verdict.Violations) > 0
	return verdict
}

// sortViolations orders violations by subject then metric so reports are stable
func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.Subject.URL != b.Subject.URL {
			return a.Subject.URL < b.Subject.URL
		}
		if a.Subject.Device != b.Subject.Device {
			return a.Subject.Device < b.Subject.Device
		}
		if a.Subject.Location != b.Subject.Location {
			return a.Subject.Location < b.Subject.Location
		}
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		if a.Threshold != b.Threshold {
			return a.Threshold < b.Threshold
		}
		return valueOrNegInf(a.Value) < valueOrNegInf(b.Value)
	})
}

func valueOrNegInf(v *float64) float64 {
	if v == nil {
		return math.Inf(-1)
	}
	return *v
}
