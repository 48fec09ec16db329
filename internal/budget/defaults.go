package budget

import (
	"fmt"
	"math"

	"github.com/mrz1836/go-speedvitals/internal/speedvitals"
)

// knownMetrics lists every metric a rule may reference, with the
// direction it is budgeted in
//
//nolint:gochecknoglobals // static metric table
var knownMetrics = map[string]Direction{
	speedvitals.MetricPerformanceScore:       Above,
	speedvitals.MetricLargestContentfulPaint: Below,
	speedvitals.MetricCumulativeLayoutShift:  Below,
	speedvitals.MetricFirstContentfulPaint:   Below,
	speedvitals.MetricTotalBlockingTime:      Below,
	speedvitals.MetricServerResponseTime:     Below,
	speedvitals.MetricSpeedIndex:             Below,
	speedvitals.MetricTimeToInteractive:      Below,
	speedvitals.MetricFirstMeaningfulPaint:   Below,
}

// Default thresholds applied when no budget is configured
const (
	DefaultPerformanceScore   = 90
	DefaultLCP                = 2500
	DefaultCLS                = 0.1
	DefaultFCP                = 1800
	DefaultTBT                = 200
	DefaultServerResponseTime = 800
	DefaultSpeedIndex         = 3400
)

// DefaultRules returns the budget used when the user sets none
func DefaultRules() []Rule {
	return []Rule{
		{Metric: speedvitals.MetricPerformanceScore, Threshold: DefaultPerformanceScore, Direction: Above},
		{Metric: speedvitals.MetricLargestContentfulPaint, Threshold: DefaultLCP, Direction: Below},
		{Metric: speedvitals.MetricCumulativeLayoutShift, Threshold: DefaultCLS, Direction: Below},
		{Metric: speedvitals.MetricFirstContentfulPaint, Threshold: DefaultFCP, Direction: Below},
		{Metric: speedvitals.MetricTotalBlockingTime, Threshold: DefaultTBT, Direction: Below},
		{Metric: speedvitals.MetricServerResponseTime, Threshold: DefaultServerResponseTime, Direction: Below},
		{Metric: speedvitals.MetricSpeedIndex, Threshold: DefaultSpeedIndex, Direction: Below},
	}
}

// Thresholds holds the per-metric budget flags; nil means not set
type Thresholds struct {
	PerformanceScore     *float64
	LCP                  *float64
	CLS                  *float64
	FCP                  *float64
	TBT                  *float64
	TTI                  *float64
	ServerResponseTime   *float64
	SpeedIndex           *float64
	FirstMeaningfulPaint *float64
}

// IsEmpty reports whether no threshold is set
func (t Thresholds) IsEmpty() bool {
	return len(t.Rules()) == 0
}

// Rules converts the set thresholds into rules, in a fixed metric order
func (t Thresholds) Rules() []Rule {
	pairs := []struct {
		metric string
		value  *float64
	}{
		{speedvitals.MetricPerformanceScore, t.PerformanceScore},
		{speedvitals.MetricLargestContentfulPaint, t.LCP},
		{speedvitals.MetricCumulativeLayoutShift, t.CLS},
		{speedvitals.MetricFirstContentfulPaint, t.FCP},
		{speedvitals.MetricTotalBlockingTime, t.TBT},
		{speedvitals.MetricServerResponseTime, t.ServerResponseTime},
		{speedvitals.MetricSpeedIndex, t.SpeedIndex},
		{speedvitals.MetricTimeToInteractive, t.TTI},
		{speedvitals.MetricFirstMeaningfulPaint, t.FirstMeaningfulPaint},
	}

	rules := make([]Rule, 0, len(pairs))
	for _, p := range pairs {
		if p.value == nil {
			continue
		}
		rules = append(rules, Rule{Metric: p.metric, Threshold: *p.value, Direction: knownMetrics[p.metric]})
	}
	return rules
}

// Validate returns one message per out-of-range threshold
func (t Thresholds) Validate() []string {
	var problems []string

	positive := func(name string, v *float64) {
		if v != nil && !(*v > 0) {
			problems = append(problems, fmt.Sprintf("%s budget must be a positive number", name))
		}
	}
	nonNegative := func(name string, v *float64) {
		if v != nil && !(*v >= 0) {
			problems = append(problems, fmt.Sprintf("%s budget must be non-negative", name))
		}
	}

	positive("LCP", t.LCP)
	nonNegative("CLS", t.CLS)
	positive("FCP", t.FCP)
	nonNegative("TBT", t.TBT)
	positive("TTI", t.TTI)
	positive("First Meaningful Paint", t.FirstMeaningfulPaint)
	positive("Server Response Time", t.ServerResponseTime)
	positive("Speed Index", t.SpeedIndex)
	if v := t.PerformanceScore; v != nil && (math.IsNaN(*v) || *v < 0 || *v > 100) {
		problems = append(problems, "Performance Score must be between 0 and 100")
	}

	return problems
}

// Resolve picks the rules for a run: file rules, then flag rules, else defaults.
// Flag rules replace file rules for the same metric.
func Resolve(fileRules []Rule, flags Thresholds) []Rule {
	flagRules := flags.Rules()
	if len(fileRules) == 0 && len(flagRules) == 0 {
		return DefaultRules()
	}

	overridden := make(map[string]bool, len(flagRules))
	for _, r := range flagRules {
		overridden[r.Metric] = true
	}

	rules := make([]Rule, 0, len(fileRules)+len(flagRules))
	for _, r := range fileRules {
		if !overridden[r.Metric] {
			rules = append(rules, r)
		}
	}
	return append(rules, flagRules...)
}
