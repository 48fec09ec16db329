package budget

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	prerrors "github.com/mrz1836/go-speedvitals/internal/errors"
	"github.com/mrz1836/go-speedvitals/internal/speedvitals"
)

func measurement(url string, metrics map[string]float64) Measurement {
	m := speedvitals.Metrics{}
	for k, v := range metrics {
		m[k] = speedvitals.Float(v)
	}
	return Measurement{Subject: Subject{URL: url, Device: "mobile", Location: "us"}, Metrics: m}
}

func TestEvaluate_Thresholds(t *testing.T) {
	lcp := Rule{Metric: speedvitals.MetricLargestContentfulPaint, Threshold: 2500, Direction: Below}
	score := Rule{Metric: speedvitals.MetricPerformanceScore, Threshold: 90, Direction: Above}

	tests := []struct {
		name       string
		rule       Rule
		value      float64
		regression bool
	}{
		{"lcp over budget", lcp, 3000, true},
		{"lcp under budget", lcp, 2000, false},
		{"lcp exactly at budget", lcp, 2500, false},
		{"score under budget", score, 85, true},
		{"score over budget", score, 95, false},
		{"score exactly at budget", score, 90, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Evaluate(
				[]Measurement{measurement("https://example.com", map[string]float64{tt.rule.Metric: tt.value})},
				[]Rule{tt.rule},
			)

			assert.Equal(t, tt.regression, verdict.HasRegression)
			if tt.regression {
				require.Len(t, verdict.Violations, 1)
				v := verdict.Violations[0]
				assert.Equal(t, tt.rule.Metric, v.Metric)
				require.NotNil(t, v.Value)
				assert.InDelta(t, tt.value, *v.Value, 0.0001)
				assert.InDelta(t, tt.rule.Threshold, v.Threshold, 0.0001)
				assert.Equal(t, tt.rule.Direction.Comparator(), v.Comparator)
				assert.Equal(t, "https://example.com", v.Subject.URL)
			} else {
				assert.Empty(t, verdict.Violations)
			}
		})
	}
}

func TestEvaluate_MissingValueIsRegression(t *testing.T) {
	m := Measurement{
		Subject: Subject{URL: "https://example.com"},
		Metrics: speedvitals.Metrics{speedvitals.MetricSpeedIndex: nil},
	}

	verdict := Evaluate([]Measurement{m}, []Rule{
		{Metric: speedvitals.MetricSpeedIndex, Threshold: 3400, Direction: Below},
		{Metric: speedvitals.MetricTotalBlockingTime, Threshold: 200, Direction: Below},
	})

	assert.True(t, verdict.HasRegression)
	require.Len(t, verdict.Violations, 2)
	for _, v := range verdict.Violations {
		assert.Nil(t, v.Value)
	}
}

func TestEvaluate_ReportsEveryViolation(t *testing.T) {
	results := []Measurement{
		measurement("https://a.example.com", map[string]float64{
			speedvitals.MetricLargestContentfulPaint: 4000,
			speedvitals.MetricPerformanceScore:       50,
		}),
		measurement("https://b.example.com", map[string]float64{
			speedvitals.MetricLargestContentfulPaint: 1000,
			speedvitals.MetricPerformanceScore:       40,
		}),
	}
	rules := []Rule{
		{Metric: speedvitals.MetricLargestContentfulPaint, Threshold: 2500, Direction: Below},
		{Metric: speedvitals.MetricPerformanceScore, Threshold: 90, Direction: Above},
	}

	verdict := Evaluate(results, rules)
	assert.True(t, verdict.HasRegression)
	assert.Len(t, verdict.Violations, 3)
}

func TestEvaluate_NoRulesOrResults(t *testing.T) {
	verdict := Evaluate(nil, DefaultRules())
	assert.False(t, verdict.HasRegression)
	assert.Empty(t, verdict.Violations)

	verdict = Evaluate([]Measurement{measurement("https://example.com", nil)}, nil)
	assert.False(t, verdict.HasRegression)
}

func TestEvaluate_OrderIndependent(t *testing.T) {
	results := []Measurement{
		measurement("https://a.example.com", map[string]float64{speedvitals.MetricLargestContentfulPaint: 3000, speedvitals.MetricPerformanceScore: 99}),
		measurement("https://b.example.com", map[string]float64{speedvitals.MetricLargestContentfulPaint: 2000, speedvitals.MetricPerformanceScore: 80}),
		measurement("https://c.example.com", map[string]float64{speedvitals.MetricLargestContentfulPaint: 5000}),
		measurement("https://a.example.com", map[string]float64{speedvitals.MetricLargestContentfulPaint: 2600, speedvitals.MetricPerformanceScore: 91}),
	}
	rules := []Rule{
		{Metric: speedvitals.MetricLargestContentfulPaint, Threshold: 2500, Direction: Below},
		{Metric: speedvitals.MetricPerformanceScore, Threshold: 90, Direction: Above},
	}

	base := Evaluate(results, rules)

	permutations := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, perm := range permutations {
		permuted := make([]Measurement, len(results))
		for i, idx := range perm {
			permuted[i] = results[idx]
		}

		got := Evaluate(permuted, rules)
		assert.Equal(t, base.HasRegression, got.HasRegression)

		less := func(a, b Violation) bool {
			if a.Subject.URL != b.Subject.URL {
				return a.Subject.URL < b.Subject.URL
			}
			if a.Metric != b.Metric {
				return a.Metric < b.Metric
			}
			return valueOrNegInf(a.Value) < valueOrNegInf(b.Value)
		}
		if diff := cmp.Diff(base.Violations, got.Violations, cmpopts.SortSlices(less)); diff != "" {
			t.Errorf("violations differ for permutation %v (-want +got):\n%s", perm, diff)
		}
	}
}

func TestVerdict_Err(t *testing.T) {
	clean := Verdict{}
	assert.NoError(t, clean.Err(true))

	regressed := Verdict{HasRegression: true, Violations: []Violation{{Metric: "speed_index"}}}
	assert.NoError(t, regressed.Err(false))

	err := regressed.Err(true)
	require.ErrorIs(t, err, prerrors.ErrRegression)
	var regressionErr *prerrors.RegressionError
	require.ErrorAs(t, err, &regressionErr)
	assert.Equal(t, 1, regressionErr.Violations)
}

func TestRule_Validate(t *testing.T) {
	require.NoError(t, Rule{Metric: speedvitals.MetricSpeedIndex, Threshold: 1, Direction: Below}.Validate())
	require.ErrorIs(t, Rule{Metric: "bogus", Direction: Below}.Validate(), prerrors.ErrUnknownMetric)
	require.ErrorIs(t, Rule{Metric: speedvitals.MetricSpeedIndex, Direction: "sideways"}.Validate(), prerrors.ErrInvalidDirection)
}

func TestMetrics_Deduplicates(t *testing.T) {
	rules := []Rule{
		{Metric: speedvitals.MetricSpeedIndex},
		{Metric: speedvitals.MetricPerformanceScore},
		{Metric: speedvitals.MetricSpeedIndex},
	}
	assert.Equal(t, []string{speedvitals.MetricSpeedIndex, speedvitals.MetricPerformanceScore}, Metrics(rules))
}

func TestThresholds_RulesAndDirections(t *testing.T) {
	flags := Thresholds{
		PerformanceScore: speedvitals.Float(80),
		CLS:              speedvitals.Float(0.25),
		TTI:              speedvitals.Float(5000),
	}

	rules := flags.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, Rule{Metric: speedvitals.MetricPerformanceScore, Threshold: 80, Direction: Above}, rules[0])
	assert.Equal(t, Rule{Metric: speedvitals.MetricCumulativeLayoutShift, Threshold: 0.25, Direction: Below}, rules[1])
	assert.Equal(t, Rule{Metric: speedvitals.MetricTimeToInteractive, Threshold: 5000, Direction: Below}, rules[2])
	assert.False(t, flags.IsEmpty())
	assert.True(t, Thresholds{}.IsEmpty())
}

func TestThresholds_Validate(t *testing.T) {
	problems := Thresholds{
		LCP:              speedvitals.Float(0),
		CLS:              speedvitals.Float(0),
		TBT:              speedvitals.Float(-1),
		PerformanceScore: speedvitals.Float(101),
	}.Validate()

	assert.Equal(t, []string{
		"LCP budget must be a positive number",
		"TBT budget must be non-negative",
		"Performance Score must be between 0 and 100",
	}, problems)
}

func TestResolve(t *testing.T) {
	t.Run("defaults when nothing configured", func(t *testing.T) {
		assert.Equal(t, DefaultRules(), Resolve(nil, Thresholds{}))
	})

	t.Run("flags override file rules for the same metric", func(t *testing.T) {
		fileRules := []Rule{
			{Metric: speedvitals.MetricLargestContentfulPaint, Threshold: 3000, Direction: Below},
			{Metric: speedvitals.MetricSpeedIndex, Threshold: 4000, Direction: Below},
		}
		rules := Resolve(fileRules, Thresholds{LCP: speedvitals.Float(2000)})

		assert.Equal(t, []Rule{
			{Metric: speedvitals.MetricSpeedIndex, Threshold: 4000, Direction: Below},
			{Metric: speedvitals.MetricLargestContentfulPaint, Threshold: 2000, Direction: Below},
		}, rules)
	})
}

func TestParse(t *testing.T) {
	rules, err := Parse([]byte(`
budgets:
  - metric: largest_contentful_paint
    threshold: 2500
  - metric: performance_score
    threshold: 85
    direction: above
`))
	require.NoError(t, err)
	assert.Equal(t, []Rule{
		{Metric: speedvitals.MetricLargestContentfulPaint, Threshold: 2500, Direction: Below},
		{Metric: speedvitals.MetricPerformanceScore, Threshold: 85, Direction: Above},
	}, rules)

	_, err = Parse([]byte(``))
	require.ErrorIs(t, err, ErrEmptyBudgetFile)

	_, err = Parse([]byte("budgets: []\n"))
	require.ErrorIs(t, err, ErrEmptyBudgetFile)

	_, err = Parse([]byte("budgets:\n  - metric: nope\n    threshold: 1\n"))
	require.ErrorIs(t, err, prerrors.ErrUnknownMetric)

	_, err = Parse([]byte("budgets:\n  - metric: speed_index\n    limit: 1\n"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budgets:\n  - metric: speed_index\n    threshold: 3000\n"), 0o600))

	rules, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Rule{{Metric: speedvitals.MetricSpeedIndex, Threshold: 3000, Direction: Below}}, rules)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "N/A", FormatValue(speedvitals.MetricSpeedIndex, nil))
	assert.Equal(t, "0.123", FormatValue(speedvitals.MetricCumulativeLayoutShift, speedvitals.Float(0.12345)))
	assert.Equal(t, "92", FormatValue(speedvitals.MetricPerformanceScore, speedvitals.Float(91.6)))
	assert.Equal(t, "2501ms", FormatValue(speedvitals.MetricLargestContentfulPaint, speedvitals.Float(2500.5)))
	assert.Equal(t, "0.1", FormatThreshold(0.1))
	assert.Equal(t, "2500", FormatThreshold(2500))
}
