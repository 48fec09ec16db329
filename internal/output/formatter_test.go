package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/go-speedvitals/internal/analyzer"
	"github.com/mrz1836/go-speedvitals/internal/budget"
	"github.com/mrz1836/go-speedvitals/internal/speedvitals"
)

func newTestFormatter() (*Formatter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	f := New(Options{
		ColorEnabled: false, // Disable color for predictable testing
		Out:          &out,
		Err:          &errOut,
	})
	return f, &out, &errOut
}

func TestNewDefault(t *testing.T) {
	t.Run("NO_COLOR DisablesColor", func(t *testing.T) {
		t.Setenv("NO_COLOR", "1")
		assert.False(t, NewDefault().ColorEnabled())
	})

	t.Run("SPEEDVITALS_COLOR_OUTPUT DisablesColor", func(t *testing.T) {
		t.Setenv("NO_COLOR", "")
		t.Setenv("SPEEDVITALS_COLOR_OUTPUT", "false")
		assert.False(t, NewDefault().ColorEnabled())
	})

	t.Run("CI DisablesColor", func(t *testing.T) {
		t.Setenv("NO_COLOR", "")
		t.Setenv("SPEEDVITALS_COLOR_OUTPUT", "")
		t.Setenv("GITHUB_ACTIONS", "true")
		assert.False(t, NewDefault().ColorEnabled())
	})
}

func TestNewWithColorMode(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, NewWithColorMode(ColorAlways).ColorEnabled(), "always wins over NO_COLOR")
	assert.False(t, NewWithColorMode(ColorNever).ColorEnabled())
}

func TestParseColorMode(t *testing.T) {
	testCases := []struct {
		input    string
		expected ColorMode
		wantErr  bool
	}{
		{"", ColorAuto, false},
		{"auto", ColorAuto, false},
		{"ALWAYS", ColorAlways, false},
		{" never ", ColorNever, false},
		{"sometimes", ColorAuto, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			mode, err := ParseColorMode(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidColorMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, mode)
		})
	}
}

func TestFormatterOutput(t *testing.T) {
	f, out, errOut := newTestFormatter()

	t.Run("Success", func(t *testing.T) {
		out.Reset()
		f.Success("test message")
		assert.Equal(t, "✓ test message\n", out.String())
	})

	t.Run("Error", func(t *testing.T) {
		errOut.Reset()
		f.Error("test error")
		assert.Equal(t, "✗ test error\n", errOut.String())
	})

	t.Run("Warning", func(t *testing.T) {
		errOut.Reset()
		f.Warning("test warning")
		assert.Equal(t, "⚠ test warning\n", errOut.String())
	})

	t.Run("Info", func(t *testing.T) {
		out.Reset()
		f.Info("test info")
		assert.Equal(t, "ℹ test info\n", out.String())
	})

	t.Run("Progress", func(t *testing.T) {
		out.Reset()
		f.Progress("test progress")
		assert.Equal(t, "⏳ test progress\n", out.String())
	})

	t.Run("SuggestAction", func(t *testing.T) {
		out.Reset()
		f.SuggestAction("set SPEEDVITALS_API_KEY")
		assert.Equal(t, "💡 set SPEEDVITALS_API_KEY\n", out.String())
	})

	t.Run("Header", func(t *testing.T) {
		out.Reset()
		f.Header("Results")
		assert.Equal(t, "\nResults\n───────\n", out.String())
	})

	t.Run("Detail", func(t *testing.T) {
		out.Reset()
		f.Detail("%s=%d", "a", 1)
		assert.Equal(t, "  a=1\n", out.String())
	})
}

func TestColoredOutput(t *testing.T) {
	var out bytes.Buffer
	f := New(Options{ColorEnabled: true, Out: &out, Err: &out})

	f.Success("ok")
	assert.Contains(t, out.String(), "\x1b[")
	assert.Contains(t, out.String(), "✓ ok")
}

func TestDurationFormatting(t *testing.T) {
	f, _, _ := newTestFormatter()

	testCases := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"Microseconds", 500 * time.Microsecond, "500μs"},
		{"Milliseconds", 250 * time.Millisecond, "250ms"},
		{"Seconds", 2500 * time.Millisecond, "2.5s"},
		{"Minutes", 90 * time.Second, "1.5m"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, f.Duration(tc.duration))
		})
	}
}

func sampleResults() []analyzer.Result {
	return []analyzer.Result{
		{
			Request: speedvitals.TestRequest{URL: "https://example.com", Device: "mobile", Location: "us"},
			Job: &speedvitals.Job{
				ID:        "t-1",
				ReportURL: "https://speedvitals.com/report/t-1",
				Metrics: speedvitals.Metrics{
					speedvitals.MetricLargestContentfulPaint: speedvitals.Float(3012.4),
					speedvitals.MetricCumulativeLayoutShift:  speedvitals.Float(0.05),
				},
			},
			Attempts: 2,
		},
		{
			Request: speedvitals.TestRequest{URL: "https://example.org", Device: "desktop", Location: "de"},
			Job: &speedvitals.Job{
				ID: "t-2",
				Metrics: speedvitals.Metrics{
					speedvitals.MetricLargestContentfulPaint: speedvitals.Float(1200),
				},
			},
			Attempts: 1,
		},
	}
}

func sampleRules() []budget.Rule {
	return []budget.Rule{
		{Metric: speedvitals.MetricLargestContentfulPaint, Threshold: 2500, Direction: budget.Below},
		{Metric: speedvitals.MetricCumulativeLayoutShift, Threshold: 0.1, Direction: budget.Below},
	}
}

func TestResultsTable(t *testing.T) {
	f, out, _ := newTestFormatter()

	f.ResultsTable(sampleResults(), sampleRules())

	s := out.String()
	assert.Contains(t, s, "┌─ Test 1: https://example.com | Device: mobile | Location: us\n")
	assert.Contains(t, s, "│  largest_contentful_paint   3012ms\n")
	assert.Contains(t, s, "│  cumulative_layout_shift    0.050\n")
	assert.Contains(t, s, "└─ 📄 Report: https://speedvitals.com/report/t-1\n")
	assert.Contains(t, s, "┌─ Test 2: https://example.org | Device: desktop | Location: de\n")
	assert.Contains(t, s, "│  cumulative_layout_shift    N/A\n")
	assert.Contains(t, s, "└─ 📄 Report: N/A\n")
	assert.Less(t, strings.Index(s, "Test 1"), strings.Index(s, "Test 2"))
}

func TestRegressions(t *testing.T) {
	t.Run("NoRegression", func(t *testing.T) {
		f, out, errOut := newTestFormatter()
		f.Regressions(budget.Verdict{})
		assert.Equal(t, "✓ No budget regressions detected.\n", out.String())
		assert.Empty(t, errOut.String())
	})

	t.Run("Violations", func(t *testing.T) {
		f, _, errOut := newTestFormatter()
		verdict := budget.Evaluate([]budget.Measurement{{
			Subject: budget.Subject{URL: "https://example.com", Device: "mobile", Location: "us"},
			Metrics: speedvitals.Metrics{
				speedvitals.MetricLargestContentfulPaint: speedvitals.Float(3000),
				speedvitals.MetricCumulativeLayoutShift:  nil,
			},
		}}, sampleRules())

		f.Regressions(verdict)
		s := errOut.String()
		assert.Contains(t, s, "⚠ Budget regression detected for largest_contentful_paint: 3000ms > 2500 | URL https://example.com Device: mobile, Location: us\n")
		assert.Contains(t, s, "⚠ Budget regression detected for cumulative_layout_shift: N/A > 0.1 | URL https://example.com")
	})
}

func TestJSONReport(t *testing.T) {
	f, out, _ := newTestFormatter()

	results := sampleResults()
	rules := sampleRules()
	verdict := budget.Evaluate([]budget.Measurement{{
		Subject: budget.Subject{URL: "https://example.com", Device: "mobile", Location: "us"},
		Metrics: results[0].Job.Metrics,
	}}, rules)

	report := NewReport("run-1", 1500*time.Millisecond, results, rules, verdict)
	require.NoError(t, f.JSON(report))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["runId"])
	assert.Equal(t, "1.5s", decoded["duration"])
	assert.Equal(t, true, decoded["hasRegression"])

	resultsJSON, ok := decoded["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, resultsJSON, 2)
	first, ok := resultsJSON[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "t-1", first["testId"])
	assert.InDelta(t, 2, first["attempts"], 0)

	violations, ok := decoded["violations"].([]interface{})
	require.True(t, ok)
	require.Len(t, violations, 1)
	v, ok := violations[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "largest_contentful_paint", v["metric"])
	assert.Equal(t, ">", v["comparator"])
}
