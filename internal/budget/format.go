package budget

import (
	"fmt"
	"math"
	"strconv"

	"github.com/mrz1836/go-speedvitals/internal/speedvitals"
)

// FormatValue renders a metric value in its natural unit
func FormatValue(metric string, value *float64) string {
	if value == nil {
		return "N/A"
	}

	switch metric {
	case speedvitals.MetricCumulativeLayoutShift:
		return strconv.FormatFloat(*value, 'f', 3, 64)
	case speedvitals.MetricPerformanceScore:
		return strconv.FormatFloat(*value, 'f', 0, 64)
	default:
		return fmt.Sprintf("%dms", int64(math.Round(*value)))
	}
}

// FormatThreshold renders a threshold without trailing zeros
func FormatThreshold(threshold float64) string {
	return strconv.FormatFloat(threshold, 'f', -1, 64)
}
