package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/life4/genesis/slices"
	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
)

type Summary struct {
	Total           int     `json:"total"`
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	PassRate        float64 `json:"pass_rate"`
	TotalDurationMs int64   `json:"total_duration_ms"`
	AvgDurationMs   int64   `json:"avg_duration_ms"`
}

func Summarize(runs []model.TestRun) Summary {
	s := Summary{Total: len(runs)}
	s.Passed = len(slices.Filter(runs, func(r model.TestRun) bool { return r.Passed() }))
	s.Failed = s.Total - s.Passed
	for _, r := range runs {
		s.TotalDurationMs += r.DurationMs
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total) * 100
		s.AvgDurationMs = s.TotalDurationMs / int64(s.Total)
	}
	return s
}

// FailedRuns returns the runs whose validation failed, in order.
func FailedRuns(runs []model.TestRun) []model.TestRun {
	return slices.Filter(runs, func(r model.TestRun) bool { return !r.Passed() })
}

func PrintTestSummary(w io.Writer, runs []model.TestRun) {
	if len(runs) == 0 {
		logger.Logger.Info("No tests were run")
		return
	}

	s := Summarize(runs)

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, "[Summary] Test Execution Summary")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "  Total Tests:      %d\n", s.Total)
	fmt.Fprintf(w, "  Passed:           %d (%.1f%%)\n", s.Passed, s.PassRate)
	fmt.Fprintf(w, "  Failed:           %d (%.1f%%)\n", s.Failed, 100-s.PassRate)
	fmt.Fprintf(w, "  Total Duration:   %dms (avg: %dms per test)\n", s.TotalDurationMs, s.AvgDurationMs)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	logger.Logger.Info("Test execution summary",
		"total_tests", s.Total,
		"passed", s.Passed,
		"failed", s.Failed,
		"pass_rate", fmt.Sprintf("%.1f%%", s.PassRate),
		"total_duration_ms", s.TotalDurationMs,
		"avg_duration_ms", s.AvgDurationMs)
}
