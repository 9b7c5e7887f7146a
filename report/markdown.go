package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/mykhaliev/tool-bench/model"
	"github.com/mykhaliev/tool-bench/version"
)

func Markdown(runs []model.TestRun, testFile string) string {
	var md strings.Builder
	s := Summarize(runs)

	md.WriteString("# Test Results\n\n")
	fmt.Fprintf(&md, "**Tool Bench Version:** %s\n", version.Version)
	if testFile != "" {
		fmt.Fprintf(&md, "**Test File:** %s\n", testFile)
	}
	fmt.Fprintf(&md, "**Generated:** %s\n\n", time.Now().Format(time.RFC3339))

	md.WriteString("## Summary\n\n")
	fmt.Fprintf(&md, "- **Total:** %d\n", s.Total)
	fmt.Fprintf(&md, "- **Passed:** %d\n", s.Passed)
	fmt.Fprintf(&md, "- **Failed:** %d\n\n", s.Failed)

	md.WriteString("| Test | Server | Tool | Expected | Actual | Status | Duration |\n")
	md.WriteString("|------|--------|------|----------|--------|--------|----------|\n")
	for _, run := range runs {
		status := "✅ PASS"
		if !run.Passed() {
			status = "❌ FAIL"
		}
		fmt.Fprintf(&md, "| %s | %s | %s | %s | %s | %s | %.2fs |\n",
			escapeCell(run.TestName),
			escapeCell(run.Server),
			escapeCell(run.Tool),
			run.Expected,
			run.Response.Status,
			status,
			float64(run.DurationMs)/1000.0)
	}

	failed := FailedRuns(runs)
	if len(failed) > 0 {
		md.WriteString("\n## Failures\n\n")
		for _, run := range failed {
			fmt.Fprintf(&md, "### %s\n\n", run.TestName)
			if run.Description != "" {
				fmt.Fprintf(&md, "_%s_\n\n", run.Description)
			}
			for _, e := range run.Result.Errors {
				fmt.Fprintf(&md, "- %s\n", e)
			}
			md.WriteString("\n")
		}
	}

	return md.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
