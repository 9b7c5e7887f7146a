package report

import (
	"fmt"
	"io"

	"github.com/mykhaliev/tool-bench/model"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorGray  = "\033[90m"
)

// WriteConsole prints one line per test, followed by its validation errors.
func WriteConsole(w io.Writer, runs []model.TestRun, color bool) {
	paint := func(c, s string) string {
		if !color {
			return s
		}
		return c + s + colorReset
	}

	fmt.Fprintln(w, "\n═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                     DETAILED TEST RESULTS")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	for _, run := range runs {
		mark := paint(colorGreen, "✓ PASS")
		if !run.Passed() {
			mark = paint(colorRed, "✗ FAIL")
		}

		fmt.Fprintf(w, "%s %s %s (%.2fs)\n",
			mark,
			run.TestName,
			paint(colorGray, fmt.Sprintf("[%s/%s]", run.Server, run.Tool)),
			float64(run.DurationMs)/1000.0)

		if run.Description != "" {
			fmt.Fprintf(w, "    %s\n", paint(colorGray, run.Description))
		}
		for _, e := range run.Result.Errors {
			fmt.Fprintf(w, "    └─ %s\n", e)
		}
	}
}
