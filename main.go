package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mykhaliev/tool-bench/engine"
	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/mykhaliev/tool-bench/report"
	"github.com/mykhaliev/tool-bench/templates"
	"github.com/mykhaliev/tool-bench/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	AppName = "tool-bench"
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	testPath := flag.String("f", "", "Path to the test configuration file (YAML)")
	outputPath := flag.String("o", "", "Path to the report file (md, json, html)")
	reportType := flag.String("reportType", "console", "Report type: console, md, json, html")
	fromJSON := flag.String("fromJSON", "", "Render a report from a previous JSON report instead of running tests")
	logPath := flag.String("l", "", "Path to the log file (logs always go to stderr, the report to stdout)")
	metricsAddr := flag.String("metrics-addr", "", "Expose Prometheus metrics on this address, e.g. :9090")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	showVersion := flag.Bool("v", false, "Show version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("Version: %s\nCommit: %s\nBuildDate: %s\n",
			version.Version, version.Commit, version.BuildDate)
		return
	}

	logWriter, logFile, err := logger.SetupLogWriter(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	logger.SetupLogger(logWriter, *verbose)
	templates.NewTemplateEngine()

	if *testPath == "" && *fromJSON == "" {
		fmt.Fprintf(os.Stderr, "Error: -f <test-file> or -fromJSON <report.json> is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if err := report.ValidateOutput(*reportType, *outputPath); err != nil {
		logger.Logger.Error("Invalid report options", "error", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		serveMetrics(*metricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	logger.Logger.Info("Starting application",
		"app", AppName,
		"version", version.Version,
		"config", *testPath,
		"output", *outputPath,
		"report_type", *reportType,
		"verbose", *verbose)

	code := run(ctx, *testPath, *fromJSON, *reportType, *outputPath, *verbose)
	stop()
	if logFile != nil {
		_ = logFile.Close()
	}
	os.Exit(code)
}

func run(ctx context.Context, testPath, fromJSON, reportType, outputPath string, verbose bool) int {
	var (
		runs []model.TestRun
		err  error
	)
	source := testPath

	if fromJSON != "" {
		runs, source, err = report.LoadResultsFromJSON(fromJSON)
	} else {
		runs, err = engine.Execute(ctx, testPath, verbose)
	}
	if err != nil {
		logger.Logger.Error("Test execution failed", "error", err)
		return 1
	}

	color := os.Getenv("NO_COLOR") == ""
	if err := report.Generate(os.Stdout, runs, reportType, outputPath, source, color); err != nil {
		logger.Logger.Error("Failed to generate report", "error", err)
		return 1
	}

	if engine.HasFailures(runs) {
		return 1
	}
	return 0
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger.Logger.Info("Serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("Metrics server stopped", "error", err)
		}
	}()
}
