// Package report renders test runs as console output, Markdown, JSON or HTML.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/mykhaliev/tool-bench/version"
)

//go:embed templates/report.html
var templateFS embed.FS

var Types = []string{"console", "md", "json", "html"}

func ValidateReportType(reportType string) error {
	for _, t := range Types {
		if t == reportType {
			return nil
		}
	}
	return fmt.Errorf("unknown type %s, supported types are: %s", reportType, strings.Join(Types, ", "))
}

// ValidateOutput checks the report type and that file reports have a path, so
// a bad invocation fails before any test runs.
func ValidateOutput(reportType, outputPath string) error {
	if err := ValidateReportType(reportType); err != nil {
		return err
	}
	if reportType != "console" && outputPath == "" {
		return fmt.Errorf("report type %s requires an output path (-o)", reportType)
	}
	return nil
}

type htmlData struct {
	Version     string
	GeneratedAt string
	TestFile    string
	Summary     Summary
	Runs        []model.TestRun
}

type Generator struct {
	tmpl *template.Template
}

func NewGenerator() (*Generator, error) {
	funcMap := template.FuncMap{
		"seconds": func(ms int64) string {
			return fmt.Sprintf("%.2f", float64(ms)/1000.0)
		},
		"rateClass": func(rate float64) string {
			switch {
			case rate >= 100:
				return "rate-high"
			case rate >= 50:
				return "rate-mid"
			default:
				return "rate-low"
			}
		},
		"prettyJSON": func(v any) string {
			out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Sprint(v)
			}
			return string(out)
		},
	}

	tmpl, err := template.New("report.html").Funcs(funcMap).ParseFS(templateFS, "templates/report.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &Generator{tmpl: tmpl}, nil
}

func (g *Generator) GenerateHTML(runs []model.TestRun, testFile string) (string, error) {
	data := htmlData{
		Version:     version.Version,
		GeneratedAt: time.Now().Format(time.RFC3339),
		TestFile:    testFile,
		Summary:     Summarize(runs),
		Runs:        runs,
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// Generate always prints the console report and summary to w. For the md,
// json and html types it also writes the report to outputPath.
func Generate(w io.Writer, runs []model.TestRun, reportType, outputPath, testFile string, color bool) error {
	if len(runs) == 0 {
		return fmt.Errorf("no test results to generate report")
	}
	if err := ValidateOutput(reportType, outputPath); err != nil {
		return err
	}

	WriteConsole(w, runs, color)
	PrintTestSummary(w, runs)

	var (
		content string
		err     error
	)
	switch reportType {
	case "console":
		return nil
	case "md":
		content = Markdown(runs, testFile)
	case "json":
		content, err = JSON(runs, testFile)
	case "html":
		var gen *Generator
		if gen, err = NewGenerator(); err == nil {
			content, err = gen.GenerateHTML(runs, testFile)
		}
	}
	if err != nil {
		return err
	}

	return writeFile(outputPath, content)
}

func writeFile(outputPath, content string) error {
	if outputPath == "" {
		return fmt.Errorf("output path is required for file reports")
	}

	if dir := filepath.Dir(outputPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, []byte(content), logger.FilePermission); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	logger.Logger.Info("Report generated successfully", "path", outputPath, "size", len(content))
	return nil
}
