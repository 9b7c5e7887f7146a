package report

import (
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/mykhaliev/tool-bench/version"
)

type JSONReport struct {
	Version     string          `json:"tool_bench_version"`
	GeneratedAt string          `json:"generated_at"`
	TestFile    string          `json:"test_file,omitempty"`
	Summary     Summary         `json:"summary"`
	Results     []model.TestRun `json:"detailed_results"`
}

func JSON(runs []model.TestRun, testFile string) (string, error) {
	data := JSONReport{
		Version:     version.Version,
		GeneratedAt: time.Now().Format(time.RFC3339),
		TestFile:    testFile,
		Summary:     Summarize(runs),
		Results:     runs,
	}

	out, err := sonic.ConfigStd.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON report: %w", err)
	}
	return string(out), nil
}

// LoadResultsFromJSON reads the runs back from a JSON report so other report
// types can be produced without rerunning the tests.
func LoadResultsFromJSON(path string) ([]model.TestRun, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read JSON report: %w", err)
	}

	var data JSONReport
	if err := sonic.Unmarshal(raw, &data); err != nil {
		return nil, "", fmt.Errorf("failed to parse JSON report: %w", err)
	}
	return data.Results, data.TestFile, nil
}
