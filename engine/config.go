package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/mykhaliev/tool-bench/templates"
)

const (
	DefaultTimeout   = 0 * time.Second
	DefaultTestDelay = 0 * time.Second
	DefaultParallel  = 1
)

func ValidateTestInputFile(path string) error {
	if path == "" {
		return fmt.Errorf("input file path is empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("cannot access file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}

	if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unexpected file extension: %s", ext)
	}
	return nil
}

// ValidateTestConfig reports every structural problem of a test file at once.
// Unknown rule types are only logged; they fail their own test at run time.
func ValidateTestConfig(config *model.TestConfiguration) error {
	if config == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []error
	if len(config.Servers) == 0 {
		errs = append(errs, fmt.Errorf("no servers configured"))
	}
	if len(config.Tests) == 0 {
		errs = append(errs, fmt.Errorf("no tests configured"))
	}

	servers := make(map[string]bool, len(config.Servers))
	for i, s := range config.Servers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("server at index %d has empty name", i))
		}
		servers[s.Name] = true
	}

	for i, tc := range config.Tests {
		label := tc.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			errs = append(errs, fmt.Errorf("test at index %d has empty name", i))
		}
		if tc.Tool == "" {
			errs = append(errs, fmt.Errorf("test %s: tool is required", label))
		}
		if !servers[tc.Server] {
			errs = append(errs, fmt.Errorf("test %s: unknown server %q", label, tc.Server))
		}
		if !tc.ExpectedOutcome.Status.Valid() {
			errs = append(errs, fmt.Errorf("test %s: unknown expected status %q", label, tc.ExpectedOutcome.Status))
		}
		// the validator reports these per test, so the other tests still run
		for j, rule := range tc.ExpectedOutcome.ValidationRules {
			if !rule.Type.Known() {
				logger.Logger.Warn("Unknown rule type",
					"test", label,
					"rule", j,
					"type", rule.Type)
			}
		}
	}

	if config.Describer.Provider != "" && config.Describer.Provider != "default" {
		found := false
		for _, p := range config.Providers {
			found = found || p.Name == config.Describer.Provider
		}
		if !found {
			errs = append(errs, fmt.Errorf("describer provider %q is not configured", config.Describer.Provider))
		}
	}

	return errors.Join(errs...)
}

// RenderServers applies the static template context to server fields, so
// commands like {{TEST_DIR}}/server work.
func RenderServers(configs []model.Server, templateCtx map[string]string) []model.Server {
	out := make([]model.Server, len(configs))
	for i, s := range configs {
		s.Command = templates.Render(s.Command, templateCtx)
		s.URL = templates.Render(s.URL, templateCtx)
		s.WorkingDir = templates.Render(s.WorkingDir, templateCtx)
		s.ServerDelay = templates.Render(s.ServerDelay, templateCtx)
		s.ProcessDelay = templates.Render(s.ProcessDelay, templateCtx)
		s.Headers = renderAll(s.Headers, templateCtx)
		s.Env = renderAll(s.Env, templateCtx)
		out[i] = s
	}
	return out
}

func renderAll(values []string, templateCtx map[string]string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = templates.Render(v, templateCtx)
	}
	return out
}

func ParseTimeout(timeoutStr string) time.Duration {
	return parseDuration("timeout", timeoutStr, DefaultTimeout)
}

func ParseDelay(delayStr string) time.Duration {
	return parseDuration("delay", delayStr, DefaultTestDelay)
}

func parseDuration(name, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}

	dur, err := time.ParseDuration(value)
	if err != nil {
		logger.Logger.Warn("Invalid "+name+", using default",
			name, value,
			"default", def,
			"error", err)
		return def
	}
	if dur < 0 {
		logger.Logger.Warn("Negative "+name+", using 0", name, dur)
		return 0
	}
	return dur
}

func ParseParallel(n int) int {
	if n < 1 {
		return DefaultParallel
	}
	return n
}
