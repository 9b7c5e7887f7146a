package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
)

// CLIExecuteTool is the tool name that runs Command with only the raw "args"
// argument, without a subcommand.
const CLIExecuteTool = "execute"

// CLIServer exposes a command-line program as a tool server. Calling tool T
// with arguments {k: v} runs `<command> T --k=v` and reports the exit code,
// stdout and stderr as the tool result.
type CLIServer struct {
	Name       string
	Command    string
	Shell      string
	WorkingDir string
	Env        []string
}

// CLIResult is the JSON payload of a CLI tool call. Output holds stdout
// decoded as JSON when it parses.
type CLIResult struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Output     any    `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

var validShells = map[string]bool{
	"powershell": true,
	"pwsh":       true,
	"cmd":        true,
	"bash":       true,
	"sh":         true,
	"zsh":        true,
}

func NewCLIServer(cfg model.Server) (*CLIServer, error) {
	s := &CLIServer{
		Name:       cfg.Name,
		Command:    cfg.Command,
		Shell:      strings.ToLower(cfg.Shell),
		WorkingDir: cfg.WorkingDir,
		Env:        cfg.Env,
	}

	if s.Shell == "" {
		s.Shell = "sh"
		if runtime.GOOS == "windows" {
			s.Shell = "powershell"
		}
	}
	if s.WorkingDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		s.WorkingDir = cwd
	}

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid CLI server configuration for %s: %w", cfg.Name, err)
	}

	logger.Logger.Info("CLI server ready",
		"server_name", s.Name,
		"shell", s.Shell,
		"working_dir", s.WorkingDir)
	return s, nil
}

func (s *CLIServer) validate() error {
	if s.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("command is required for cli server type")
	}
	if !validShells[s.Shell] {
		return fmt.Errorf("unsupported shell: %s (supported: powershell, pwsh, cmd, bash, sh, zsh)", s.Shell)
	}
	if info, err := os.Stat(s.WorkingDir); err != nil || !info.IsDir() {
		return fmt.Errorf("working directory does not exist: %s", s.WorkingDir)
	}
	return nil
}

// CommandLine builds the full command for a tool call. The "args" argument is
// appended verbatim; every other argument becomes a quoted --key=value flag in
// key order, true booleans become bare --key flags and false ones are dropped.
func (s *CLIServer) CommandLine(tool string, args map[string]any) string {
	parts := []string{s.Command}
	if tool != "" && tool != CLIExecuteTool {
		parts = append(parts, tool)
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		if k != "args" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := args[k].(type) {
		case bool:
			if v {
				parts = append(parts, "--"+k)
			}
		case nil:
			parts = append(parts, "--"+k)
		case string:
			parts = append(parts, "--"+k+"="+s.quote(v))
		default:
			raw, err := sonic.MarshalString(v)
			if err != nil {
				raw = fmt.Sprint(v)
			}
			parts = append(parts, "--"+k+"="+s.quote(raw))
		}
	}

	if raw, ok := args["args"]; ok && raw != nil {
		parts = append(parts, fmt.Sprint(raw))
	}
	return strings.Join(parts, " ")
}

func (s *CLIServer) quote(v string) string {
	switch s.Shell {
	case "cmd":
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	case "powershell", "pwsh":
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
	}
}

func (s *CLIServer) command(ctx context.Context, line string) *exec.Cmd {
	var cmd *exec.Cmd
	switch s.Shell {
	case "powershell", "pwsh":
		cmd = exec.CommandContext(ctx, s.Shell, "-NoProfile", "-NonInteractive", "-Command", line)
	case "cmd":
		cmd = exec.CommandContext(ctx, "cmd", "/C", line)
	default:
		cmd = exec.CommandContext(ctx, s.Shell, "-c", line)
	}
	cmd.Dir = s.WorkingDir
	cmd.Env = append(os.Environ(), s.Env...)
	return cmd
}

// Execute runs one command line. Only failures to start the process are
// returned as errors; a non-zero exit is part of the result.
func (s *CLIServer) Execute(ctx context.Context, line string) (CLIResult, error) {
	start := time.Now()

	cmd := s.command(ctx, line)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Logger.Debug("Executing CLI command",
		"server_name", s.Name,
		"command", line)

	err := cmd.Run()
	result := CLIResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("failed to run command: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	var decoded any
	if trimmed := strings.TrimSpace(result.Stdout); trimmed != "" {
		if err := sonic.UnmarshalString(trimmed, &decoded); err == nil {
			result.Output = decoded
		}
	}

	logger.Logger.Debug("CLI command completed",
		"server_name", s.Name,
		"exit_code", result.ExitCode,
		"duration_ms", result.DurationMs)
	return result, nil
}

func (s *CLIServer) CallTool(ctx context.Context, tool string, args map[string]any) model.ToolResponse {
	result, err := s.Execute(ctx, s.CommandLine(tool, args))
	if err != nil {
		return model.ErrorResponse(fmt.Sprintf("failed to call tool '%s' on server '%s': %v", tool, s.Name, err))
	}

	if result.ExitCode != 0 {
		msg := strings.TrimSpace(result.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("command exited with code %d", result.ExitCode)
		}
		return model.ToolResponse{
			Status: model.StatusError,
			Error:  &model.ToolError{Message: msg, Code: result.ExitCode, Data: result},
		}
	}

	payload, err := sonic.MarshalString(result)
	if err != nil {
		return model.ErrorResponse(fmt.Sprintf("failed to encode CLI result: %v", err))
	}
	return model.SuccessResponse(payload)
}

func (s *CLIServer) ListTools(context.Context) ([]model.ToolDefinition, error) {
	return []model.ToolDefinition{{
		Name:        CLIExecuteTool,
		Description: fmt.Sprintf("Execute %s with command-line arguments", s.Command),
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"args": map[string]any{
					"type":        "string",
					"description": "Command-line arguments to pass to the CLI",
				},
			},
		},
	}}, nil
}

func (s *CLIServer) Close() error {
	return nil
}
