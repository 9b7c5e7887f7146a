package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// TEST FILE CONFIGURATION
// ============================================================================

type TestConfiguration struct {
	Providers []Provider        `yaml:"providers,omitempty"`
	Servers   []Server          `yaml:"servers"`
	Settings  Settings          `yaml:"settings"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Describer DescriberConfig   `yaml:"describer,omitempty"`
	Tests     []TestCase        `yaml:"tests"`
}

type Settings struct {
	Verbose     bool   `yaml:"verbose"`
	ToolTimeout string `yaml:"tool_timeout"`
	TestDelay   string `yaml:"test_delay"`
	Parallel    int    `yaml:"parallel"`
}

// DescriberConfig selects the provider used to phrase tool calls in natural language.
// An empty Provider disables descriptions.
type DescriberConfig struct {
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// ============================================================================
// PROVIDER CONFIGURATION
// ============================================================================

type ProviderType string

const (
	ProviderAnthropic       ProviderType = "ANTHROPIC"
	ProviderAmazonAnthropic ProviderType = "AMAZON-ANTHROPIC"
	ProviderOpenAI          ProviderType = "OPENAI"
	ProviderAzure           ProviderType = "AZURE"
	ProviderGoogle          ProviderType = "GOOGLE"
	ProviderGroq            ProviderType = "GROQ"
	ProviderVertex          ProviderType = "VERTEX"
)

// RateLimitConfig throttles describer requests before they are sent.
type RateLimitConfig struct {
	TPM int `yaml:"tpm"`
	RPM int `yaml:"rpm"`
}

// RetryConfig controls retries of describer requests rejected with 429.
// MaxRetries defaults to 3 when RetryOn429 is set.
type RetryConfig struct {
	RetryOn429 bool `yaml:"retry_on_429"`
	MaxRetries int  `yaml:"max_retries"`
}

type Provider struct {
	Name     string       `yaml:"name"`
	Type     ProviderType `yaml:"type"`
	Token    string       `yaml:"token"`
	Secret   string       `yaml:"secret"`
	Model    string       `yaml:"model"`
	BaseURL  string       `yaml:"baseUrl"`
	Version  string       `yaml:"version"`  // Azure API version, e.g. 2025-01-01-preview
	Location string       `yaml:"location"` // AWS region for AMAZON-ANTHROPIC
	AuthType string       `yaml:"auth_type"`

	ProjectID       string `yaml:"project_id"` // VERTEX only
	CredentialsPath string `yaml:"credentials_path"`

	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Retry      RetryConfig     `yaml:"retry"`
}

// ============================================================================
// SERVER CONFIGURATION
// ============================================================================

type ServerType string

const (
	Stdio ServerType = "stdio"
	SSE   ServerType = "sse"
	Http  ServerType = "http"
	CLI   ServerType = "cli"
)

type Server struct {
	Name         string     `yaml:"name"`
	Type         ServerType `yaml:"type"`
	Command      string     `yaml:"command,omitempty"`
	Env          []string   `yaml:"env,omitempty"`
	URL          string     `yaml:"url,omitempty"`
	Headers      []string   `yaml:"headers,omitempty"`
	ServerDelay  string     `yaml:"server_delay,omitempty"`
	ProcessDelay string     `yaml:"process_delay,omitempty"`

	// cli servers run Command through Shell in WorkingDir
	Shell      string `yaml:"shell,omitempty"`
	WorkingDir string `yaml:"working_dir,omitempty"`
}

// ============================================================================
// YAML PARSER
// ============================================================================

func ParseTestConfig(filename string) (*TestConfiguration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseTestConfigFromString(string(data))
}

func ParseTestConfigFromString(definition string) (*TestConfiguration, error) {
	var config TestConfiguration
	if err := yaml.Unmarshal([]byte(definition), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return &config, nil
}

// ParseTestCase decodes a single test case document, as used when test cases are
// stored one per file.
func ParseTestCase(definition string) (*TestCase, error) {
	var tc TestCase
	if err := yaml.Unmarshal([]byte(definition), &tc); err != nil {
		return nil, fmt.Errorf("failed to parse test case: %w", err)
	}

	return &tc, nil
}

// ParseToolResponse decodes a recorded tool response (YAML or JSON, since JSON is valid YAML).
func ParseToolResponse(definition string) (*ToolResponse, error) {
	var resp ToolResponse
	if err := yaml.Unmarshal([]byte(definition), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse tool response: %w", err)
	}

	return &resp, nil
}
