package model

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// ============================================================================
// TOOL RESPONSE
// ============================================================================

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

func (s Status) Valid() bool {
	return s == StatusSuccess || s == StatusError
}

type ContentItem struct {
	Type string `json:"type" yaml:"type"`
	Text string `json:"text" yaml:"text"`
}

// Envelope is the tool-call result wrapper. The tool's actual JSON result is
// carried as text in Content[0].Text.
type Envelope struct {
	Content           []ContentItem `json:"content" yaml:"content"`
	StructuredContent any           `json:"structuredContent,omitempty" yaml:"structuredContent,omitempty"`
	IsError           bool          `json:"isError,omitempty" yaml:"isError,omitempty"`
}

type ToolError struct {
	Message string `json:"message" yaml:"message"`
	Code    int    `json:"code,omitempty" yaml:"code,omitempty"`
	Data    any    `json:"data,omitempty" yaml:"data,omitempty"`
}

type ToolResponse struct {
	Status Status     `json:"status" yaml:"status"`
	Data   *Envelope  `json:"data,omitempty" yaml:"data,omitempty"`
	Error  *ToolError `json:"error,omitempty" yaml:"error,omitempty"`
}

// SuccessResponse wraps a JSON document the way MCP servers return text results.
func SuccessResponse(jsonText string) ToolResponse {
	return ToolResponse{
		Status: StatusSuccess,
		Data: &Envelope{
			Content: []ContentItem{{Type: "text", Text: jsonText}},
		},
	}
}

func ErrorResponse(message string) ToolResponse {
	return ToolResponse{
		Status: StatusError,
		Error:  &ToolError{Message: message},
	}
}

// Value returns the whole response as a generic JSON-like value
// (map[string]interface{} keyed by the json field names).
func (r ToolResponse) Value() (any, error) {
	raw, err := sonic.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool response: %w", err)
	}

	var v any
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool response: %w", err)
	}
	return v, nil
}

// ============================================================================
// TEST CASE
// ============================================================================

type RuleKind string

const (
	RuleContains    RuleKind = "contains"
	RuleMatches     RuleKind = "matches"
	RuleHasProperty RuleKind = "hasProperty"
	RuleEquals      RuleKind = "equals"
	RuleArrayLength RuleKind = "arrayLength"
	RuleCustom      RuleKind = "custom"
)

// RuleKinds lists every rule type the validator understands.
var RuleKinds = []RuleKind{
	RuleContains,
	RuleMatches,
	RuleHasProperty,
	RuleEquals,
	RuleArrayLength,
	RuleCustom,
}

func (k RuleKind) Known() bool {
	for _, known := range RuleKinds {
		if k == known {
			return true
		}
	}
	return false
}

// RuleSpec is the plain-data form of a validation rule as written in test files.
// Custom rules reference a registered predicate by name instead of embedding code.
type RuleSpec struct {
	Type      RuleKind `json:"type" yaml:"type"`
	Target    string   `json:"target,omitempty" yaml:"target,omitempty"`
	Value     any      `json:"value,omitempty" yaml:"value,omitempty"`
	Message   string   `json:"message" yaml:"message"`
	Predicate string   `json:"predicate,omitempty" yaml:"predicate,omitempty"`
}

type ExpectedOutcome struct {
	Status          Status     `json:"status" yaml:"status"`
	ValidationRules []RuleSpec `json:"validationRules,omitempty" yaml:"validationRules,omitempty"`
}

type TestCase struct {
	Name            string          `json:"name" yaml:"name"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	Server          string          `json:"server,omitempty" yaml:"server,omitempty"`
	Tool            string          `json:"tool,omitempty" yaml:"tool,omitempty"`
	Arguments       map[string]any  `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	ExpectedOutcome ExpectedOutcome `json:"expectedOutcome" yaml:"expectedOutcome"`
}

// Clone returns a deep copy so templating never mutates the loaded configuration.
func (tc TestCase) Clone() TestCase {
	out := tc

	if tc.Arguments != nil {
		out.Arguments = make(map[string]any, len(tc.Arguments))
		for k, v := range tc.Arguments {
			out.Arguments[k] = CloneValue(v)
		}
	}

	if tc.ExpectedOutcome.ValidationRules != nil {
		rules := make([]RuleSpec, len(tc.ExpectedOutcome.ValidationRules))
		for i, r := range tc.ExpectedOutcome.ValidationRules {
			r.Value = CloneValue(r.Value)
			rules[i] = r
		}
		out.ExpectedOutcome.ValidationRules = rules
	}

	return out
}

// CloneValue deep-copies maps and slices of a decoded JSON/YAML value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, child := range t {
			m[k] = CloneValue(child)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, child := range t {
			s[i] = CloneValue(child)
		}
		return s
	default:
		return v
	}
}

// ============================================================================
// VALIDATION RESULT
// ============================================================================

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// NewValidationResult derives Valid from the error list.
func NewValidationResult(errs []string) ValidationResult {
	if errs == nil {
		errs = []string{}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ============================================================================
// TOOL DEFINITION
// ============================================================================

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Properties returns the "properties" object of the input schema, or an empty map.
func (d ToolDefinition) Properties() map[string]any {
	if props, ok := d.InputSchema["properties"].(map[string]any); ok {
		return props
	}
	return map[string]any{}
}

// ============================================================================
// TEST RUN
// ============================================================================

type TestRun struct {
	RunID       string           `json:"runId"`
	TestName    string           `json:"testName"`
	Server      string           `json:"server"`
	Tool        string           `json:"tool"`
	Arguments   map[string]any   `json:"arguments,omitempty"`
	Description string           `json:"description,omitempty"`
	Expected    Status           `json:"expected"`
	Response    ToolResponse     `json:"response"`
	Result      ValidationResult `json:"result"`
	StartTime   time.Time        `json:"startTime"`
	EndTime     time.Time        `json:"endTime"`
	DurationMs  int64            `json:"durationMs"`
}

func (r TestRun) Passed() bool {
	return r.Result.Valid
}
