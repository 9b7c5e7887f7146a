// Package validator decides whether a tool response satisfies the expected
// outcome of a test case and explains every violated rule.
package validator

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
)

const (
	msgUnknownError     = "Unknown error"
	msgNoData           = "No data in response"
	msgExpectedError    = "Expected tool to return an error"
	msgExecutionFailed  = "Tool execution failed: %s"
	msgMalformedPayload = "Malformed response payload: %s"
)

// Validator is safe for concurrent use; it holds no per-call state.
type Validator struct {
	registry *Registry
	log      *slog.Logger
	onRule   func(RuleOutcome)
}

type Option func(*Validator)

func WithRegistry(r *Registry) Option {
	return func(v *Validator) { v.registry = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.log = l }
}

// WithRuleHook observes each evaluated rule, e.g. for metrics.
func WithRuleHook(fn func(RuleOutcome)) Option {
	return func(v *Validator) { v.onRule = fn }
}

func New(opts ...Option) *Validator {
	v := &Validator{registry: DefaultRegistry}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var defaultValidator = New()

// ValidateResponse validates with DefaultRegistry.
func ValidateResponse(resp model.ToolResponse, tc model.TestCase) model.ValidationResult {
	return defaultValidator.ValidateResponse(resp, tc)
}

// ValidateResponse checks resp against the expected outcome of tc. It never
// panics on malformed input; every problem is reported in the result.
func (v *Validator) ValidateResponse(resp model.ToolResponse, tc model.TestCase) model.ValidationResult {
	var errs []string

	if tc.ExpectedOutcome.Status == model.StatusSuccess {
		errs = v.expectSuccess(resp, tc.ExpectedOutcome.ValidationRules)
	} else {
		errs = v.expectError(resp, tc.ExpectedOutcome.ValidationRules)
	}

	result := model.NewValidationResult(errs)
	v.logger().Debug("Response validated",
		"test", tc.Name,
		"expected", tc.ExpectedOutcome.Status,
		"actual", resp.Status,
		"valid", result.Valid,
		"errors", len(result.Errors))
	return result
}

func (v *Validator) expectSuccess(resp model.ToolResponse, specs []model.RuleSpec) []string {
	if resp.Status == model.StatusError {
		msg := msgUnknownError
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return []string{fmt.Sprintf(msgExecutionFailed, msg)}
	}

	if len(specs) == 0 {
		if resp.Data == nil {
			return []string{msgNoData}
		}
		return nil
	}

	payload, err := DecodePayload(resp.Data)
	if err != nil {
		v.logger().Warn("Failed to decode response payload", "error", err)
		var pe *PayloadError
		if errors.As(err, &pe) {
			return []string{fmt.Sprintf(msgMalformedPayload, pe.detail())}
		}
		return []string{fmt.Sprintf(msgMalformedPayload, err)}
	}

	return v.evaluate(payload, specs)
}

func (v *Validator) expectError(resp model.ToolResponse, specs []model.RuleSpec) []string {
	var errs []string
	if resp.Status != model.StatusError {
		errs = append(errs, msgExpectedError)
	}

	if len(specs) == 0 {
		return errs
	}

	// No success payload may exist, so rules see the whole response.
	root, err := resp.Value()
	if err != nil {
		v.logger().Warn("Failed to convert response for rule evaluation", "error", err)
		return append(errs, fmt.Sprintf(msgMalformedPayload, err))
	}

	return append(errs, v.evaluate(root, specs)...)
}

func (v *Validator) evaluate(root any, specs []model.RuleSpec) []string {
	var errs []string
	for _, outcome := range EvaluateRules(root, CompileAll(specs), v.registry) {
		if v.onRule != nil {
			v.onRule(outcome)
		}
		if outcome.Passed {
			continue
		}
		v.logger().Debug("Validation rule failed",
			"type", outcome.Kind,
			"target", outcome.Target,
			"message", outcome.Message)
		errs = append(errs, outcome.Message)
	}
	return errs
}

func (v *Validator) logger() *slog.Logger {
	if v.log != nil {
		return v.log
	}
	return logger.Logger
}
