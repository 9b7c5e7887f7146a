package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
)

// Rule is a single typed assertion about the response payload. The set of
// implementations is closed: Contains, Matches, HasProperty, Equals,
// ArrayLength and Custom.
type Rule interface {
	Kind() model.RuleKind
	Path() string
	// apply returns true when the rule holds, otherwise the failure text.
	apply(root any, reg *Registry) (bool, string)
}

// Contains passes when the target is a string containing Value as a substring,
// or an array holding an element equal to Value.
type Contains struct {
	Target  string
	Value   any
	Message string
}

func (r Contains) Kind() model.RuleKind { return model.RuleContains }
func (r Contains) Path() string         { return r.Target }

func (r Contains) apply(root any, _ *Registry) (bool, string) {
	target, _ := Resolve(root, r.Target)

	switch t := canonical(target).(type) {
	case string:
		needle, ok := r.Value.(string)
		return ok && strings.Contains(t, needle), r.Message
	case []any:
		for _, el := range t {
			if strictEqual(el, r.Value) {
				return true, r.Message
			}
		}
		return false, r.Message
	default:
		return false, r.Message
	}
}

// Matches compares strings exactly, or against a regular expression when Value
// is written as /pattern/. Non-string operands fall back to DeepEqual. A target
// that does not resolve never matches, not even a null Value.
type Matches struct {
	Target  string
	Value   any
	Message string
}

func (r Matches) Kind() model.RuleKind { return model.RuleMatches }
func (r Matches) Path() string         { return r.Target }

func (r Matches) apply(root any, _ *Registry) (bool, string) {
	target, found := Resolve(root, r.Target)
	if !found {
		return false, r.Message
	}

	s, targetIsString := target.(string)
	expected, valueIsString := r.Value.(string)
	if !targetIsString || !valueIsString {
		return DeepEqual(target, r.Value), r.Message
	}

	pattern, isRegex := regexLiteral(expected)
	if !isRegex {
		return s == expected, r.Message
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		logger.Logger.Warn("Invalid regex in matches rule",
			"target", r.Target,
			"pattern", pattern,
			"error", err)
		return false, r.Message
	}
	return re.MatchString(s), r.Message
}

// regexLiteral unwraps "/pattern/". A lone "/" is the empty pattern.
func regexLiteral(v string) (string, bool) {
	if !strings.HasPrefix(v, "/") || !strings.HasSuffix(v, "/") {
		return "", false
	}
	if len(v) < 2 {
		return "", true
	}
	return v[1 : len(v)-1], true
}

// HasProperty passes when every segment of Target exists, even if the final
// value is null.
type HasProperty struct {
	Target  string
	Message string
}

func (r HasProperty) Kind() model.RuleKind { return model.RuleHasProperty }
func (r HasProperty) Path() string         { return r.Target }

func (r HasProperty) apply(root any, _ *Registry) (bool, string) {
	return HasPath(root, r.Target), r.Message
}

// Equals passes when Target resolves to a value structurally equal to Value.
// A missing target fails even when Value is null.
type Equals struct {
	Target  string
	Value   any
	Message string
}

func (r Equals) Kind() model.RuleKind { return model.RuleEquals }
func (r Equals) Path() string         { return r.Target }

func (r Equals) apply(root any, _ *Registry) (bool, string) {
	target, found := Resolve(root, r.Target)
	if !found {
		return false, r.Message
	}
	return DeepEqual(target, r.Value), r.Message
}

// ArrayLength passes when Target resolves to an array of exactly Value elements.
type ArrayLength struct {
	Target  string
	Value   any
	Message string
}

func (r ArrayLength) Kind() model.RuleKind { return model.RuleArrayLength }
func (r ArrayLength) Path() string         { return r.Target }

func (r ArrayLength) apply(root any, _ *Registry) (bool, string) {
	target, _ := Resolve(root, r.Target)

	arr, ok := canonical(target).([]any)
	if !ok {
		return false, r.Message
	}
	want, ok := toNumber(r.Value)
	if !ok {
		return false, r.Message
	}
	return float64(len(arr)) == want, r.Message
}

// Custom runs a registered predicate over the whole payload. A rule without a
// predicate name is a no-op.
type Custom struct {
	Predicate string
	Message   string
}

func (r Custom) Kind() model.RuleKind { return model.RuleCustom }
func (r Custom) Path() string         { return "" }

func (r Custom) apply(root any, reg *Registry) (passed bool, failure string) {
	if r.Predicate == "" {
		return true, ""
	}

	fn, ok := reg.Lookup(r.Predicate)
	if !ok {
		return false, fmt.Sprintf("Unknown custom predicate: %s", r.Predicate)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Logger.Warn("Custom predicate panicked",
				"predicate", r.Predicate,
				"panic", fmt.Sprint(rec))
			passed, failure = false, r.Message
		}
	}()

	return fn(root), r.Message
}

// unknownRule stands in for a rule type that could not be compiled, so that
// one bad rule is reported without stopping the others.
type unknownRule struct {
	typ model.RuleKind
}

func (r unknownRule) Kind() model.RuleKind { return r.typ }
func (r unknownRule) Path() string         { return "" }

func (r unknownRule) apply(any, *Registry) (bool, string) {
	return false, fmt.Sprintf("Unknown rule type: %s", r.typ)
}

// Compile turns a plain-data rule into its typed form. Unrecognized types
// compile to a rule that always fails with "Unknown rule type: <type>".
func Compile(spec model.RuleSpec) Rule {
	switch spec.Type {
	case model.RuleContains:
		return Contains{Target: spec.Target, Value: spec.Value, Message: spec.Message}
	case model.RuleMatches:
		return Matches{Target: spec.Target, Value: spec.Value, Message: spec.Message}
	case model.RuleHasProperty:
		return HasProperty{Target: spec.Target, Message: spec.Message}
	case model.RuleEquals:
		return Equals{Target: spec.Target, Value: spec.Value, Message: spec.Message}
	case model.RuleArrayLength:
		return ArrayLength{Target: spec.Target, Value: spec.Value, Message: spec.Message}
	case model.RuleCustom:
		return Custom{Predicate: spec.Predicate, Message: spec.Message}
	default:
		return unknownRule{typ: spec.Type}
	}
}

func CompileAll(specs []model.RuleSpec) []Rule {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rules = append(rules, Compile(spec))
	}
	return rules
}

// RuleOutcome is the result of evaluating one rule.
type RuleOutcome struct {
	Kind    model.RuleKind
	Target  string
	Passed  bool
	Message string
}

// EvaluateRules applies every rule in order; a failing rule never stops the
// ones after it.
func EvaluateRules(root any, rules []Rule, reg *Registry) []RuleOutcome {
	if reg == nil {
		reg = DefaultRegistry
	}

	outcomes := make([]RuleOutcome, 0, len(rules))
	for _, rule := range rules {
		passed, failure := rule.apply(root, reg)
		outcome := RuleOutcome{Kind: rule.Kind(), Target: rule.Path(), Passed: passed}
		if !passed {
			outcome.Message = failure
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// Evaluate returns one error string per failed rule, in rule order.
func Evaluate(root any, rules []Rule, reg *Registry) []string {
	var errs []string
	for _, o := range EvaluateRules(root, rules, reg) {
		if !o.Passed {
			errs = append(errs, o.Message)
		}
	}
	return errs
}
