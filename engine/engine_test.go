package engine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mykhaliev/tool-bench/describe"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/mykhaliev/tool-bench/validator"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeCaller struct {
	mu        sync.Mutex
	responses map[string]model.ToolResponse
	calls     []map[string]any
	delay     time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeCaller) CallTool(ctx context.Context, _, tool string, args map[string]any) model.ToolResponse {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.ErrorResponse(ctx.Err().Error())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	if resp, ok := f.responses[tool]; ok {
		return resp
	}
	return model.ErrorResponse("unknown tool: " + tool)
}

type fakeLookup struct {
	calls atomic.Int32
}

func (f *fakeLookup) Tool(_ context.Context, _, tool string) (model.ToolDefinition, error) {
	f.calls.Add(1)
	return model.ToolDefinition{Name: tool, Description: "does things"}, nil
}

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	args := m.Called(ctx, messages, options)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llms.ContentResponse), args.Error(1)
}

func (m *mockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	args := m.Called(ctx, prompt, options)
	return args.String(0), args.Error(1)
}

// slowLLM answers every prompt after delay and counts requests.
type slowLLM struct {
	delay time.Duration
	calls atomic.Int32
}

func (s *slowLLM) GenerateContent(ctx context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	s.calls.Add(1)
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "described"}}}, nil
}

func (s *slowLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

func weatherCase(name string, rules ...model.RuleSpec) model.TestCase {
	return model.TestCase{
		Name:      name,
		Server:    "weather",
		Tool:      "get_weather",
		Arguments: map[string]any{"city": "{{CITY}}", "days": 3},
		ExpectedOutcome: model.ExpectedOutcome{
			Status:          model.StatusSuccess,
			ValidationRules: rules,
		},
	}
}

func TestRunner_RunTest(t *testing.T) {
	caller := &fakeCaller{responses: map[string]model.ToolResponse{
		"get_weather": model.SuccessResponse(`{"city":"Paris","tags":["a","b"]}`),
	}}
	runner := NewRunner(caller, model.Settings{}, WithTemplateContext(map[string]string{"CITY": "Paris"}))

	tc := weatherCase("templated",
		model.RuleSpec{Type: model.RuleEquals, Target: "city", Value: "{{CITY}}", Message: "wrong city"},
		model.RuleSpec{Type: model.RuleContains, Target: "tags", Value: "b", Message: "missing b"},
	)

	run := runner.RunTest(context.Background(), tc)

	assert.True(t, run.Passed(), run.Result.Errors)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, "templated", run.TestName)
	assert.Equal(t, map[string]any{"city": "Paris", "days": 3}, run.Arguments)
	assert.Equal(t, model.StatusSuccess, run.Expected)
	assert.False(t, run.EndTime.Before(run.StartTime))

	require.Len(t, caller.calls, 1)
	assert.Equal(t, "Paris", caller.calls[0]["city"])
	assert.Equal(t, "{{CITY}}", tc.Arguments["city"], "source test case must not be mutated")
}

func TestRunner_Run_OrderAndParallelism(t *testing.T) {
	caller := &fakeCaller{
		delay: 20 * time.Millisecond,
		responses: map[string]model.ToolResponse{
			"get_weather": model.SuccessResponse(`{"ok":true}`),
		},
	}
	runner := NewRunner(caller, model.Settings{Parallel: 3})

	tests := make([]model.TestCase, 9)
	for i := range tests {
		tests[i] = weatherCase(string(rune('a' + i)))
	}

	runs := runner.Run(context.Background(), tests)

	require.Len(t, runs, 9)
	for i, run := range runs {
		assert.Equal(t, tests[i].Name, run.TestName)
		assert.True(t, run.Passed())
	}
	assert.LessOrEqual(t, caller.maxInFlight.Load(), int32(3))
	assert.GreaterOrEqual(t, caller.maxInFlight.Load(), int32(2))
}

func TestRunner_Run_Sequential(t *testing.T) {
	caller := &fakeCaller{responses: map[string]model.ToolResponse{
		"get_weather": model.SuccessResponse(`{}`),
	}}
	runner := NewRunner(caller, model.Settings{TestDelay: "1ms"})

	runs := runner.Run(context.Background(), []model.TestCase{weatherCase("one"), weatherCase("two")})

	require.Len(t, runs, 2)
	assert.Equal(t, int32(1), caller.maxInFlight.Load())
}

func TestRunner_ExpectedErrorAgainstTransportFailure(t *testing.T) {
	caller := &fakeCaller{}
	runner := NewRunner(caller, model.Settings{})

	tc := model.TestCase{
		Name:            "missing tool",
		Server:          "weather",
		Tool:            "nope",
		ExpectedOutcome: model.ExpectedOutcome{Status: model.StatusError},
	}

	run := runner.RunTest(context.Background(), tc)
	assert.True(t, run.Passed(), run.Result.Errors)
	assert.Equal(t, model.StatusError, run.Response.Status)
}

func TestRunner_ToolTimeout(t *testing.T) {
	caller := &fakeCaller{
		delay:     time.Second,
		responses: map[string]model.ToolResponse{"get_weather": model.SuccessResponse(`{}`)},
	}
	runner := NewRunner(caller, model.Settings{ToolTimeout: "10ms"})

	start := time.Now()
	run := runner.RunTest(context.Background(), weatherCase("slow"))

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, run.Passed())
	assert.Contains(t, run.Result.Errors[0], "Tool execution failed")
}

func TestRunner_Metrics(t *testing.T) {
	caller := &fakeCaller{responses: map[string]model.ToolResponse{
		"get_weather": model.SuccessResponse(`{"tags":[]}`),
	}}
	runner := NewRunner(caller, model.Settings{})

	passedBefore := testutil.ToFloat64(validationsTotal.WithLabelValues("passed"))
	failedBefore := testutil.ToFloat64(validationsTotal.WithLabelValues("failed"))
	lengthBefore := testutil.ToFloat64(ruleFailuresTotal.WithLabelValues(string(model.RuleArrayLength)))

	runner.Run(context.Background(), []model.TestCase{
		weatherCase("passes"),
		weatherCase("fails", model.RuleSpec{Type: model.RuleArrayLength, Target: "tags", Value: 2, Message: "want 2"}),
	})

	assert.Equal(t, passedBefore+1, testutil.ToFloat64(validationsTotal.WithLabelValues("passed")))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(validationsTotal.WithLabelValues("failed")))
	assert.Equal(t, lengthBefore+1, testutil.ToFloat64(ruleFailuresTotal.WithLabelValues(string(model.RuleArrayLength))))
}

func TestRunner_Describe(t *testing.T) {
	llm := &mockLLM{}
	llm.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(&llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "What's the weather in Paris?"}},
	}, nil).Once()

	lookup := &fakeLookup{}
	caller := &fakeCaller{responses: map[string]model.ToolResponse{"get_weather": model.SuccessResponse(`{}`)}}
	runner := NewRunner(caller, model.Settings{},
		WithDescriber(lookup, describe.New(llm, model.DescriberConfig{})))

	runs := runner.Run(context.Background(), []model.TestCase{weatherCase("one"), weatherCase("two")})

	for _, run := range runs {
		assert.Equal(t, "What's the weather in Paris?", run.Description)
	}
	assert.Equal(t, int32(1), lookup.calls.Load())
	llm.AssertExpectations(t)
}

func TestRunner_DescribeDoesNotSerializeTools(t *testing.T) {
	llm := &slowLLM{delay: 200 * time.Millisecond}
	caller := &fakeCaller{responses: map[string]model.ToolResponse{}}

	tests := make([]model.TestCase, 4)
	for i := range tests {
		tool := "tool_" + string(rune('a'+i))
		caller.responses[tool] = model.SuccessResponse(`{}`)
		tests[i] = model.TestCase{
			Name:            tool,
			Server:          "weather",
			Tool:            tool,
			ExpectedOutcome: model.ExpectedOutcome{Status: model.StatusSuccess},
		}
	}

	runner := NewRunner(caller, model.Settings{Parallel: 4},
		WithDescriber(&fakeLookup{}, describe.New(llm, model.DescriberConfig{})))

	start := time.Now()
	runs := runner.Run(context.Background(), tests)
	elapsed := time.Since(start)

	require.Len(t, runs, 4)
	for _, run := range runs {
		assert.Equal(t, "described", run.Description)
	}
	assert.Equal(t, int32(4), llm.calls.Load())
	assert.Less(t, elapsed, 600*time.Millisecond)
}

func TestRunner_DescribeSharesConcurrentRequests(t *testing.T) {
	llm := &slowLLM{delay: 100 * time.Millisecond}
	lookup := &fakeLookup{}
	caller := &fakeCaller{responses: map[string]model.ToolResponse{"get_weather": model.SuccessResponse(`{}`)}}

	runner := NewRunner(caller, model.Settings{Parallel: 4},
		WithDescriber(lookup, describe.New(llm, model.DescriberConfig{})))

	runs := runner.Run(context.Background(), []model.TestCase{
		weatherCase("a"), weatherCase("b"), weatherCase("c"), weatherCase("d"),
	})

	for _, run := range runs {
		assert.Equal(t, "described", run.Description)
	}
	assert.Equal(t, int32(1), llm.calls.Load())
	assert.Equal(t, int32(1), lookup.calls.Load())
}

func TestRecordRule_UnknownKindLabel(t *testing.T) {
	recordRule(validator.RuleOutcome{Kind: "startsWith"})
	series := testutil.CollectAndCount(ruleFailuresTotal)
	unknownBefore := testutil.ToFloat64(ruleFailuresTotal.WithLabelValues(unknownKind))

	recordRule(validator.RuleOutcome{Kind: "endsWith"})
	recordRule(validator.RuleOutcome{Kind: "fuzzy-match"})
	recordRule(validator.RuleOutcome{Kind: "madeUp", Passed: true})

	assert.Equal(t, unknownBefore+2, testutil.ToFloat64(ruleFailuresTotal.WithLabelValues(unknownKind)))
	assert.Equal(t, series, testutil.CollectAndCount(ruleFailuresTotal))
}

func TestRender(t *testing.T) {
	tc := weatherCase("r", model.RuleSpec{Type: model.RuleEquals, Target: "x", Value: map[string]any{"c": "{{CITY}}"}})

	out := Render(tc, map[string]string{"CITY": "Lyon"})

	assert.Equal(t, "Lyon", out.Arguments["city"])
	assert.Equal(t, 3, out.Arguments["days"])
	assert.Equal(t, map[string]any{"c": "Lyon"}, out.ExpectedOutcome.ValidationRules[0].Value)
	assert.Equal(t, map[string]any{"c": "{{CITY}}"}, tc.ExpectedOutcome.ValidationRules[0].Value)
}

func TestHasFailures(t *testing.T) {
	ok := model.TestRun{Result: model.NewValidationResult(nil)}
	bad := model.TestRun{Result: model.NewValidationResult([]string{"x"})}

	assert.False(t, HasFailures(nil))
	assert.False(t, HasFailures([]model.TestRun{ok}))
	assert.True(t, HasFailures([]model.TestRun{ok, bad}))
}

func TestExecute_InvalidInputs(t *testing.T) {
	ctx := context.Background()

	_, err := Execute(ctx, filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "tests.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tests: []\n"), 0644))
	_, err = Execute(ctx, path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no servers configured")
}

const unknownRuleTestFile = `servers:
  - name: shell
    type: cli
    command: echo
    shell: sh
    working_dir: "{{TEST_DIR}}"
tests:
  - name: before
    server: shell
    tool: hello
    expectedOutcome:
      status: success
      validationRules:
        - {type: equals, target: exit_code, value: 0, message: "non-zero exit"}
        - {type: contains, target: stdout, value: hello, message: "no greeting"}
  - name: unknown rule
    server: shell
    tool: hello
    expectedOutcome:
      status: success
      validationRules:
        - {type: startsWith, target: stdout, value: hel, message: "never used"}
  - name: after
    server: shell
    tool: hello
    expectedOutcome:
      status: success
      validationRules:
        - {type: contains, target: stdout, value: hello, message: "no greeting"}
`

func TestExecute_UnknownRuleTypeFailsOnlyItsTest(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("cli server test uses a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "tests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(unknownRuleTestFile), 0644))

	runs, err := Execute(context.Background(), path, false)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.True(t, runs[0].Passed(), runs[0].Result.Errors)
	assert.False(t, runs[1].Passed())
	assert.Equal(t, []string{"Unknown rule type: startsWith"}, runs[1].Result.Errors)
	assert.True(t, runs[2].Passed(), runs[2].Result.Errors)
}
