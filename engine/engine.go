package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mykhaliev/tool-bench/describe"
	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/mykhaliev/tool-bench/server"
	"github.com/mykhaliev/tool-bench/templates"
	"github.com/mykhaliev/tool-bench/validator"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ToolCaller invokes a tool on a named server. Implementations report
// transport failures as error responses rather than Go errors.
type ToolCaller interface {
	CallTool(ctx context.Context, serverName, tool string, args map[string]any) model.ToolResponse
}

// ToolLookup resolves the definition of a tool, used to describe test runs.
type ToolLookup interface {
	Tool(ctx context.Context, serverName, tool string) (model.ToolDefinition, error)
}

type Runner struct {
	caller      ToolCaller
	validator   *validator.Validator
	tools       ToolLookup
	describer   *describe.Describer
	templateCtx map[string]string

	toolTimeout time.Duration
	testDelay   time.Duration
	parallel    int
	verbose     bool

	descMu       sync.Mutex
	descriptions map[string]string
	descGroup    singleflight.Group
}

type Option func(*Runner)

func WithValidator(v *validator.Validator) Option {
	return func(r *Runner) { r.validator = v }
}

// WithDescriber fills TestRun.Description using tool definitions from tools.
func WithDescriber(tools ToolLookup, d *describe.Describer) Option {
	return func(r *Runner) {
		r.tools = tools
		r.describer = d
	}
}

func WithTemplateContext(ctx map[string]string) Option {
	return func(r *Runner) { r.templateCtx = ctx }
}

func NewRunner(caller ToolCaller, settings model.Settings, opts ...Option) *Runner {
	r := &Runner{
		caller:       caller,
		toolTimeout:  ParseTimeout(settings.ToolTimeout),
		testDelay:    ParseDelay(settings.TestDelay),
		parallel:     ParseParallel(settings.Parallel),
		verbose:      settings.Verbose,
		descriptions: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.validator == nil {
		r.validator = validator.New(validator.WithRuleHook(recordRule))
	}
	if r.templateCtx == nil {
		r.templateCtx = map[string]string{}
	}
	return r
}

// Run executes the tests with at most `parallel` in flight and returns the
// runs in test order.
func (r *Runner) Run(ctx context.Context, tests []model.TestCase) []model.TestRun {
	runs := make([]model.TestRun, len(tests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for i, tc := range tests {
		if i > 0 && r.testDelay > 0 {
			select {
			case <-time.After(r.testDelay):
			case <-ctx.Done():
			}
		}

		g.Go(func() error {
			runs[i] = r.RunTest(gctx, tc)
			return nil
		})
	}
	_ = g.Wait()

	return runs
}

// RunTest renders, executes and validates a single test case.
func (r *Runner) RunTest(ctx context.Context, tc model.TestCase) model.TestRun {
	tc = Render(tc, r.templateCtx)

	run := model.TestRun{
		RunID:     uuid.New().String(),
		TestName:  tc.Name,
		Server:    tc.Server,
		Tool:      tc.Tool,
		Arguments: tc.Arguments,
		Expected:  tc.ExpectedOutcome.Status,
		StartTime: time.Now(),
	}

	logger.Logger.Info("Running test",
		"test", tc.Name,
		"server", tc.Server,
		"tool", tc.Tool,
		"run_id", run.RunID)

	run.Description = r.describe(ctx, tc)

	callCtx := ctx
	if r.toolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.toolTimeout)
		defer cancel()
	}

	callStart := time.Now()
	run.Response = r.caller.CallTool(callCtx, tc.Server, tc.Tool, tc.Arguments)
	toolCallDuration.WithLabelValues(tc.Server, tc.Tool).Observe(time.Since(callStart).Seconds())

	if r.verbose {
		logger.Logger.Info("Tool call completed",
			"test", tc.Name,
			"arguments", tc.Arguments,
			"status", run.Response.Status)
	}

	run.Result = r.validator.ValidateResponse(run.Response, tc)
	recordValidation(run.Result.Valid)

	run.EndTime = time.Now()
	run.DurationMs = run.EndTime.Sub(run.StartTime).Milliseconds()

	if run.Passed() {
		logger.Logger.Info("Test passed", "test", tc.Name, "duration_ms", run.DurationMs)
	} else {
		logger.Logger.Warn("Test failed",
			"test", tc.Name,
			"duration_ms", run.DurationMs,
			"errors", run.Result.Errors)
	}
	return run
}

// describe caches one description per server/tool pair. Concurrent tests of
// the same tool share a single request; different tools do not wait on each
// other.
func (r *Runner) describe(ctx context.Context, tc model.TestCase) string {
	if r.describer == nil || r.tools == nil {
		return ""
	}

	key := tc.Server + "/" + tc.Tool
	if d, ok := r.cachedDescription(key); ok {
		return d
	}

	v, _, _ := r.descGroup.Do(key, func() (any, error) {
		if d, ok := r.cachedDescription(key); ok {
			return d, nil
		}

		def, err := r.tools.Tool(ctx, tc.Server, tc.Tool)
		if err != nil {
			logger.Logger.Warn("Cannot describe tool", "server", tc.Server, "tool", tc.Tool, "error", err)
			def = model.ToolDefinition{Name: tc.Tool}
		}

		d := r.describer.Describe(ctx, def)
		r.descMu.Lock()
		r.descriptions[key] = d
		r.descMu.Unlock()
		return d, nil
	})
	return v.(string)
}

func (r *Runner) cachedDescription(key string) (string, bool) {
	r.descMu.Lock()
	defer r.descMu.Unlock()
	d, ok := r.descriptions[key]
	return d, ok
}

// Render returns a copy of tc with string arguments and string rule values
// rendered against templateCtx.
func Render(tc model.TestCase, templateCtx map[string]string) model.TestCase {
	out := tc.Clone()
	if out.Arguments != nil {
		out.Arguments = templates.RenderValue(out.Arguments, templateCtx).(map[string]any)
	}
	for i := range out.ExpectedOutcome.ValidationRules {
		rule := &out.ExpectedOutcome.ValidationRules[i]
		rule.Value = templates.RenderValue(rule.Value, templateCtx)
	}
	return out
}

// Execute runs a whole test file: it loads and checks the configuration,
// connects the servers, runs every test and closes the connections.
func Execute(ctx context.Context, testPath string, verbose bool) ([]model.TestRun, error) {
	if err := ValidateTestInputFile(testPath); err != nil {
		return nil, fmt.Errorf("invalid input file: %w", err)
	}

	cfg, err := model.ParseTestConfig(testPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Settings.Verbose = true
	}
	if err := ValidateTestConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Logger.Info("Configuration loaded",
		"servers", len(cfg.Servers),
		"tests", len(cfg.Tests),
		"parallel", ParseParallel(cfg.Settings.Parallel))

	staticCtx := templates.StaticContext(testPath, cfg.Variables)

	pool, err := server.Connect(ctx, RenderServers(cfg.Servers, staticCtx), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize servers: %w", err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Logger.Warn("Error closing servers", "error", err)
		}
	}()

	opts := []Option{WithTemplateContext(staticCtx)}
	if cfg.Describer.Provider != "" {
		if d, err := newDescriber(ctx, cfg, staticCtx); err != nil {
			logger.Logger.Warn("Describer disabled", "error", err)
		} else {
			opts = append(opts, WithDescriber(pool, d))
		}
	}

	runner := NewRunner(pool, cfg.Settings, opts...)
	return runner.Run(ctx, cfg.Tests), nil
}

func newDescriber(ctx context.Context, cfg *model.TestConfiguration, templateCtx map[string]string) (*describe.Describer, error) {
	p, err := describe.ResolveProvider(cfg.Describer, cfg.Providers, templateCtx)
	if err != nil {
		return nil, err
	}
	llm, err := describe.CreateProvider(ctx, p)
	if err != nil {
		return nil, err
	}
	return describe.New(llm, cfg.Describer), nil
}

func HasFailures(runs []model.TestRun) bool {
	for _, run := range runs {
		if !run.Passed() {
			return true
		}
	}
	return false
}
