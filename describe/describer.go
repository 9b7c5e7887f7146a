// Package describe phrases a tool call as the natural-language request a user
// would make, using a text-generation model.
package describe

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/tmc/langchaingo/llms"
)

const (
	DefaultMaxTokens   = 100
	DefaultTemperature = 0.7
)

type Describer struct {
	llm         llms.Model
	maxTokens   int
	temperature float64
}

// New wraps llm; zero values in cfg fall back to the defaults.
func New(llm llms.Model, cfg model.DescriberConfig) *Describer {
	d := &Describer{
		llm:         llm,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
	}
	if cfg.MaxTokens > 0 {
		d.maxTokens = cfg.MaxTokens
	}
	if cfg.Temperature > 0 {
		d.temperature = cfg.Temperature
	}
	return d
}

// Prompt builds the generation prompt for a tool.
func Prompt(tool model.ToolDefinition) string {
	params, err := sonic.ConfigStd.MarshalIndent(tool.Properties(), "", "  ")
	if err != nil {
		params = []byte("{}")
	}
	return fmt.Sprintf("You are a user who wants to call the following tool. "+
		"Provide a single sentence describing the request in natural language.\n\n"+
		"Name: %s\nDescription: %s\nParameters: %s",
		tool.Name, tool.Description, params)
}

// Describe returns a one-sentence request for tool, or "" when generation fails.
// Failures are logged, never returned.
func (d *Describer) Describe(ctx context.Context, tool model.ToolDefinition) string {
	if d == nil || d.llm == nil {
		return ""
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, d.llm, Prompt(tool),
		llms.WithMaxTokens(d.maxTokens),
		llms.WithTemperature(d.temperature),
	)
	if err != nil {
		logger.Logger.Error("Failed to generate natural language query",
			"tool", tool.Name,
			"error", err)
		return ""
	}
	return strings.TrimSpace(text)
}
