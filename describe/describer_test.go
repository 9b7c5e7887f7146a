package describe

import (
	"context"
	"errors"
	"testing"

	"github.com/mykhaliev/tool-bench/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type MockLLMModel struct {
	mock.Mock
}

func (m *MockLLMModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	args := m.Called(ctx, messages, options)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llms.ContentResponse), args.Error(1)
}

func (m *MockLLMModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	args := m.Called(ctx, prompt, options)
	return args.String(0), args.Error(1)
}

var weatherTool = model.ToolDefinition{
	Name:        "get_weather",
	Description: "Current weather for a city",
	InputSchema: map[string]any{
		"type":       "object",
		"properties": map[string]any{"city": map[string]any{"type": "string"}},
	},
}

func TestPrompt(t *testing.T) {
	p := Prompt(weatherTool)

	assert.Contains(t, p, "Provide a single sentence describing the request in natural language.")
	assert.Contains(t, p, "Name: get_weather")
	assert.Contains(t, p, "Description: Current weather for a city")
	assert.Contains(t, p, `"city"`)

	assert.Contains(t, Prompt(model.ToolDefinition{Name: "bare"}), "Parameters: {}")
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()

	t.Run("returns trimmed text", func(t *testing.T) {
		llm := &MockLLMModel{}
		llm.On("GenerateContent", ctx, mock.MatchedBy(func(msgs []llms.MessageContent) bool {
			return len(msgs) == 1
		}), mock.MatchedBy(func(opts []llms.CallOption) bool {
			var o llms.CallOptions
			for _, opt := range opts {
				opt(&o)
			}
			return o.MaxTokens == DefaultMaxTokens && o.Temperature == DefaultTemperature
		})).Return(&llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: "  What's the weather in Paris?\n"}},
		}, nil)

		d := New(llm, model.DescriberConfig{})
		assert.Equal(t, "What's the weather in Paris?", d.Describe(ctx, weatherTool))
		llm.AssertExpectations(t)
	})

	t.Run("failure yields empty string", func(t *testing.T) {
		llm := &MockLLMModel{}
		llm.On("GenerateContent", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

		assert.Equal(t, "", New(llm, model.DescriberConfig{}).Describe(ctx, weatherTool))
	})

	t.Run("nil describer", func(t *testing.T) {
		var d *Describer
		assert.Equal(t, "", d.Describe(ctx, weatherTool))
	})
}

func TestNew_Overrides(t *testing.T) {
	d := New(nil, model.DescriberConfig{MaxTokens: 50, Temperature: 0.2})
	assert.Equal(t, 50, d.maxTokens)
	assert.Equal(t, 0.2, d.temperature)
}

func TestResolveProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("CLAUDE_MODEL", "")

	p, err := ResolveProvider(model.DescriberConfig{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderAnthropic, p.Type)
	assert.Equal(t, "sk-test", p.Token)
	assert.Equal(t, DefaultClaudeModel, p.Model)

	providers := []model.Provider{{Name: "groq", Type: model.ProviderGroq, Token: "{{GROQ_KEY}}", Model: "llama"}}
	p, err = ResolveProvider(model.DescriberConfig{Provider: "groq"}, providers, map[string]string{"GROQ_KEY": "gk"})
	require.NoError(t, err)
	assert.Equal(t, "gk", p.Token)

	_, err = ResolveProvider(model.DescriberConfig{Provider: "missing"}, providers, nil)
	assert.Error(t, err)
}

func TestCreateProvider_Validation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		p       model.Provider
		wantErr string
	}{
		{"empty token", model.Provider{Type: model.ProviderAnthropic, Model: "m"}, "token is empty"},
		{"empty model", model.Provider{Type: model.ProviderAnthropic, Token: "t"}, "model is empty"},
		{"unsupported", model.Provider{Type: "MISTRAL", Token: "t", Model: "m"}, "unsupported provider type"},
		{"azure no version", model.Provider{Type: model.ProviderAzure, Token: "t", Model: "m", BaseURL: "https://x"}, "requires version"},
		{"azure no url", model.Provider{Type: model.ProviderAzure, Token: "t", Model: "m", Version: "v"}, "requires base URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateProvider(ctx, tt.p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	llm, err := CreateProvider(ctx, model.Provider{Type: model.ProviderOpenAI, Token: "t", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.NotNil(t, llm)
}
