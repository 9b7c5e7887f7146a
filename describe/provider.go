package describe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/mykhaliev/tool-bench/templates"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/googleai/vertex"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultClaudeModel = "claude-3-7-sonnet-20250219"
	groqBaseURL        = "https://api.groq.com/openai/v1"
	azureScope         = "https://cognitiveservices.azure.com/.default"
)

// DefaultProvider is used when the describer names no configured provider:
// Anthropic with ANTHROPIC_API_KEY and CLAUDE_MODEL from the environment.
func DefaultProvider() model.Provider {
	m := os.Getenv("CLAUDE_MODEL")
	if m == "" {
		m = DefaultClaudeModel
	}
	return model.Provider{
		Name:  "default",
		Type:  model.ProviderAnthropic,
		Token: os.Getenv("ANTHROPIC_API_KEY"),
		Model: m,
	}
}

// ResolveProvider finds the provider named by the describer configuration and
// renders its templated fields.
func ResolveProvider(cfg model.DescriberConfig, providers []model.Provider, templateCtx map[string]string) (model.Provider, error) {
	if cfg.Provider == "" || strings.EqualFold(cfg.Provider, "default") {
		return DefaultProvider(), nil
	}

	for _, p := range providers {
		if p.Name != cfg.Provider {
			continue
		}
		p.Token = templates.Render(p.Token, templateCtx)
		p.Secret = templates.Render(p.Secret, templateCtx)
		p.BaseURL = templates.Render(p.BaseURL, templateCtx)
		p.Model = templates.Render(p.Model, templateCtx)
		return p, nil
	}
	return model.Provider{}, fmt.Errorf("describer provider %q is not configured", cfg.Provider)
}

func CreateProvider(ctx context.Context, p model.Provider) (llms.Model, error) {
	isEntraIdAuth := p.Type == model.ProviderAzure && strings.ToLower(p.AuthType) == "entra_id"
	if p.Type != model.ProviderVertex && !isEntraIdAuth && p.Token == "" {
		return nil, fmt.Errorf("provider token is empty")
	}
	if p.Model == "" {
		return nil, fmt.Errorf("provider model is empty")
	}

	var (
		llmModel llms.Model
		err      error
	)

	switch p.Type {
	case model.ProviderAnthropic:
		llmModel, err = anthropic.New(
			anthropic.WithModel(p.Model),
			anthropic.WithToken(p.Token),
		)

	case model.ProviderAmazonAnthropic:
		cfg, cfgErr := config.LoadDefaultConfig(ctx,
			config.WithRegion(p.Location),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(p.Token, p.Secret, "")),
		)
		if cfgErr != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", cfgErr)
		}
		llmModel, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(cfg)),
			bedrock.WithModel(p.Model),
		)

	case model.ProviderOpenAI, model.ProviderGroq:
		opts := []openai.Option{
			openai.WithToken(p.Token),
			openai.WithModel(p.Model),
		}
		switch {
		case p.BaseURL != "":
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		case p.Type == model.ProviderGroq:
			opts = append(opts, openai.WithBaseURL(groqBaseURL))
		}
		llmModel, err = openai.New(opts...)

	case model.ProviderGoogle:
		llmModel, err = googleai.New(ctx,
			googleai.WithAPIKey(p.Token),
			googleai.WithDefaultModel(p.Model),
		)

	case model.ProviderVertex:
		llmModel, err = vertex.New(ctx,
			googleai.WithDefaultModel(p.Model),
			googleai.WithCloudProject(p.ProjectID),
			googleai.WithCloudLocation(p.Location),
			googleai.WithCredentialsFile(p.CredentialsPath),
		)

	case model.ProviderAzure:
		if p.Version == "" {
			return nil, fmt.Errorf("Azure provider requires version")
		}
		if p.BaseURL == "" {
			return nil, fmt.Errorf("Azure provider requires base URL")
		}

		opts := []openai.Option{
			openai.WithModel(p.Model),
			openai.WithAPIVersion(p.Version),
			openai.WithBaseURL(p.BaseURL),
		}
		if isEntraIdAuth {
			cred, credErr := azidentity.NewDefaultAzureCredential(nil)
			if credErr != nil {
				return nil, fmt.Errorf("failed to create Azure credential: %w", credErr)
			}
			token, tokErr := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{azureScope}})
			if tokErr != nil {
				return nil, fmt.Errorf("failed to get Azure token: %w", tokErr)
			}
			opts = append(opts, openai.WithAPIType(openai.APITypeAzureAD), openai.WithToken(token.Token))
		} else {
			opts = append(opts, openai.WithAPIType(openai.APITypeAzure), openai.WithToken(p.Token))
		}
		llmModel, err = openai.New(opts...)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", p.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", p.Type, err)
	}

	logger.Logger.Debug("Describer provider created", "name", p.Name, "type", p.Type, "model", p.Model)
	if NeedsLimiter(p.RateLimits, p.Retry) {
		return NewRateLimitedLLM(llmModel, p.RateLimits, p.Retry, p.Model), nil
	}
	return llmModel, nil
}
