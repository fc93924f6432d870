package openai

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sashabaranov/go-openai"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
	"github.com/rucnyz/vulscan-plugin/internal/infra/ai/prompt"
)

const maxTokens = 2048

// localTokenLimit caps the usage self-report when running against OpenAI
// directly; there is no account endpoint to ask, so the client counts the
// tokens it spends itself.
const localTokenLimit = 1_000_000

// Client is the fallback analysis backend: it talks to OpenAI directly
// instead of the hosted analysis service, using the same verdict schema.
type Client struct {
	*openai.Client
	Model string

	tokensUsed atomic.Int64
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

func (c *Client) Analyze(ctx context.Context, req analysis.AnalyzeRequest) (analysis.Verdict, error) {
	raw, err := c.complete(ctx, req.Model, prompt.SecuritySystem(), prompt.User(req))
	if err != nil {
		return analysis.Verdict{}, err
	}
	return prompt.ParseSecurity(raw)
}

func (c *Client) AnalyzeCompliance(ctx context.Context, req analysis.AnalyzeRequest) (analysis.Verdict, error) {
	raw, err := c.complete(ctx, req.Model, prompt.ComplianceSystem(), prompt.User(req))
	if err != nil {
		return analysis.Verdict{}, err
	}
	return prompt.ParseCompliance(raw)
}

func (c *Client) ExtractDependencies(ctx context.Context, code string, round int, model string) (analysis.ExtractionRound, error) {
	raw, err := c.complete(ctx, model, prompt.ExtractSystem(), prompt.ExtractUser(code, round))
	if err != nil {
		return analysis.ExtractionRound{}, err
	}
	return prompt.ParseExtraction(raw, round)
}

func (c *Client) TokenUsage(ctx context.Context) (analysis.TokenUsage, error) {
	used := c.tokensUsed.Load()
	pct := float64(used) / float64(localTokenLimit) * 100
	return analysis.TokenUsage{
		TokensUsed:      used,
		TokenLimit:      localTokenLimit,
		UsagePercentage: pct,
		NearLimit:       pct >= 80,
	}, nil
}

func (c *Client) complete(ctx context.Context, model, system, user string) (string, error) {
	if model == "" {
		model = c.Model
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	c.tokensUsed.Add(int64(resp.Usage.TotalTokens))
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", analysis.ErrProtocol)
	}
	return resp.Choices[0].Message.Content, nil
}
