// Package classifier labels incoming messages for the fast-path decision.
// It talks to the chat API through the raw SDK client: a single constrained
// call, no graph machinery, as cheap and fast as the stack allows.
package classifier

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
	llmx "github.com/hubenschmidt/pina-colada-sub000/agent/llm"
)

const maxClassifierTokens = 200

type Classifier struct {
	client       *openaisdk.Client
	model        string
	systemPrompt string
}

func New(client *openaisdk.Client, model, systemPrompt string) (*Classifier, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: classifier client is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: classifier model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: classifier prompt is missing", contractx.ErrPromptMissing)
	}
	return &Classifier{
		client:       client,
		model:        strings.TrimSpace(model),
		systemPrompt: strings.TrimSpace(systemPrompt),
	}, nil
}

type classifierOutput struct {
	FastPathIntent   string `json:"fast_path_intent"`
	LookupEntityType string `json:"lookup_entity_type"`
	LookupQuery      string `json:"lookup_query"`
}

func (c *Classifier) Classify(ctx context.Context, message string) (contractx.ClassificationResult, contractx.TokenUsage, error) {
	var usage contractx.TokenUsage

	resp, err := c.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(c.systemPrompt),
			openaisdk.UserMessage(message),
		},
		Temperature:         openaisdk.Float(0),
		MaxCompletionTokens: openaisdk.Int(maxClassifierTokens),
	})
	if err != nil {
		return contractx.ClassificationResult{}, usage, fmt.Errorf("%w: classify: %v", contractx.ErrModelInvoke, err)
	}

	usage = contractx.TokenUsage{
		Input:  int(resp.Usage.PromptTokens),
		Output: int(resp.Usage.CompletionTokens),
		Total:  int(resp.Usage.TotalTokens),
	}

	if len(resp.Choices) == 0 {
		return contractx.ClassificationResult{}, usage, fmt.Errorf("%w: classify returned no choices", contractx.ErrSchemaViolation)
	}

	var out classifierOutput
	if err := llmx.DecodeModelJSON(resp.Choices[0].Message.Content, &out); err != nil {
		return contractx.ClassificationResult{}, usage, fmt.Errorf("%w: classify decode: %v", contractx.ErrSchemaViolation, err)
	}

	return normalize(out), usage, nil
}

func normalize(out classifierOutput) contractx.ClassificationResult {
	result := contractx.ClassificationResult{
		LookupEntityType: strings.ToLower(strings.TrimSpace(out.LookupEntityType)),
		LookupQuery:      strings.TrimSpace(out.LookupQuery),
	}

	switch contractx.FastPathIntent(strings.ToLower(strings.TrimSpace(out.FastPathIntent))) {
	case contractx.IntentLookup:
		result.FastPathIntent = contractx.IntentLookup
	case contractx.IntentCount:
		result.FastPathIntent = contractx.IntentCount
	case contractx.IntentList:
		result.FastPathIntent = contractx.IntentList
	default:
		result.FastPathIntent = contractx.IntentOther
	}
	return result
}
