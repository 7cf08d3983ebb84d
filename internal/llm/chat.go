package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	DefaultChatBaseURL = "https://api.groq.com/openai/v1"
	DefaultChatModel   = "openai/gpt-oss-20b"
)

// ChatCompleter extracts attributes through an OpenAI-compatible chat
// completion endpoint (Groq by default).
type ChatCompleter struct {
	client *openai.Client
	model  string
}

// NewChatCompleter creates a completer for the given endpoint and model.
func NewChatCompleter(apiKey, baseURL, model string) *ChatCompleter {
	if baseURL == "" {
		baseURL = DefaultChatBaseURL
	}
	if model == "" {
		model = DefaultChatModel
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &ChatCompleter{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

var attributesSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"price":       {Type: jsonschema.Number},
		"brand":       {Type: jsonschema.String},
		"productType": {Type: jsonschema.String},
		"gender":      {Type: jsonschema.String, Enum: []string{"men", "women", "unisex", "kids"}},
		"size":        {Type: jsonschema.String},
		"condition":   {Type: jsonschema.String, Enum: []string{"new", "like_new", "used", "fair", "poor"}},
		"iswtb":       {Type: jsonschema.Boolean},
		"iswts":       {Type: jsonschema.Boolean},
	},
	Required:             []string{"price", "brand", "productType", "gender", "size", "condition", "iswtb", "iswts"},
	AdditionalProperties: false,
}

// Complete implements Completer.
func (c *ChatCompleter) Complete(ctx context.Context, description string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: description},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "product_attributes",
				Schema: &attributesSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	log.Info().
		Str("model", c.model).
		Int("inputTokens", resp.Usage.PromptTokens).
		Int("outputTokens", resp.Usage.CompletionTokens).
		Msg("extraction llm call")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
