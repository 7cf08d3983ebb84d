package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const DefaultVisionModel = "gemini-2.5-flash-lite"

// Gemini Flash Lite pricing (per million tokens)
const (
	geminiLiteInputPricePerMillion  = 0.10
	geminiLiteOutputPricePerMillion = 0.40
)

// GeminiIdentifier identifies products in images using Gemini.
type GeminiIdentifier struct {
	client *genai.Client
	model  string
}

// NewGeminiIdentifier creates a Gemini-backed ImageIdentifier.
func NewGeminiIdentifier(ctx context.Context, apiKey, model string) (*GeminiIdentifier, error) {
	if model == "" {
		model = DefaultVisionModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiIdentifier{client: client, model: model}, nil
}

var imageProductSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"brand": {
			Type:        genai.TypeString,
			Description: "Brand name, empty string if not identifiable",
		},
		"productType": {
			Type:        genai.TypeString,
			Description: "Kind of item, empty string if unclear",
		},
	},
	Required:         []string{"brand", "productType"},
	PropertyOrdering: []string{"brand", "productType"},
}

// IdentifyProduct implements ImageIdentifier.
func (g *GeminiIdentifier) IdentifyProduct(ctx context.Context, imageData []byte, mimeType string) (*ImageProduct, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("no image data provided")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	parts := []*genai.Part{
		genai.NewPartFromText(visionPrompt),
		{InlineData: &genai.Blob{Data: imageData, MIMEType: mimeType}},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   imageProductSchema,
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from Gemini")
	}

	product, err := parseImageProduct(result.Text())
	if err != nil {
		return nil, err
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens, geminiLiteInputPricePerMillion, geminiLiteOutputPricePerMillion)
	}

	log.Info().
		Str("model", g.model).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Str("brand", product.Brand).
		Str("productType", product.ProductType).
		Msg("vision llm call")

	return product, nil
}

func calculateGeminiCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

func parseImageProduct(text string) (*ImageProduct, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var resp struct {
		Brand       string `json:"brand"`
		ProductType string `json:"productType"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, jsonStr)
	}

	return &ImageProduct{
		Brand:       strings.TrimSpace(resp.Brand),
		ProductType: strings.TrimSpace(resp.ProductType),
	}, nil
}
