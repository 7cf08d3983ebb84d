package llm

import (
	"context"

	"github.com/raine/tradefeed/internal/storage"
)

// Attributes are the structured product fields extracted from a post.
type Attributes struct {
	Price       float64
	Brand       string
	ProductType string
	Gender      storage.Gender
	Size        string
	Condition   storage.Condition
	IsWTB       bool
	IsWTS       bool
}

// DefaultAttributes is returned whenever extraction cannot produce a result.
func DefaultAttributes() Attributes {
	return Attributes{
		Gender:    storage.GenderUnisex,
		Condition: storage.ConditionNew,
		IsWTS:     true,
	}
}

// ImageProduct is what the vision fallback can tell about an image.
type ImageProduct struct {
	Brand       string
	ProductType string
}

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Completer sends a post description to a language model and returns the
// model's raw text answer.
type Completer interface {
	Complete(ctx context.Context, description string) (string, error)
}

// ImageIdentifier names the brand and product type shown in an image.
type ImageIdentifier interface {
	IdentifyProduct(ctx context.Context, imageData []byte, mimeType string) (*ImageProduct, error)
}

// ImageFetcher downloads an image by URL.
type ImageFetcher interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}
