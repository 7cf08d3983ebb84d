package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultCallTimeout = 30 * time.Second

// Extractor turns a post description into Attributes. It never fails: any
// error along the way yields DefaultAttributes.
type Extractor struct {
	text    Completer
	vision  ImageIdentifier
	images  ImageFetcher
	timeout time.Duration
}

// NewExtractor creates an extractor. vision and images may be nil, which
// disables the image fallback.
func NewExtractor(text Completer, vision ImageIdentifier, images ImageFetcher) *Extractor {
	return &Extractor{
		text:    text,
		vision:  vision,
		images:  images,
		timeout: defaultCallTimeout,
	}
}

// Extract returns the attributes for description. When the text yields
// neither brand nor product type, the first image is used to backfill them.
func (e *Extractor) Extract(ctx context.Context, description string, imageURLs []string) Attributes {
	attrs, err := e.extract(ctx, description, imageURLs)
	if err != nil {
		log.Warn().Err(err).Msg("attribute extraction failed, using defaults")
		return DefaultAttributes()
	}
	return attrs
}

func (e *Extractor) extract(ctx context.Context, description string, imageURLs []string) (Attributes, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	raw, err := e.text.Complete(callCtx, description)
	cancel()
	if err != nil {
		return Attributes{}, err
	}

	attrs, err := decodeAttributes(raw)
	if err != nil {
		return Attributes{}, err
	}

	if attrs.Brand != "" || attrs.ProductType != "" {
		return attrs, nil
	}
	if len(imageURLs) == 0 || e.vision == nil || e.images == nil {
		return attrs, nil
	}

	product, err := e.ExtractFromImage(ctx, imageURLs[0])
	if err != nil {
		return Attributes{}, fmt.Errorf("vision fallback failed: %w", err)
	}

	attrs.Brand = product.Brand
	attrs.ProductType = product.ProductType
	log.Debug().
		Str("brand", attrs.Brand).
		Str("productType", attrs.ProductType).
		Msg("brand and product type backfilled from image")

	return attrs, nil
}

// ExtractFromImage downloads the image and asks the vision model for its
// brand and product type.
func (e *Extractor) ExtractFromImage(ctx context.Context, imageURL string) (*ImageProduct, error) {
	if e.vision == nil || e.images == nil {
		return nil, fmt.Errorf("vision fallback is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	data, mimeType, err := e.images.Download(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}

	return e.vision.IdentifyProduct(ctx, data, mimeType)
}
