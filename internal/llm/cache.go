package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/raine/tradefeed/internal/storage"
	"github.com/rs/zerolog/log"
)

// VisionCache stores vision results by image hash.
type VisionCache interface {
	GetVisionCache(ctx context.Context, imageHash string) (*storage.VisionCacheEntry, error)
	SetVisionCache(ctx context.Context, imageHash string, entry *storage.VisionCacheEntry) error
}

// CachedIdentifier wraps an ImageIdentifier with SQLite caching.
type CachedIdentifier struct {
	inner ImageIdentifier
	store VisionCache
}

// NewCachedIdentifier creates a cached identifier.
func NewCachedIdentifier(inner ImageIdentifier, store VisionCache) *CachedIdentifier {
	return &CachedIdentifier{inner: inner, store: store}
}

func hashImage(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IdentifyProduct implements ImageIdentifier with caching. Cache failures are
// logged and never fail the call.
func (c *CachedIdentifier) IdentifyProduct(ctx context.Context, imageData []byte, mimeType string) (*ImageProduct, error) {
	hash := hashImage(imageData)

	cached, err := c.store.GetVisionCache(ctx, hash)
	if err != nil {
		log.Warn().Err(err).Msg("failed to check vision cache")
	} else if cached != nil {
		log.Debug().Str("hash", hash[:16]).Msg("vision cache hit")
		return &ImageProduct{Brand: cached.Brand, ProductType: cached.ProductType}, nil
	}

	product, err := c.inner.IdentifyProduct(ctx, imageData, mimeType)
	if err != nil {
		return nil, err
	}

	entry := &storage.VisionCacheEntry{Brand: product.Brand, ProductType: product.ProductType}
	if err := c.store.SetVisionCache(ctx, hash, entry); err != nil {
		log.Warn().Err(err).Msg("failed to cache vision result")
	} else {
		log.Debug().Str("hash", hash[:16]).Msg("vision result cached")
	}

	return product, nil
}
