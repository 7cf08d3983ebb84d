package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// VisionCacheEntry represents a cached vision fallback result.
type VisionCacheEntry struct {
	Brand       string
	ProductType string
}

// GetVisionCache retrieves a cached vision result by image hash.
// Returns nil, nil if no cache entry exists.
func (s *SQLiteStore) GetVisionCache(ctx context.Context, imageHash string) (*VisionCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry VisionCacheEntry
	err := s.db.QueryRowContext(ctx,
		"SELECT brand, product_type FROM vision_cache WHERE image_hash = ?",
		imageHash,
	).Scan(&entry.Brand, &entry.ProductType)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vision cache: %w", err)
	}

	return &entry, nil
}

// SetVisionCache stores a vision result in the cache.
func (s *SQLiteStore) SetVisionCache(ctx context.Context, imageHash string, entry *VisionCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vision_cache (image_hash, brand, product_type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(image_hash) DO UPDATE SET
			brand = excluded.brand,
			product_type = excluded.product_type,
			created_at = excluded.created_at
	`, imageHash, entry.Brand, entry.ProductType, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("failed to set vision cache: %w", err)
	}

	return nil
}
