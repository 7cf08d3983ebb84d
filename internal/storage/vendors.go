package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Vendor is the identity behind a phone number that posts in trade groups.
type Vendor struct {
	ID              string
	TransportHandle string
	PhoneNumber     string
	DisplayName     string
	TotalListings   int
	RatingSum       int
	RatingCount     int
	IsBlocked       bool
	LastMessageAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const vendorColumns = `id, transport_handle, phone_number, display_name, total_listings,
	rating_sum, rating_count, is_blocked, last_message_at, created_at, updated_at`

// ResolveVendor returns the vendor registered for phone, creating it with zero
// counters when absent. An existing vendor is returned unchanged.
func (s *SQLiteStore) ResolveVendor(ctx context.Context, phone, displayName, handle string) (*Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := toMillis(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, transport_handle, phone_number, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone_number) DO NOTHING
	`, uuid.New().String(), handle, phone, displayName, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert vendor: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE phone_number = ?`, phone)
	v, err := scanVendor(row)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor: %w", err)
	}
	return v, nil
}

// GetVendor retrieves a vendor by ID.
// Returns nil, nil if the vendor doesn't exist.
func (s *SQLiteStore) GetVendor(ctx context.Context, id string) (*Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = ?`, id)
	v, err := scanVendor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor: %w", err)
	}
	return v, nil
}

// TouchVendor records that a listing was created for the vendor from a
// message sent at the given time.
func (s *SQLiteStore) TouchVendor(ctx context.Context, vendorID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE vendors
		SET total_listings = total_listings + 1, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`, toMillis(at), toMillis(s.now()), vendorID)
	if err != nil {
		return fmt.Errorf("failed to touch vendor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to touch vendor: no vendor with id %s", vendorID)
	}
	return nil
}

func scanVendor(row *sql.Row) (*Vendor, error) {
	var v Vendor
	var blocked int
	var lastMessage sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&v.ID, &v.TransportHandle, &v.PhoneNumber, &v.DisplayName, &v.TotalListings,
		&v.RatingSum, &v.RatingCount, &blocked, &lastMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.IsBlocked = blocked == 1
	if lastMessage.Valid {
		t := fromMillis(lastMessage.Int64)
		v.LastMessageAt = &t
	}
	v.CreatedAt = fromMillis(createdAt)
	v.UpdatedAt = fromMillis(updatedAt)
	return &v, nil
}
