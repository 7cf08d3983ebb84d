package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMen    Gender = "men"
	GenderWomen  Gender = "women"
	GenderUnisex Gender = "unisex"
	GenderKids   Gender = "kids"
)

type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionUsed    Condition = "used"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

type ListingStatus string

const (
	StatusActive   ListingStatus = "active"
	StatusSold     ListingStatus = "sold"
	StatusArchived ListingStatus = "archived"
	StatusHidden   ListingStatus = "hidden"
)

// Listing is a persisted catalog entry built from one real-world post.
type Listing struct {
	ID           string
	VendorID     string
	GroupID      string
	GroupName    string
	RawMessage   json.RawMessage
	Description  string
	ImageURLs    []string
	Price        float64
	Currency     string
	Brand        string
	ProductType  string
	Gender       Gender
	Size         string
	Condition    Condition
	ViewCount    int
	LikeCount    int
	MessageCount int
	Status       ListingStatus
	IsWTB        bool
	IsWTS        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// VendorName is filled by SearchListings.
	VendorName string
}

// NormalizeDescription produces the key used by the duplicate guard.
func NormalizeDescription(description string) string {
	return strings.ToLower(strings.Join(strings.Fields(description), " "))
}

// DescriptionExists reports whether the vendor already has a listing whose
// normalized description matches.
func (s *SQLiteStore) DescriptionExists(ctx context.Context, vendorID, description string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM listings WHERE vendor_id = ? AND normalized_description = ?)",
		vendorID, NormalizeDescription(description),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate description: %w", err)
	}
	return exists, nil
}

// CreateListing inserts a listing, assigning ID and timestamps. It returns
// false without error when the vendor already has a listing with the same
// normalized description.
func (s *SQLiteStore) CreateListing(ctx context.Context, l *Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := s.now()
	l.CreatedAt = now
	l.UpdatedAt = now
	if l.Status == "" {
		l.Status = StatusActive
	}
	if l.ImageURLs == nil {
		l.ImageURLs = []string{}
	}
	if len(l.RawMessage) == 0 {
		l.RawMessage = json.RawMessage("{}")
	}

	urlsJSON, err := json.Marshal(l.ImageURLs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal image urls: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (id, vendor_id, group_id, group_name, raw_message, description,
			normalized_description, image_urls, price, currency, brand, product_type, gender, size,
			condition, view_count, like_count, message_count, status, is_wtb, is_wts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vendor_id, normalized_description) DO NOTHING
	`, l.ID, l.VendorID, l.GroupID, l.GroupName, string(l.RawMessage), l.Description,
		NormalizeDescription(l.Description), string(urlsJSON), l.Price, l.Currency, l.Brand,
		l.ProductType, string(l.Gender), l.Size, string(l.Condition), l.ViewCount, l.LikeCount,
		l.MessageCount, string(l.Status), boolToInt(l.IsWTB), boolToInt(l.IsWTS),
		toMillis(l.CreatedAt), toMillis(l.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to create listing: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to create listing: %w", err)
	}
	return n == 1, nil
}

const listingColumns = `l.id, l.vendor_id, l.group_id, l.group_name, l.raw_message, l.description,
	l.image_urls, l.price, l.currency, l.brand, l.product_type, l.gender, l.size, l.condition,
	l.view_count, l.like_count, l.message_count, l.status, l.is_wtb, l.is_wts, l.created_at,
	l.updated_at, v.display_name`

// GetListing retrieves a listing by ID.
// Returns nil, nil if the listing doesn't exist.
func (s *SQLiteStore) GetListing(ctx context.Context, id string) (*Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+listingColumns+` FROM listings l JOIN vendors v ON v.id = l.vendor_id
		WHERE l.id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	l, err := scanListing(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan listing: %w", err)
	}
	return l, nil
}

// SearchQuery selects a page of active listings.
type SearchQuery struct {
	Term  string
	Page  int
	Limit int
}

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// SearchResult is one page of listings plus the total match count.
type SearchResult struct {
	Listings []Listing
	Total    int
	Page     int
	Limit    int
}

// SearchListings returns active listings, newest first, whose brand, size,
// product type, description or vendor name contains the term.
func (s *SQLiteStore) SearchListings(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	where := "l.status = ?"
	args := []any{string(StatusActive)}
	if term := strings.TrimSpace(q.Term); term != "" {
		pattern := "%" + escapeLike(term) + "%"
		where += ` AND (l.brand LIKE ? ESCAPE '\' OR l.size LIKE ? ESCAPE '\'
			OR l.product_type LIKE ? ESCAPE '\' OR l.description LIKE ? ESCAPE '\'
			OR v.display_name LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern, pattern, pattern, pattern)
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM listings l JOIN vendors v ON v.id = l.vendor_id WHERE "+where,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+listingColumns+" FROM listings l JOIN vendors v ON v.id = l.vendor_id WHERE "+where+
			" ORDER BY l.created_at DESC LIMIT ? OFFSET ?",
		append(args, limit, (page-1)*limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	defer rows.Close()

	result := &SearchResult{Listings: []Listing{}, Total: total, Page: page, Limit: limit}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		result.Listings = append(result.Listings, *l)
	}

	return result, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanListing(rows *sql.Rows) (*Listing, error) {
	var l Listing
	var raw, urlsJSON, gender, condition, status string
	var wtb, wts int
	var createdAt, updatedAt int64
	err := rows.Scan(
		&l.ID, &l.VendorID, &l.GroupID, &l.GroupName, &raw, &l.Description,
		&urlsJSON, &l.Price, &l.Currency, &l.Brand, &l.ProductType, &gender, &l.Size, &condition,
		&l.ViewCount, &l.LikeCount, &l.MessageCount, &status, &wtb, &wts, &createdAt,
		&updatedAt, &l.VendorName,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(urlsJSON), &l.ImageURLs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal image urls: %w", err)
	}
	l.RawMessage = json.RawMessage(raw)
	l.Gender = Gender(gender)
	l.Condition = Condition(condition)
	l.Status = ListingStatus(status)
	l.IsWTB = wtb == 1
	l.IsWTS = wts == 1
	l.CreatedAt = fromMillis(createdAt)
	l.UpdatedAt = fromMillis(updatedAt)
	return &l, nil
}
