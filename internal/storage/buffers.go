package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageKind is the shape of the content accumulated in a buffer.
type MessageKind string

const (
	KindImage MessageKind = "image"
	KindMixed MessageKind = "mixed"
)

// BufferState is the lifecycle position of a message buffer.
type BufferState int

const (
	// BufferOpen accepts more images and waits for its caption.
	BufferOpen BufferState = iota
	// BufferSealed has its caption and is ready to become a listing.
	BufferSealed
)

func (s BufferState) String() string {
	if s == BufferSealed {
		return "sealed"
	}
	return "open"
}

var (
	ErrOpenBufferExists = errors.New("an open buffer already exists for this vendor and group")
	ErrBufferNotOpen    = errors.New("buffer is not open")
)

// MessageBuffer is a product post still waiting for its missing half.
type MessageBuffer struct {
	ID              string
	VendorID        string
	GroupID         string
	Kind            MessageKind
	Description     string
	ImageURLs       []string
	IsProcessed     bool
	ShouldCombine   bool
	SourceMessageID string
	SourceTimestamp time.Time
	CreatedAt       time.Time
}

// State derives the buffer's lifecycle state from its flags.
func (b *MessageBuffer) State() BufferState {
	if b.IsProcessed && !b.ShouldCombine {
		return BufferSealed
	}
	return BufferOpen
}

const bufferColumns = `id, vendor_id, group_id, kind, description, image_urls, is_processed,
	should_combine, source_message_id, source_timestamp, created_at`

// OpenBufferFor returns the open buffer for (vendor, group).
// Returns nil, nil if there is none.
func (s *SQLiteStore) OpenBufferFor(ctx context.Context, vendorID, groupID string) (*MessageBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+bufferColumns+` FROM message_buffers
		WHERE vendor_id = ? AND group_id = ? AND should_combine = 1 AND is_processed = 0
	`, vendorID, groupID)
	b, err := scanBuffer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query open buffer: %w", err)
	}
	return b, nil
}

// CreateImageBuffer opens a new image buffer for (vendor, group). Returns
// ErrOpenBufferExists if the slot is already taken.
func (s *SQLiteStore) CreateImageBuffer(ctx context.Context, vendorID, groupID string, imageURLs []string, sourceMessageID string, sourceTimestamp time.Time) (*MessageBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if imageURLs == nil {
		imageURLs = []string{}
	}
	urlsJSON, err := json.Marshal(imageURLs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image urls: %w", err)
	}

	b := &MessageBuffer{
		ID:              uuid.New().String(),
		VendorID:        vendorID,
		GroupID:         groupID,
		Kind:            KindImage,
		ImageURLs:       imageURLs,
		ShouldCombine:   true,
		SourceMessageID: sourceMessageID,
		SourceTimestamp: sourceTimestamp,
		CreatedAt:       s.now(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO message_buffers (id, vendor_id, group_id, kind, image_urls, is_processed,
			should_combine, source_message_id, source_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 1, ?, ?, ?)
	`, b.ID, b.VendorID, b.GroupID, string(b.Kind), string(urlsJSON),
		b.SourceMessageID, toMillis(b.SourceTimestamp), toMillis(b.CreatedAt))
	if isUniqueViolation(err) {
		return nil, ErrOpenBufferExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}

	return b, nil
}

// AppendImage adds an image URL to an open buffer without touching its flags.
func (s *SQLiteStore) AppendImage(ctx context.Context, bufferID, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE message_buffers SET image_urls = json_insert(image_urls, '$[#]', ?)
		WHERE id = ? AND should_combine = 1 AND is_processed = 0
	`, imageURL, bufferID)
	if err != nil {
		return fmt.Errorf("failed to append image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBufferNotOpen
	}
	return nil
}

// SealWithText attaches the caption to an open buffer and marks it sealed.
// Only one caller can seal a given buffer; the others get nil, nil.
func (s *SQLiteStore) SealWithText(ctx context.Context, bufferID, text string, sealedAt time.Time) (*MessageBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		UPDATE message_buffers
		SET description = ?, kind = ?, should_combine = 0, is_processed = 1, source_timestamp = ?
		WHERE id = ? AND should_combine = 1 AND is_processed = 0
		RETURNING `+bufferColumns,
		text, string(KindMixed), toMillis(sealedAt), bufferID)
	b, err := scanBuffer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to seal buffer: %w", err)
	}
	return b, nil
}

// DeleteBuffer removes a buffer once it has been consumed.
func (s *SQLiteStore) DeleteBuffer(ctx context.Context, bufferID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM message_buffers WHERE id = ?", bufferID); err != nil {
		return fmt.Errorf("failed to delete buffer: %w", err)
	}
	return nil
}

// PurgeStaleBuffers deletes sealed buffers whose source timestamp is before
// cutoff and returns how many were removed. Open buffers are never touched.
func (s *SQLiteStore) PurgeStaleBuffers(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM message_buffers WHERE should_combine = 0 AND source_timestamp < ?",
		toMillis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale buffers: %w", err)
	}
	return res.RowsAffected()
}

// GetBuffer retrieves a buffer by ID.
// Returns nil, nil if it doesn't exist.
func (s *SQLiteStore) GetBuffer(ctx context.Context, bufferID string) (*MessageBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+bufferColumns+` FROM message_buffers WHERE id = ?`, bufferID)
	b, err := scanBuffer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query buffer: %w", err)
	}
	return b, nil
}

func scanBuffer(row *sql.Row) (*MessageBuffer, error) {
	var b MessageBuffer
	var kind, urlsJSON string
	var processed, combine int
	var sourceTS, createdAt int64
	err := row.Scan(
		&b.ID, &b.VendorID, &b.GroupID, &kind, &b.Description, &urlsJSON, &processed,
		&combine, &b.SourceMessageID, &sourceTS, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(urlsJSON), &b.ImageURLs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal image urls: %w", err)
	}
	b.Kind = MessageKind(kind)
	b.IsProcessed = processed == 1
	b.ShouldCombine = combine == 1
	b.SourceTimestamp = fromMillis(sourceTS)
	b.CreatedAt = fromMillis(createdAt)
	return &b, nil
}
