// Package listing turns classified group messages into listings, combining
// image bursts with the text that follows them.
package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raine/tradefeed/internal/ingest"
	"github.com/raine/tradefeed/internal/llm"
	"github.com/raine/tradefeed/internal/storage"
	"github.com/raine/tradefeed/internal/transport"
	"github.com/rs/zerolog/log"
)

const DefaultCurrency = "GBP"

// Store is the persistence the assembler drives.
type Store interface {
	ResolveVendor(ctx context.Context, phone, displayName, handle string) (*storage.Vendor, error)
	TouchVendor(ctx context.Context, vendorID string, at time.Time) error

	OpenBufferFor(ctx context.Context, vendorID, groupID string) (*storage.MessageBuffer, error)
	CreateImageBuffer(ctx context.Context, vendorID, groupID string, imageURLs []string, sourceMessageID string, sourceTimestamp time.Time) (*storage.MessageBuffer, error)
	AppendImage(ctx context.Context, bufferID, imageURL string) error
	SealWithText(ctx context.Context, bufferID, text string, sealedAt time.Time) (*storage.MessageBuffer, error)
	DeleteBuffer(ctx context.Context, bufferID string) error

	DescriptionExists(ctx context.Context, vendorID, description string) (bool, error)
	CreateListing(ctx context.Context, l *storage.Listing) (bool, error)
}

// MediaFetcher downloads attachment bytes from the chat network.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, ref *transport.MediaRef) ([]byte, error)
}

// Uploader stores image bytes and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Extractor derives product attributes from a post.
type Extractor interface {
	Extract(ctx context.Context, description string, imageURLs []string) llm.Attributes
}

// Assembler implements ingest.Assembler.
type Assembler struct {
	store     Store
	media     MediaFetcher
	uploader  Uploader
	extractor Extractor
	currency  string
}

// NewAssembler creates an assembler that writes listings in DefaultCurrency.
func NewAssembler(store Store, media MediaFetcher, uploader Uploader, extractor Extractor) *Assembler {
	return &Assembler{
		store:     store,
		media:     media,
		uploader:  uploader,
		extractor: extractor,
		currency:  DefaultCurrency,
	}
}

// WithCurrency sets the currency recorded on new listings.
func (a *Assembler) WithCurrency(currency string) *Assembler {
	if currency != "" {
		a.currency = currency
	}
	return a
}

// Assemble acts on one classified message. Outcomes that simply mean "not a
// listing" return nil; only infrastructure failures are returned.
func (a *Assembler) Assemble(ctx context.Context, msg *ingest.Message) error {
	vendor, err := a.store.ResolveVendor(ctx, msg.SenderPhone, msg.SenderName, msg.SenderHandle)
	if err != nil {
		return fmt.Errorf("failed to resolve vendor: %w", err)
	}

	switch msg.Kind {
	case ingest.KindImageWithCaption:
		url, err := a.uploadImage(ctx, msg)
		if err != nil {
			return err
		}
		return a.createListing(ctx, msg, vendor, msg.Text, []string{url})

	case ingest.KindImageOnly:
		url, err := a.uploadImage(ctx, msg)
		if err != nil {
			return err
		}
		return a.bufferImage(ctx, msg, vendor, url)

	case ingest.KindTextOnly:
		return a.sealBuffer(ctx, msg, vendor)
	}

	return fmt.Errorf("unknown message kind %d", msg.Kind)
}

func (a *Assembler) uploadImage(ctx context.Context, msg *ingest.Message) (string, error) {
	data, err := a.media.DownloadMedia(ctx, msg.Image)
	if err != nil {
		return "", fmt.Errorf("failed to download media: %w", err)
	}

	contentType := msg.Image.MimeType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	url, err := a.uploader.Upload(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return url, nil
}

// bufferImage adds url to the vendor's open buffer in the group, opening one
// if needed.
func (a *Assembler) bufferImage(ctx context.Context, msg *ingest.Message, vendor *storage.Vendor, url string) error {
	buf, err := a.store.OpenBufferFor(ctx, vendor.ID, msg.GroupID)
	if err != nil {
		return err
	}

	if buf == nil {
		buf, err = a.store.CreateImageBuffer(ctx, vendor.ID, msg.GroupID, []string{url}, msg.ID, msg.Timestamp)
		if err == nil {
			log.Debug().Str("bufferId", buf.ID).Str("vendorId", vendor.ID).Str("groupId", msg.GroupID).Msg("buffer opened")
			return nil
		}
		if !errors.Is(err, storage.ErrOpenBufferExists) {
			return err
		}
		// Another writer took the slot between the lookup and the insert
		buf, err = a.store.OpenBufferFor(ctx, vendor.ID, msg.GroupID)
		if err != nil {
			return err
		}
		if buf == nil {
			return fmt.Errorf("open buffer for vendor %s in group %s disappeared", vendor.ID, msg.GroupID)
		}
	}

	if err := a.store.AppendImage(ctx, buf.ID, url); err != nil {
		return err
	}
	log.Debug().Str("bufferId", buf.ID).Int("images", len(buf.ImageURLs)+1).Msg("image appended to buffer")
	return nil
}

// sealBuffer attaches text to the open buffer and turns the result into a
// listing. The sealed buffer is deleted whatever the outcome.
func (a *Assembler) sealBuffer(ctx context.Context, msg *ingest.Message, vendor *storage.Vendor) error {
	buf, err := a.store.OpenBufferFor(ctx, vendor.ID, msg.GroupID)
	if err != nil {
		return err
	}
	if buf == nil {
		logDrop(msg, "no_open_buffer")
		return nil
	}

	sealed, err := a.store.SealWithText(ctx, buf.ID, msg.Text, msg.Timestamp)
	if err != nil {
		return err
	}
	if sealed == nil {
		logDrop(msg, "buffer_already_sealed")
		return nil
	}
	if sealed.State() != storage.BufferSealed {
		log.Error().Str("bufferId", sealed.ID).Stringer("state", sealed.State()).Msg("buffer not sealed after adding text")
		return nil
	}
	defer func() {
		if err := a.store.DeleteBuffer(context.WithoutCancel(ctx), sealed.ID); err != nil {
			log.Error().Err(err).Str("bufferId", sealed.ID).Msg("failed to delete consumed buffer")
		}
	}()

	if len(sealed.ImageURLs) == 0 {
		logDrop(msg, "no_images")
		return nil
	}

	return a.createListing(ctx, msg, vendor, sealed.Description, sealed.ImageURLs)
}

func (a *Assembler) createListing(ctx context.Context, msg *ingest.Message, vendor *storage.Vendor, description string, imageURLs []string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		logDrop(msg, "empty_description")
		return nil
	}

	exists, err := a.store.DescriptionExists(ctx, vendor.ID, description)
	if err != nil {
		return err
	}
	if exists {
		logDrop(msg, "duplicate")
		return nil
	}

	attrs := a.extractor.Extract(ctx, description, imageURLs)
	if attrs.IsWTB == attrs.IsWTS {
		logDrop(msg, "ambiguous_intent")
		return nil
	}

	l := &storage.Listing{
		VendorID:    vendor.ID,
		GroupID:     msg.GroupID,
		GroupName:   msg.GroupName,
		RawMessage:  msg.Raw,
		Description: description,
		ImageURLs:   imageURLs,
		Price:       attrs.Price,
		Currency:    a.currency,
		Brand:       attrs.Brand,
		ProductType: attrs.ProductType,
		Gender:      attrs.Gender,
		Size:        attrs.Size,
		Condition:   attrs.Condition,
		Status:      storage.StatusActive,
		IsWTB:       attrs.IsWTB,
		IsWTS:       attrs.IsWTS,
	}

	created, err := a.store.CreateListing(ctx, l)
	if err != nil {
		return err
	}
	if !created {
		logDrop(msg, "duplicate")
		return nil
	}

	if err := a.store.TouchVendor(ctx, vendor.ID, msg.Timestamp); err != nil {
		return err
	}

	log.Info().
		Str("listingId", l.ID).
		Str("vendorId", vendor.ID).
		Str("groupId", msg.GroupID).
		Str("brand", l.Brand).
		Float64("price", l.Price).
		Int("images", len(l.ImageURLs)).
		Bool("wtb", l.IsWTB).
		Msg("listing created")
	return nil
}

func logDrop(msg *ingest.Message, reason string) {
	log.Debug().
		Str("messageId", msg.ID).
		Str("groupId", msg.GroupID).
		Str("reason", reason).
		Msg("message not listed")
}
