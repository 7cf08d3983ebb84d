package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/raine/tradefeed/internal/transport"
	"github.com/rs/zerolog/log"
)

// FreshnessWindow is how old a message may be and still be processed.
const FreshnessWindow = 5 * time.Minute

// Kind is the content shape of a classified message.
type Kind int

const (
	KindImageWithCaption Kind = iota
	KindImageOnly
	KindTextOnly
)

func (k Kind) String() string {
	switch k {
	case KindImageWithCaption:
		return "image_with_caption"
	case KindImageOnly:
		return "image_only"
	default:
		return "text_only"
	}
}

// DropReason says why a message was not passed on.
type DropReason string

const (
	DropSelfAuthored DropReason = "self_authored"
	DropSystem       DropReason = "system"
	DropNotGroup     DropReason = "not_group"
	DropStale        DropReason = "stale"
	DropNoSender     DropReason = "no_sender_phone"
	DropNoContent    DropReason = "no_content"
)

// Message is a group trade message that survived classification.
type Message struct {
	ID           string
	GroupID      string
	GroupName    string
	SenderPhone  string
	SenderName   string
	SenderHandle string
	Kind         Kind
	// Text is the caption for image messages and the body for text messages.
	Text      string
	Image     *transport.MediaRef
	Timestamp time.Time
	Raw       json.RawMessage
}

// GroupNamer resolves group display names.
type GroupNamer interface {
	ResolveGroupName(ctx context.Context, groupID string) (string, error)
}

// Classifier filters inbound messages and normalizes the survivors. Group
// names are looked up once per group and kept for the process lifetime.
type Classifier struct {
	groups GroupNamer
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	names map[string]string
}

// NewClassifier creates a classifier backed by groups.
func NewClassifier(groups GroupNamer) *Classifier {
	return &Classifier{
		groups: groups,
		window: FreshnessWindow,
		now:    time.Now,
		names:  make(map[string]string),
	}
}

// Classify returns the normalized message, or nil and the reason it was dropped.
func (c *Classifier) Classify(ctx context.Context, in *transport.InboundMessage) (*Message, DropReason) {
	switch {
	case in.IsFromMe:
		return nil, DropSelfAuthored
	case in.IsSystem:
		return nil, DropSystem
	case !in.IsGroup:
		return nil, DropNotGroup
	case c.now().Sub(in.Timestamp) > c.window:
		return nil, DropStale
	case in.SenderPhone == "":
		return nil, DropNoSender
	}

	msg := &Message{
		ID:           in.ID,
		GroupID:      in.ChatID,
		SenderPhone:  in.SenderPhone,
		SenderName:   strings.TrimSpace(in.SenderName),
		SenderHandle: in.SenderHandle,
		Timestamp:    in.Timestamp,
		Raw:          in.Raw,
	}

	switch {
	case in.Image != nil:
		msg.Image = in.Image
		msg.Text = strings.TrimSpace(in.Caption)
		msg.Kind = KindImageOnly
		if msg.Text != "" {
			msg.Kind = KindImageWithCaption
		}
	case strings.TrimSpace(in.Text) != "":
		msg.Text = strings.TrimSpace(in.Text)
		msg.Kind = KindTextOnly
	default:
		return nil, DropNoContent
	}

	msg.GroupName = c.GroupName(ctx, msg.GroupID)
	return msg, ""
}

// GroupName returns the cached display name for groupID, resolving it on
// first use. Failed lookups return "" and are retried next time.
func (c *Classifier) GroupName(ctx context.Context, groupID string) string {
	c.mu.Lock()
	name, ok := c.names[groupID]
	c.mu.Unlock()
	if ok {
		return name
	}

	name, err := c.groups.ResolveGroupName(ctx, groupID)
	if err != nil {
		log.Warn().Err(err).Str("groupId", groupID).Msg("failed to resolve group name")
		return ""
	}

	c.mu.Lock()
	c.names[groupID] = name
	c.mu.Unlock()
	return name
}
