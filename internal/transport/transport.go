// Package transport defines the contract between the chat network client and
// the ingestion pipeline.
package transport

import (
	"context"
	"encoding/json"
	"time"
)

// DisconnectReason classifies why a session dropped.
type DisconnectReason string

const (
	ReasonLoggedOut          DisconnectReason = "logged_out"
	ReasonRestartRequired    DisconnectReason = "restart_required"
	ReasonConnectionLost     DisconnectReason = "connection_lost"
	ReasonConnectionClosed   DisconnectReason = "connection_closed"
	ReasonTimedOut           DisconnectReason = "timed_out"
	ReasonConnectionReplaced DisconnectReason = "connection_replaced"
	ReasonUnknown            DisconnectReason = "unknown"
)

// MediaRef points at an attachment that can be fetched through the session
// that delivered it.
type MediaRef struct {
	MimeType string
	// Handle is the client-specific descriptor needed to download the blob.
	Handle any
}

// InboundMessage is a chat message as delivered by the transport, before any
// filtering.
type InboundMessage struct {
	ID        string
	ChatID    string
	IsGroup   bool
	IsFromMe  bool
	IsSystem  bool
	Timestamp time.Time

	SenderHandle string
	SenderPhone  string
	SenderName   string

	Text  string
	Image *MediaRef
	// Caption is the text attached to Image, if any.
	Caption string

	Raw json.RawMessage
}

// EventHandler receives session events. Calls happen on the transport's
// goroutines and must not block for long.
type EventHandler interface {
	HandleMessage(msg *InboundMessage)
	HandleConnected()
	HandleDisconnected(reason DisconnectReason)
	HandleCredentialsUpdated()
}

// Session is a live connection to the chat network.
type Session interface {
	SetEventHandler(h EventHandler)
	Connect(ctx context.Context) error
	Disconnect()
	// ResolveGroupName returns the display name of a group chat.
	ResolveGroupName(ctx context.Context, groupID string) (string, error)
	// DownloadMedia fetches the attachment bytes.
	DownloadMedia(ctx context.Context, ref *MediaRef) ([]byte, error)
	// PersistCredentials flushes session credentials to durable storage.
	PersistCredentials(ctx context.Context) error
}
