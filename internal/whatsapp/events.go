package whatsapp

import (
	"encoding/json"
	"strings"

	"github.com/raine/tradefeed/internal/transport"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/encoding/protojson"
)

// keepAliveFailureLimit is how many missed keepalives count as a timeout.
const keepAliveFailureLimit = 3

// streamErrorRestart is the stream error code asking the client to reconnect.
const streamErrorRestart = "515"

// disconnectReason maps a whatsmeow event to a disconnect reason. ok is false
// for events that do not end the session.
func disconnectReason(evt any) (reason transport.DisconnectReason, ok bool) {
	switch v := evt.(type) {
	case *events.LoggedOut:
		return transport.ReasonLoggedOut, true
	case *events.StreamReplaced:
		return transport.ReasonConnectionReplaced, true
	case *events.Disconnected:
		return transport.ReasonConnectionLost, true
	case *events.KeepAliveTimeout:
		if v.ErrorCount >= keepAliveFailureLimit {
			return transport.ReasonTimedOut, true
		}
	case *events.ConnectFailure, *events.TemporaryBan:
		return transport.ReasonConnectionClosed, true
	case *events.StreamError:
		if v.Code == streamErrorRestart {
			return transport.ReasonRestartRequired, true
		}
		return transport.ReasonUnknown, true
	case *events.ClientOutdated:
		return transport.ReasonUnknown, true
	}
	return "", false
}

// auditPayload is the raw message kept on listings.
type auditPayload struct {
	Info    types.MessageInfo `json:"info"`
	Message json.RawMessage   `json:"message"`
}

// convertMessage turns a whatsmeow message event into the transport shape.
func convertMessage(evt *events.Message) *transport.InboundMessage {
	info := evt.Info
	msg := evt.Message

	in := &transport.InboundMessage{
		ID:           info.ID,
		ChatID:       info.Chat.User,
		IsGroup:      info.IsGroup || info.Chat.Server == types.GroupServer,
		IsFromMe:     info.IsFromMe,
		IsSystem:     isSystemMessage(info, msg),
		Timestamp:    info.Timestamp,
		SenderHandle: info.Sender.ToNonAD().String(),
		SenderPhone:  senderPhone(info.MessageSource),
		SenderName:   info.PushName,
	}

	if img := msg.GetImageMessage(); img != nil {
		in.Image = &transport.MediaRef{MimeType: img.GetMimetype(), Handle: img}
		in.Caption = img.GetCaption()
	} else if text := msg.GetConversation(); text != "" {
		in.Text = text
	} else {
		in.Text = msg.GetExtendedTextMessage().GetText()
	}

	in.Raw = marshalAudit(info, msg)
	return in
}

func isSystemMessage(info types.MessageInfo, msg *waE2E.Message) bool {
	if info.Chat.Server == types.BroadcastServer {
		return true
	}
	return msg.GetProtocolMessage() != nil
}

// senderPhone returns the phone number behind the sender. Senders addressed
// by LID only have a phone number when the alternate identity is present.
func senderPhone(src types.MessageSource) string {
	for _, jid := range []types.JID{src.Sender, src.SenderAlt} {
		if jid.Server == types.DefaultUserServer && jid.User != "" {
			return strings.TrimPrefix(jid.User, "+")
		}
	}
	return ""
}

func marshalAudit(info types.MessageInfo, msg *waE2E.Message) json.RawMessage {
	payload := auditPayload{Info: info, Message: json.RawMessage("null")}
	if msg != nil {
		body, err := protojson.Marshal(msg)
		if err != nil {
			log.Warn().Err(err).Str("messageId", info.ID).Msg("failed to marshal message proto")
		} else {
			payload.Message = body
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("messageId", info.ID).Msg("failed to marshal audit payload")
		return nil
	}
	return raw
}
