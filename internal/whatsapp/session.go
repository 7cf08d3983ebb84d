// Package whatsapp implements the transport session over WhatsApp
// multi-device using whatsmeow.
package whatsapp

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/raine/tradefeed/internal/alert"
	"github.com/raine/tradefeed/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"
)

const (
	qrImageSize   = 512
	notifyTimeout = 10 * time.Second
)

// Options configures a Session.
type Options struct {
	// SessionPath is the SQLite file holding device credentials.
	SessionPath string
	// QRPath is where pairing codes are written as PNG.
	QRPath string
	// Alerter receives pairing codes. May be nil.
	Alerter alert.Notifier
}

// Session is a transport.Session backed by a whatsmeow client.
type Session struct {
	client  *whatsmeow.Client
	qrPath  string
	alerter alert.Notifier

	mu      sync.RWMutex
	handler transport.EventHandler
}

// Open loads (or creates) the device store and prepares a client. It does
// not connect.
func Open(ctx context.Context, opts Options) (*Session, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", opts.SessionPath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, newLogger("whatsmeow/store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	store.DeviceProps.Os = proto.String("tradefeed")

	client := whatsmeow.NewClient(device, newLogger("whatsmeow/client"))
	// Reconnects are owned by the connection manager.
	client.EnableAutoReconnect = false

	s := &Session{
		client:  client,
		qrPath:  opts.QRPath,
		alerter: opts.Alerter,
	}
	client.AddEventHandler(s.handleEvent)

	if err := os.Chmod(opts.SessionPath, 0600); err != nil {
		log.Warn().Err(err).Str("path", opts.SessionPath).Msg("failed to set session file permissions")
	}

	return s, nil
}

// SetEventHandler implements transport.Session.
func (s *Session) SetEventHandler(h transport.EventHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Session) eventHandler() transport.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// Connect implements transport.Session. An unpaired device starts the QR
// pairing flow.
func (s *Session) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		return s.client.Connect()
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return err
	}
	go s.pair(ctx, qrChan)
	return nil
}

// Disconnect implements transport.Session.
func (s *Session) Disconnect() {
	s.client.Disconnect()
}

// ResolveGroupName implements transport.Session.
func (s *Session) ResolveGroupName(ctx context.Context, groupID string) (string, error) {
	info, err := s.client.GetGroupInfo(ctx, types.NewJID(groupID, types.GroupServer))
	if err != nil {
		return "", fmt.Errorf("failed to get group info: %w", err)
	}
	return info.Name, nil
}

// DownloadMedia implements transport.Session.
func (s *Session) DownloadMedia(ctx context.Context, ref *transport.MediaRef) ([]byte, error) {
	img, ok := ref.Handle.(*waE2E.ImageMessage)
	if !ok {
		return nil, fmt.Errorf("unsupported media handle %T", ref.Handle)
	}
	data, err := s.client.Download(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, nil
}

// PersistCredentials implements transport.Session.
func (s *Session) PersistCredentials(ctx context.Context) error {
	if s.client.Store.ID == nil {
		return nil
	}
	return s.client.Store.Save(ctx)
}

func (s *Session) handleEvent(evt any) {
	h := s.eventHandler()
	if h == nil {
		return
	}

	switch v := evt.(type) {
	case *events.Message:
		h.HandleMessage(convertMessage(v))
	case *events.Connected:
		h.HandleConnected()
		h.HandleCredentialsUpdated()
	case *events.PairSuccess:
		log.Info().Str("jid", v.ID.String()).Str("platform", v.Platform).Msg("device paired")
		go s.notify(alert.PairedMessage(v.ID.User))
		h.HandleCredentialsUpdated()
	default:
		if reason, ok := disconnectReason(evt); ok {
			log.Warn().Str("reason", string(reason)).Str("event", fmt.Sprintf("%T", evt)).Msg("whatsapp session interrupted")
			h.HandleDisconnected(reason)
		}
	}
}

// pair publishes pairing codes until the device is linked or the codes run
// out.
func (s *Session) pair(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			if err := s.publishQR(ctx, item.Code); err != nil {
				log.Error().Err(err).Msg("failed to publish pairing code")
			}
		case whatsmeow.QRChannelSuccess.Event:
			log.Info().Msg("pairing complete")
		case whatsmeow.QRChannelTimeout.Event:
			log.Warn().Msg("pairing timed out")
			if h := s.eventHandler(); h != nil {
				h.HandleDisconnected(transport.ReasonTimedOut)
			}
		case whatsmeow.QRChannelEventError:
			log.Error().Err(item.Error).Msg("pairing failed")
		default:
			log.Warn().Str("event", item.Event).Msg("pairing ended")
		}
	}
}

func (s *Session) publishQR(ctx context.Context, code string) error {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return fmt.Errorf("failed to encode QR code: %w", err)
	}
	if s.qrPath != "" {
		if err := os.WriteFile(s.qrPath, png, 0600); err != nil {
			return fmt.Errorf("failed to write QR code: %w", err)
		}
		log.Info().Str("path", s.qrPath).Msg("pairing code written")
	}

	if s.alerter != nil {
		if err := s.alerter.NotifyImage(ctx, alert.PairingCaption(s.qrPath), png); err != nil {
			log.Warn().Err(err).Msg("failed to send pairing code")
		}
	}
	return nil
}

func (s *Session) notify(text string) {
	if s.alerter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.alerter.Notify(ctx, text); err != nil {
		log.Warn().Err(err).Msg("failed to send operator alert")
	}
}
