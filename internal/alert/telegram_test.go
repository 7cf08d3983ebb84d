package alert

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBot struct {
	mock.Mock
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestNotify(t *testing.T) {
	bot := &mockBot{}
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 42 && msg.Text == "session ended"
	})).Return(tgbotapi.Message{}, nil)

	n := NewTelegramNotifierWithSender(bot, 42)

	require.NoError(t, n.Notify(context.Background(), "session ended"))
	bot.AssertExpectations(t)
}

func TestNotifyImage(t *testing.T) {
	bot := &mockBot{}
	png := []byte{0x89, 'P', 'N', 'G'}
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		photo, ok := c.(tgbotapi.PhotoConfig)
		if !ok {
			return false
		}
		file, ok := photo.File.(tgbotapi.FileBytes)
		return ok && photo.ChatID == 42 && photo.Caption == "scan me" && string(file.Bytes) == string(png)
	})).Return(tgbotapi.Message{}, nil)

	n := NewTelegramNotifierWithSender(bot, 42)

	require.NoError(t, n.NotifyImage(context.Background(), "scan me", png))
	bot.AssertExpectations(t)
}

func TestNotify_SendError(t *testing.T) {
	bot := &mockBot{}
	bot.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user"))

	n := NewTelegramNotifierWithSender(bot, 42)

	err := n.Notify(context.Background(), "hello")
	assert.ErrorContains(t, err, "bot was blocked")
}

func TestNotify_CancelledContext(t *testing.T) {
	bot := &mockBot{}
	n := NewTelegramNotifierWithSender(bot, 42)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, n.Notify(ctx, "hello"), context.Canceled)
	bot.AssertNotCalled(t, "Send", mock.Anything)
}

func TestPairingCaption(t *testing.T) {
	caption := PairingCaption("/var/lib/tradefeed/qr.png")

	assert.True(t, strings.HasPrefix(caption, "WhatsApp needs to be paired."))
	assert.Contains(t, caption, "\n\nOpen WhatsApp")
	assert.True(t, strings.HasSuffix(caption, "written to /var/lib/tradefeed/qr.png."))
}

func TestLogNotifier(t *testing.T) {
	var n Notifier = LogNotifier{}
	assert.NoError(t, n.Notify(context.Background(), "hello"))
	assert.NoError(t, n.NotifyImage(context.Background(), "hello", nil))
}
