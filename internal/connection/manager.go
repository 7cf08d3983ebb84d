package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raine/tradefeed/internal/transport"
	"github.com/rs/zerolog/log"
)

const DefaultMaxRetries = 5

const alertTimeout = 10 * time.Second

var (
	ErrRetriesExhausted  = errors.New("reconnection retries exhausted")
	ErrSessionTerminated = errors.New("session terminated, re-authentication required")
)

// State is the lifecycle position of the session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Connector is the part of a transport session the manager drives.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect()
	PersistCredentials(ctx context.Context) error
}

// Alerter delivers operator-facing messages.
type Alerter interface {
	Notify(ctx context.Context, text string) error
}

// Manager owns the session lifecycle: it connects, classifies disconnects
// through a Policy, schedules at most one reconnect at a time and gives up
// after maxRetries consecutive attempts without reaching Connected.
type Manager struct {
	session    Connector
	alerter    Alerter
	policy     Policy
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	ctx          context.Context
	state        State
	retries      int
	reconnecting bool
	terminated   bool
	fatal        chan error
}

// NewManager creates a manager with DefaultPolicy. alerter may be nil.
func NewManager(session Connector, alerter Alerter) *Manager {
	return &Manager{
		session:    session,
		alerter:    alerter,
		policy:     DefaultPolicy,
		maxRetries: DefaultMaxRetries,
		sleep:      sleepContext,
		ctx:        context.Background(),
		fatal:      make(chan error, 1),
	}
}

// WithPolicy replaces the disconnect policy.
func (m *Manager) WithPolicy(p Policy) *Manager {
	m.policy = p
	return m
}

// WithMaxRetries sets the reconnect cap.
func (m *Manager) WithMaxRetries(n int) *Manager {
	m.maxRetries = n
	return m
}

// WithSleep replaces the delay function used before reconnecting.
func (m *Manager) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Manager {
	m.sleep = sleep
	return m
}

// Run starts the session and blocks until ctx is done or the retry cap is
// exhausted. Only the latter is returned as an error.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if err := m.Start(ctx); err != nil {
		if errors.Is(err, ErrRetriesExhausted) {
			return err
		}
		log.Warn().Err(err).Msg("initial connect failed")
		m.HandleDisconnected(transport.ReasonUnknown)
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("stopping connection manager")
		m.session.Disconnect()
		return nil
	case err := <-m.fatal:
		m.session.Disconnect()
		return err
	}
}

// Start attempts to initialize the session. It is refused once the retry
// counter has reached the cap. An explicit Start clears a previous terminal
// disconnect.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.terminated = false
	m.mu.Unlock()
	return m.attempt(ctx, false)
}

func (m *Manager) attempt(ctx context.Context, isRetry bool) error {
	m.mu.Lock()
	if isRetry {
		// Disconnects during the dial must schedule a new reconnect.
		m.reconnecting = false
	}
	if m.terminated {
		m.mu.Unlock()
		log.Info().Msg("session terminated, not reconnecting")
		return ErrSessionTerminated
	}
	if m.retries >= m.maxRetries {
		retries := m.retries
		m.mu.Unlock()
		m.fail(ctx, retries)
		return ErrRetriesExhausted
	}
	if isRetry {
		m.retries++
	}
	attempt := m.retries
	m.state = StateConnecting
	m.mu.Unlock()

	if isRetry {
		m.session.Disconnect()
	}

	log.Info().Int("attempt", attempt).Msg("connecting session")
	if err := m.session.Connect(ctx); err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// HandleConnected marks the session live and resets the retry counter.
func (m *Manager) HandleConnected() {
	m.mu.Lock()
	m.state = StateConnected
	m.retries = 0
	m.terminated = false
	m.mu.Unlock()

	log.Info().Msg("session connected")
}

// HandleDisconnected applies the policy for reason. A terminal reason stops
// all reconnection, including one already waiting out its delay, until the
// next Start or Connected.
func (m *Manager) HandleDisconnected(reason transport.DisconnectReason) {
	action := m.policy.Action(reason)

	m.mu.Lock()
	m.state = StateDisconnected
	ctx := m.ctx

	if m.terminated {
		m.mu.Unlock()
		log.Debug().Str("reason", string(reason)).Msg("session terminated, ignoring disconnect")
		return
	}

	if action.Terminal {
		m.terminated = true
		m.mu.Unlock()
		log.Error().Str("reason", string(reason)).Msg("session ended, manual re-authentication required")
		// Called from the transport's event goroutine
		go m.alert(ctx, fmt.Sprintf("WhatsApp session ended (%s). Re-pair the device and restart the service.", reason))
		return
	}

	if m.reconnecting {
		m.mu.Unlock()
		log.Debug().Str("reason", string(reason)).Msg("reconnect already in flight")
		return
	}
	m.reconnecting = true
	m.mu.Unlock()

	log.Warn().
		Str("reason", string(reason)).
		Dur("delay", action.Delay).
		Msg("session disconnected, scheduling reconnect")

	go m.reconnect(ctx, action.Delay)
}

func (m *Manager) reconnect(ctx context.Context, delay time.Duration) {
	if err := m.sleep(ctx, delay); err != nil {
		m.mu.Lock()
		m.reconnecting = false
		m.mu.Unlock()
		return
	}

	err := m.attempt(ctx, true)
	if err == nil || ctx.Err() != nil || errors.Is(err, ErrRetriesExhausted) || errors.Is(err, ErrSessionTerminated) {
		return
	}

	log.Warn().Err(err).Msg("reconnect attempt failed")
	m.HandleDisconnected(transport.ReasonUnknown)
}

// HandleCredentialsUpdated persists rotated session credentials.
func (m *Manager) HandleCredentialsUpdated() {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()

	if err := m.session.PersistCredentials(ctx); err != nil {
		log.Error().Err(err).Msg("failed to persist session credentials")
		return
	}
	log.Debug().Msg("session credentials persisted")
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retries returns the number of reconnect attempts since the last Connected.
func (m *Manager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) fail(ctx context.Context, retries int) {
	log.Error().Int("retries", retries).Msg("reconnection retries exhausted, giving up")
	m.alert(ctx, fmt.Sprintf("WhatsApp reconnection failed %d times in a row. The service is stopping.", retries))

	select {
	case m.fatal <- ErrRetriesExhausted:
	default:
	}
}

func (m *Manager) alert(ctx context.Context, text string) {
	if m.alerter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := m.alerter.Notify(ctx, text); err != nil {
		log.Warn().Err(err).Msg("failed to send operator alert")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
