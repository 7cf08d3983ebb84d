package connection

import (
	"time"

	"github.com/raine/tradefeed/internal/transport"
)

// Action is what the manager does after a disconnect.
type Action struct {
	Terminal bool
	Delay    time.Duration
}

// Terminal stops reconnecting until an operator intervenes.
var Terminal = Action{Terminal: true}

// RetryAfter reconnects once the delay has passed.
func RetryAfter(d time.Duration) Action {
	return Action{Delay: d}
}

// Policy maps a disconnect reason to an action.
type Policy map[transport.DisconnectReason]Action

// DefaultPolicy reconnects quickly after transient blips, backs off longer
// after timeouts and gives up when the session is no longer ours.
var DefaultPolicy = Policy{
	transport.ReasonLoggedOut:          Terminal,
	transport.ReasonConnectionReplaced: Terminal,
	transport.ReasonRestartRequired:    RetryAfter(2 * time.Second),
	transport.ReasonConnectionLost:     RetryAfter(3 * time.Second),
	transport.ReasonConnectionClosed:   RetryAfter(5 * time.Second),
	transport.ReasonUnknown:            RetryAfter(10 * time.Second),
	transport.ReasonTimedOut:           RetryAfter(20 * time.Second),
}

const fallbackDelay = 15 * time.Second

// Action returns the configured action for reason. Reasons missing from the
// table are handled like ReasonUnknown.
func (p Policy) Action(reason transport.DisconnectReason) Action {
	if a, ok := p[reason]; ok {
		return a
	}
	if a, ok := p[transport.ReasonUnknown]; ok {
		return a
	}
	return RetryAfter(fallbackDelay)
}
