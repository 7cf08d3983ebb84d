package whatsapp

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// zerologLogger routes whatsmeow's logging into the global zerolog logger.
type zerologLogger struct {
	log zerolog.Logger
}

func newLogger(module string) waLog.Logger {
	return &zerologLogger{log: log.With().Str("module", module).Logger()}
}

func (l *zerologLogger) Errorf(msg string, args ...any) { l.log.Error().Msgf(msg, args...) }
func (l *zerologLogger) Warnf(msg string, args ...any)  { l.log.Warn().Msgf(msg, args...) }
func (l *zerologLogger) Infof(msg string, args ...any)  { l.log.Info().Msgf(msg, args...) }

// whatsmeow's debug output is per-frame, so it goes to trace.
func (l *zerologLogger) Debugf(msg string, args ...any) { l.log.Trace().Msgf(msg, args...) }

func (l *zerologLogger) Sub(module string) waLog.Logger {
	return &zerologLogger{log: l.log.With().Str("submodule", module).Logger()}
}
