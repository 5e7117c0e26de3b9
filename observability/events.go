package observability

import (
	"log/slog"

	"lockyard/core/events"
	"lockyard/core/types"
)

// EventLogger mirrors every emitted ledger event onto the structured log so
// operators can follow program activity without querying the index.
type EventLogger struct {
	log *slog.Logger
}

// NewEventLogger wraps the given logger; a nil logger falls back to the
// process default.
func NewEventLogger(log *slog.Logger) *EventLogger {
	if log == nil {
		log = slog.Default()
	}
	return &EventLogger{log: log}
}

// Emit implements events.Emitter.
func (l *EventLogger) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	payload, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		l.log.Info("ledger event", "type", evt.EventType())
		return
	}
	converted := payload.Event()
	if converted == nil {
		return
	}
	args := make([]any, 0, 2+2*len(converted.Attributes))
	args = append(args, "type", converted.Type)
	for k, v := range converted.Attributes {
		args = append(args, k, v)
	}
	l.log.Info("ledger event", args...)
}
