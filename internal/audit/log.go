package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes each record as one structured log line.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Emit(_ context.Context, rec Record) {
	ev := s.log.Info().
		Str("id", rec.ID.String()).
		Str("kind", string(rec.Kind)).
		Str("actor", rec.Actor.Hex()).
		Time("at", rec.At)
	if rec.Before != nil {
		ev = ev.Interface("before", rec.Before)
	}
	if rec.After != nil {
		ev = ev.Interface("after", rec.After)
	}
	for k, v := range rec.Fields {
		ev = ev.Str(k, v)
	}
	ev.Msg("audit record")
}
