package log

import (
	"context"
	"log/slog"
)

// SlogAdapter prints protocol events through an slog.Logger, at Warn for
// error events and Debug for the rest.
type SlogAdapter struct {
	logger *slog.Logger
}

var _ Logger = (*SlogAdapter)(nil)

func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(event Event) {
	level := slog.LevelDebug
	if event.Error != nil {
		level = slog.LevelWarn
	}
	if !a.logger.Enabled(context.Background(), level) {
		return
	}
	a.logger.LogAttrs(context.Background(), level, "protocol event", eventAttrs(event)...)
}

func eventAttrs(e Event) []slog.Attr {
	attrs := make([]slog.Attr, 0, 10)
	attrs = append(attrs,
		slog.String("layer", e.Layer.String()),
		slog.String("category", e.Category.String()),
		slog.String("direction", e.Direction.String()),
		slog.String("client_id", e.ClientID),
	)
	if e.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", e.RemoteAddr))
	}
	if e.Topic != "" {
		attrs = append(attrs, slog.String("topic", e.Topic))
	}

	switch {
	case e.Message != nil:
		m := e.Message
		attrs = append(attrs, slog.Group("packet",
			slog.String("type", m.Type),
			slog.Int("payload", m.PayloadSize),
			slog.Bool("retain", m.Retain)))
	case e.Frame != nil:
		f := e.Frame
		attrs = append(attrs, slog.Group("frame",
			slog.Uint64("seq", uint64(f.Sequence)),
			slog.Int("batches", int(f.Batches)),
			slog.Int("size", f.Size)))
	case e.StateChange != nil:
		s := e.StateChange
		group := []any{
			slog.String("entity", s.Entity.String()),
			slog.String("from", s.OldState),
			slog.String("to", s.NewState),
		}
		if s.Reason != "" {
			group = append(group, slog.String("reason", s.Reason))
		}
		attrs = append(attrs, slog.Group("state", group...))
	case e.Error != nil:
		er := e.Error
		group := []any{
			slog.String("layer", er.Layer.String()),
			slog.String("message", er.Message),
		}
		if er.Context != "" {
			group = append(group, slog.String("context", er.Context))
		}
		if er.Code != nil {
			group = append(group, slog.Int("code", *er.Code))
		}
		attrs = append(attrs, slog.Group("error", group...))
	}
	return attrs
}
