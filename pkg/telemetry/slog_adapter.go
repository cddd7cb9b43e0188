package telemetry

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at a level chosen by whether it
// represents a failure.
func (a *SlogAdapter) Log(event Event) {
	attrs := make([]slog.Attr, 0, 10)
	attrs = append(attrs, slog.String("category", event.Category.String()))

	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}
	if event.PointID != 0 {
		attrs = append(attrs, slog.Int64("point_id", event.PointID))
	}
	if event.RuleID != 0 {
		attrs = append(attrs, slog.Int64("rule_id", event.RuleID))
	}
	if event.VirtualPointID != 0 {
		attrs = append(attrs, slog.Int64("virtual_point_id", event.VirtualPointID))
	}
	if event.Attempt != 0 {
		attrs = append(attrs, slog.Int("attempt", event.Attempt))
	}
	if event.Delay != 0 {
		attrs = append(attrs, slog.Duration("delay", event.Delay))
	}
	if event.OldState != "" || event.NewState != "" {
		attrs = append(attrs, slog.String("old_state", event.OldState), slog.String("new_state", event.NewState))
	}
	if event.Count != 0 {
		attrs = append(attrs, slog.Int("count", event.Count))
	}

	level := slog.LevelInfo
	if event.Err != nil {
		attrs = append(attrs, slog.String("error", event.Err.Error()))
		level = slog.LevelWarn
	}

	msg := event.Message
	if msg == "" {
		msg = event.Category.String()
	}

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
