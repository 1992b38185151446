package service

import (
	"context"
	"log/slog"
)

type telemetryStore interface {
	Insert(ctx context.Context, userID *int64, eventType, payload string) error
}

// TelemetryService is intentionally forgiving: client beacons must never see
// an error, so failures are logged and swallowed.
type TelemetryService struct {
	events telemetryStore
	log    *slog.Logger
}

func NewTelemetryService(events telemetryStore, log *slog.Logger) *TelemetryService {
	return &TelemetryService{events: events, log: log}
}

func (s *TelemetryService) Record(ctx context.Context, userID *int64, eventType, payload string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if err := s.events.Insert(ctx, userID, eventType, payload); err != nil {
		s.log.Warn("telemetry insert failed", "event_type", eventType, "err", err)
	}
}
