package repository

import (
	"context"
	"database/sql"
	"fmt"
)

type TelemetryRepository struct {
	db *sql.DB
}

func NewTelemetryRepository(db *sql.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

func (r *TelemetryRepository) Insert(ctx context.Context, userID *int64, eventType, payload string) error {
	const query = `
INSERT INTO telemetry_events (user_id, event_type, payload)
VALUES (?, ?, NULLIF(?, ''))`
	var uid any
	if userID != nil {
		uid = *userID
	}
	if _, err := r.db.ExecContext(ctx, query, uid, eventType, payload); err != nil {
		return fmt.Errorf("insert telemetry event: %w", err)
	}
	return nil
}
