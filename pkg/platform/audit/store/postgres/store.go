package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "whitelist/pkg/platform/audit"
)

// Store implements audit.Sink on the audit_events table. It is used when the
// registry itself lives in PostgreSQL and no Kafka brokers are configured.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event. Re-delivery of the same event ID is ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, action, subject, reason,
			request_id, client_ip, user_agent, member_count, capacity
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		eventID,
		string(category),
		event.Timestamp,
		event.Action,
		event.Subject,
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.UserAgent,
		event.Count,
		event.Capacity,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns events recorded for one identity, newest first.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, action, subject, reason,
			   request_id, client_ip, user_agent, member_count, capacity
		FROM audit_events
		WHERE subject = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, action, subject, reason,
			   request_id, client_ip, user_agent, member_count, capacity
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			category string
		)
		if err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&event.Action,
			&event.Subject,
			&event.Reason,
			&event.RequestID,
			&event.ClientIP,
			&event.UserAgent,
			&event.Count,
			&event.Capacity,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
