// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadata

import (
	"context"
	"time"
)

// Event is one lifecycle event recorded against a memory, job, or project —
// e.g. "memory_created", "job_completed" — used for the worker's and
// indexer's audit trail. The events table is created as part of the main
// schema in db.go.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	SubjectID string    `json:"subject_id"`
	Details   string    `json:"details"`
}

// LogEvent records a new lifecycle event.
func (s *Store) LogEvent(ctx context.Context, eventType, subjectID, details string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (timestamp, event_type, subject_id, details) VALUES (?, ?, ?, ?)",
		time.Now(), eventType, subjectID, details,
	)
	return err
}

// RecentEvents returns the last N events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, timestamp, event_type, subject_id, details FROM events ORDER BY timestamp DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsForSubject returns all events recorded against a given subject id
// (memory id, job id, or project id).
func (s *Store) EventsForSubject(ctx context.Context, subjectID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, timestamp, event_type, subject_id, details FROM events WHERE subject_id = ? ORDER BY timestamp DESC",
		subjectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.SubjectID, &e.Details); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
