package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertEvent appends an immutable event row and returns its id.
func (e *Engine) InsertEvent(ev *Event) (string, error) {
	id := uuid.NewString()
	_, err := e.db.Exec(
		`INSERT INTO events (id, org_id, person_id, channel, type, source, topic, intent, sentiment, payload, metadata, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ev.OrgID, ev.PersonID, ev.Channel, ev.Type, nullable(ev.Source),
		nullable(ev.Topic), nullable(ev.Intent), nullable(ev.Sentiment),
		encodeJSON(ev.Payload), encodeJSON(ev.Metadata),
		ev.OccurredAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

// ListEvents returns a person's events, newest occurrence first.
func (e *Engine) ListEvents(personID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := e.db.Query(
		`SELECT id, org_id, person_id, channel, type,
			COALESCE(source, ''), COALESCE(topic, ''), COALESCE(intent, ''), COALESCE(sentiment, ''),
			COALESCE(payload, '{}'), COALESCE(metadata, '{}'), occurred_at, created_at
		 FROM events WHERE person_id = ? ORDER BY occurred_at DESC, rowid DESC LIMIT ?`,
		personID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var payload, metadata, occurred string
		if err := rows.Scan(&ev.ID, &ev.OrgID, &ev.PersonID, &ev.Channel, &ev.Type,
			&ev.Source, &ev.Topic, &ev.Intent, &ev.Sentiment,
			&payload, &metadata, &occurred, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = decodeJSON(payload)
		ev.Metadata = decodeJSON(metadata)
		if ts, err := time.Parse(time.RFC3339, occurred); err == nil {
			ev.OccurredAt = ts
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// UpsertTopic creates or overwrites the topic weight for a person.
// Weights are clamped to [0, 1] and names lower-cased on write.
func (e *Engine) UpsertTopic(personID, orgID, name string, weight float64) error {
	if weight < 0 {
		weight = 0
	} else if weight > 1 {
		weight = 1
	}
	_, err := e.db.Exec(
		`INSERT INTO topics (person_id, org_id, name, weight, updated_at)
		 VALUES (?, ?, lower(?), ?, ?)
		 ON CONFLICT(person_id, name) DO UPDATE SET weight = excluded.weight, updated_at = excluded.updated_at`,
		personID, orgID, name, weight, nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert topic: %w", err)
	}
	return nil
}

// TopTopics returns a person's heaviest topics, strongest first.
func (e *Engine) TopTopics(personID string, limit int) ([]Topic, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := e.db.Query(
		`SELECT person_id, org_id, name, weight, updated_at
		 FROM topics WHERE person_id = ? ORDER BY weight DESC LIMIT ?`,
		personID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top topics: %w", err)
	}
	defer rows.Close()

	var out []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.PersonID, &t.OrgID, &t.Name, &t.Weight, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DecayTopics multiplies every topic weight by factor, flooring tiny
// weights at zero. Used by the retention job.
func (e *Engine) DecayTopics(factor float64) (int64, error) {
	if factor <= 0 || factor > 1 {
		return 0, fmt.Errorf("decay topics: factor %v out of range", factor)
	}
	res, err := e.db.Exec(
		`UPDATE topics SET weight = CASE WHEN weight * ? < 0.001 THEN 0 ELSE weight * ? END, updated_at = ?`,
		factor, factor, nowUTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("decay topics: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
