package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendMemory stores a semantic snippet for a person. Records are
// append-only; nothing in this core updates them in place.
func (e *Engine) AppendMemory(rec *MemoryRecord) (string, error) {
	id := uuid.NewString()

	var embedding []byte
	if len(rec.Embedding) > 0 {
		blob, err := EncodeVector(rec.Embedding)
		if err != nil {
			return "", fmt.Errorf("append memory: %w", err)
		}
		embedding = blob
	}

	var expires any
	if rec.ExpiresAt != nil {
		expires = rec.ExpiresAt.UTC().Format(time.RFC3339)
	}

	// created_at is written in RFC 3339 so the Since filter can compare
	// against it directly; the sqlite datetime() default uses a space
	// separator that never matches an RFC 3339 bound.
	_, err := e.db.Exec(
		`INSERT INTO memories (id, org_id, person_id, label, summary, metadata, embedding, source_event_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.OrgID, rec.PersonID, nullable(rec.Label), rec.Summary,
		encodeJSON(rec.Metadata), embedding, nullable(rec.SourceEventID), expires,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("append memory: %w", err)
	}
	return id, nil
}

// ListMemories returns a person's memory records, newest first, with
// optional since/limit filters. Vectors are decoded only when asked
// for; most readers only want the summaries.
func (e *Engine) ListMemories(personID string, q MemoryQuery) ([]MemoryRecord, error) {
	query := `SELECT id, org_id, person_id, COALESCE(label, ''), summary,
		COALESCE(metadata, '{}'), embedding, COALESCE(source_event_id, ''),
		COALESCE(expires_at, ''), created_at
		FROM memories WHERE person_id = ?`
	args := []any{personID}
	if q.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []MemoryRecord
	for rows.Next() {
		var rec MemoryRecord
		var metadata, expires string
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.OrgID, &rec.PersonID, &rec.Label, &rec.Summary,
			&metadata, &blob, &rec.SourceEventID, &expires, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		rec.Metadata = decodeJSON(metadata)
		if expires != "" {
			if ts, err := time.Parse(time.RFC3339, expires); err == nil {
				rec.ExpiresAt = &ts
			}
		}
		if q.IncludeVectors && len(blob) > 0 {
			if vec, err := DecodeVector(blob); err == nil {
				rec.Embedding = vec
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SearchMemories ranks a person's embedded memories by cosine
// similarity against the query vector. Records without embeddings are
// skipped.
func (e *Engine) SearchMemories(personID string, queryVec []float32, limit int) ([]MemoryRecord, error) {
	records, err := e.ListMemories(personID, MemoryQuery{IncludeVectors: true})
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	type scored struct {
		rec   MemoryRecord
		score float64
	}
	var candidates []scored
	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			continue
		}
		score, err := CosineSimilarity(queryVec, rec.Embedding)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{rec: rec, score: score})
	}

	// Insertion sort; candidate sets are small.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score > candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]MemoryRecord, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.rec)
	}
	return out, nil
}

// PurgeExpiredMemories deletes memory rows whose expiry has passed.
func (e *Engine) PurgeExpiredMemories(now time.Time) (int64, error) {
	res, err := e.db.Exec(
		`DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at < ?`,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("purge memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
