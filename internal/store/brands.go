package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// GetBrandVoice returns the brand's voice row, or ErrNotFound when the
// brand has no voice on file.
func (e *Engine) GetBrandVoice(brandID string) (*BrandVoice, error) {
	var bv BrandVoice
	var style, metrics string
	err := e.db.QueryRow(
		`SELECT id, brand_id, prompt_template, COALESCE(style_rules, '{}'), COALESCE(metrics, '{}')
		 FROM brand_voices WHERE brand_id = ? LIMIT 1`,
		brandID,
	).Scan(&bv.ID, &bv.BrandID, &bv.PromptTemplate, &style, &metrics)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("brand voice %s: %w", brandID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get brand voice: %w", err)
	}
	bv.StyleRules = decodeJSON(style)
	bv.Metrics = decodeJSON(metrics)
	return &bv, nil
}

// SaveBrandVoice upserts the voice row for a brand.
func (e *Engine) SaveBrandVoice(bv *BrandVoice) error {
	if bv.ID == "" {
		bv.ID = uuid.NewString()
	}
	_, err := e.db.Exec(
		`INSERT INTO brand_voices (id, brand_id, prompt_template, style_rules, metrics)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET prompt_template = excluded.prompt_template,
			style_rules = excluded.style_rules, metrics = excluded.metrics`,
		bv.ID, bv.BrandID, bv.PromptTemplate, encodeJSON(bv.StyleRules), encodeJSON(bv.Metrics),
	)
	if err != nil {
		return fmt.Errorf("save brand voice: %w", err)
	}
	return nil
}

// TopSnippets returns a brand/channel's best historical snippets,
// ranked by win rate then usage count.
func (e *Engine) TopSnippets(brandID, channel string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := e.db.Query(
		`SELECT id, brand_id, channel, name, content, win_rate, usage_count
		 FROM snippets WHERE brand_id = ? AND channel = ?
		 ORDER BY win_rate DESC, usage_count DESC LIMIT ?`,
		brandID, channel, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top snippets: %w", err)
	}
	defer rows.Close()

	var out []Snippet
	for rows.Next() {
		var s Snippet
		if err := rows.Scan(&s.ID, &s.BrandID, &s.Channel, &s.Name, &s.Content, &s.WinRate, &s.UsageCount); err != nil {
			return nil, fmt.Errorf("scan snippet: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveSnippet inserts a snippet into the library.
func (e *Engine) SaveSnippet(s *Snippet) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := e.db.Exec(
		`INSERT INTO snippets (id, brand_id, channel, name, content, win_rate, usage_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content = excluded.content,
			win_rate = excluded.win_rate, usage_count = excluded.usage_count`,
		s.ID, s.BrandID, s.Channel, s.Name, s.Content, s.WinRate, s.UsageCount,
	)
	if err != nil {
		return fmt.Errorf("save snippet: %w", err)
	}
	return nil
}

// GetConsent returns a person's consent status for a channel. The
// newest row wins; no row at all reads as empty, which callers treat
// the same as granted for backward compatibility with pre-consent
// records.
func (e *Engine) GetConsent(personID, channel string) (string, error) {
	var status string
	err := e.db.QueryRow(
		`SELECT status FROM consents WHERE person_id = ? AND channel = ?
		 ORDER BY updated_at DESC, rowid DESC LIMIT 1`,
		personID, channel,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get consent: %w", err)
	}
	return status, nil
}

// SetConsent records a consent status for a person/channel.
func (e *Engine) SetConsent(personID, channel, status string) error {
	_, err := e.db.Exec(
		`INSERT INTO consents (id, person_id, channel, status, updated_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), personID, channel, status, nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("set consent: %w", err)
	}
	return nil
}
