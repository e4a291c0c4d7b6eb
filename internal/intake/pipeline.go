// Package intake turns raw channel signals into classified, persisted
// events with topic and memory side effects.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/KofiRusu/neonhub-go/internal/classify"
	"github.com/KofiRusu/neonhub-go/internal/identity"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

// DefaultChannel absorbs unrecognized channel names.
const DefaultChannel = "email"

const (
	defaultTopicWeight = 0.6
	summaryJSONLimit   = 400
)

// ErrMissingOrg is returned for raw events without an organization.
var ErrMissingOrg = errors.New("intake: organizationId is required")

var knownChannels = map[string]bool{
	"email": true, "sms": true, "dm": true, "post": true, "site": true,
	"whatsapp": true, "instagram": true, "facebook": true, "x": true,
	"reddit": true, "tiktok": true, "youtube": true, "linkedin": true,
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// RawEvent is an inbound signal before normalization. PersonID may be
// pre-resolved by the caller; otherwise the pipeline resolves it from
// the contact fields.
type RawEvent struct {
	OrgID      string         `json:"organizationId"`
	PersonID   string         `json:"personId,omitempty"`
	Email      string         `json:"email,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	Handle     string         `json:"handle,omitempty"`
	Channel    string         `json:"channel"`
	Type       string         `json:"type"`
	Source     string         `json:"source,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt string         `json:"occurredAt,omitempty"`
}

// Embedder produces a vector for a memory summary. Optional; a nil
// embedder just means memory records carry no vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Pipeline struct {
	engine   *store.Engine
	resolver *identity.Resolver
	embedder Embedder
	now      func() time.Time
}

func NewPipeline(engine *store.Engine, resolver *identity.Resolver, embedder Embedder) *Pipeline {
	return &Pipeline{
		engine:   engine,
		resolver: resolver,
		embedder: embedder,
		now:      time.Now,
	}
}

// Ingest normalizes, classifies and persists a raw event, then updates
// the person's topic weights and writes a memory snippet. The memory
// write is advisory: its failure is logged and never fails the ingest.
func (p *Pipeline) Ingest(ctx context.Context, raw RawEvent) error {
	normalized, err := p.normalize(ctx, raw)
	if err != nil {
		return err
	}

	cls := classify.Classify(normalized.Channel, normalized.Type)

	metadata := map[string]any{}
	for k, v := range normalized.Metadata {
		metadata[k] = v
	}
	metadata["classification"] = cls
	normalized.Metadata = metadata
	normalized.Topic = cls.Topic
	normalized.Intent = cls.Intent
	normalized.Sentiment = cls.Sentiment

	eventID, err := p.engine.InsertEvent(normalized)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if cls.Topic != "" {
		weight := cls.Confidence
		if weight == 0 {
			weight = defaultTopicWeight
		}
		if err := p.engine.UpsertTopic(normalized.PersonID, normalized.OrgID, cls.Topic, weight); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
	}

	p.writeMemory(ctx, normalized, eventID, cls)
	return nil
}

// AddNote records free-form operator text against a person as a
// support memory, with a best-effort embedding.
func (p *Pipeline) AddNote(ctx context.Context, personID, note string) (string, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return "", errors.New("intake: note text is required")
	}

	person, err := p.engine.GetPerson(personID)
	if err != nil {
		return "", fmt.Errorf("add note: %w", err)
	}

	rec := &store.MemoryRecord{
		OrgID:    person.OrgID,
		PersonID: person.ID,
		Label:    "note",
		Summary:  note,
		Metadata: map[string]any{"category": "support"},
	}
	if p.embedder != nil {
		if vec, err := p.embedder.Embed(ctx, note); err != nil {
			log.Printf("[intake] embedding skipped: %v", err)
		} else {
			rec.Embedding = vec
		}
	}

	id, err := p.engine.AppendMemory(rec)
	if err != nil {
		return "", fmt.Errorf("add note: %w", err)
	}
	return id, nil
}

// normalize validates the raw event, canonicalizes channel and type,
// fills occurredAt, and resolves the person.
func (p *Pipeline) normalize(ctx context.Context, raw RawEvent) (*store.Event, error) {
	if strings.TrimSpace(raw.OrgID) == "" {
		return nil, ErrMissingOrg
	}

	channel := strings.ToLower(strings.TrimSpace(raw.Channel))
	if !knownChannels[channel] {
		channel = DefaultChannel
	}
	eventType := strings.ToLower(whitespaceRE.ReplaceAllString(strings.TrimSpace(raw.Type), "_"))

	personID := raw.PersonID
	if personID == "" {
		var traits map[string]any
		if len(raw.Metadata) > 0 {
			traits = raw.Metadata
		}
		resolved, err := p.resolver.Resolve(ctx, identity.Descriptor{
			OrgID:  raw.OrgID,
			Email:  raw.Email,
			Phone:  raw.Phone,
			Handle: raw.Handle,
			Traits: traits,
		})
		if err != nil {
			return nil, fmt.Errorf("normalize: %w", err)
		}
		personID = resolved
	}

	return &store.Event{
		OrgID:      raw.OrgID,
		PersonID:   personID,
		Channel:    channel,
		Type:       eventType,
		Source:     raw.Source,
		Payload:    raw.Payload,
		Metadata:   raw.Metadata,
		OccurredAt: p.parseOccurredAt(raw.OccurredAt),
	}, nil
}

// parseOccurredAt accepts RFC 3339 timestamps; anything absent or
// unparseable falls back to now.
func (p *Pipeline) parseOccurredAt(raw string) time.Time {
	if raw == "" {
		return p.now().UTC()
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC()
	}
	return p.now().UTC()
}

// writeMemory stores a human-readable event summary as a memory
// record, with a best-effort embedding. Failures here never propagate.
func (p *Pipeline) writeMemory(ctx context.Context, ev *store.Event, eventID string, cls classify.Classification) {
	summary := summarizeEvent(ev, cls)

	rec := &store.MemoryRecord{
		OrgID:         ev.OrgID,
		PersonID:      ev.PersonID,
		Label:         ev.Channel + ":" + ev.Type,
		Summary:       summary,
		SourceEventID: eventID,
		Metadata: map[string]any{
			"classification": cls,
			"summary":        summary,
			"eventId":        eventID,
		},
	}
	if cls.Intent != "" {
		rec.Metadata["category"] = cls.Intent
	}

	if p.embedder != nil {
		if vec, err := p.embedder.Embed(ctx, summary); err != nil {
			log.Printf("[intake] embedding skipped: %v", err)
		} else {
			rec.Embedding = vec
		}
	}

	if _, err := p.engine.AppendMemory(rec); err != nil {
		log.Printf("[intake] memory write failed, record skipped: %v", err)
	}
}

func summarizeEvent(ev *store.Event, cls classify.Classification) string {
	lines := []string{
		"Channel: " + ev.Channel,
		"Type: " + ev.Type,
	}
	if cls.Intent != "" {
		lines = append(lines, "Intent: "+cls.Intent)
	}
	if cls.Topic != "" {
		lines = append(lines, "Topic: "+cls.Topic)
	}
	if cls.Sentiment != "" {
		lines = append(lines, "Sentiment: "+cls.Sentiment)
	}
	lines = append(lines,
		"Payload: "+truncateJSON(ev.Payload),
		"Metadata: "+truncateJSON(ev.Metadata),
	)
	return strings.Join(lines, "\n")
}

func truncateJSON(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	s := string(data)
	if len(s) > summaryJSONLimit {
		s = s[:summaryJSONLimit]
	}
	return s
}
