package store

import (
	"testing"
	"time"
)

func TestInsertAndListEvents(t *testing.T) {
	e := testEngine(t)
	personID := createTestPerson(t, e, "org-1", "a@b.com", "", "")

	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(2 * time.Hour)

	for _, ev := range []*Event{
		{OrgID: "org-1", PersonID: personID, Channel: "email", Type: "open", OccurredAt: older,
			Payload: map[string]any{"campaign": "spring"}},
		{OrgID: "org-1", PersonID: personID, Channel: "email", Type: "click", OccurredAt: newer,
			Metadata: map[string]any{"url": "https://example.org"}},
	} {
		if _, err := e.InsertEvent(ev); err != nil {
			t.Fatalf("InsertEvent error: %v", err)
		}
	}

	events, err := e.ListEvents(personID, 10)
	if err != nil {
		t.Fatalf("ListEvents error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != "click" {
		t.Fatalf("expected newest event first, got %q", events[0].Type)
	}
	if !events[0].OccurredAt.Equal(newer) {
		t.Fatalf("occurred_at mismatch: %v", events[0].OccurredAt)
	}
	if events[1].Payload["campaign"] != "spring" {
		t.Fatalf("payload lost on roundtrip: %v", events[1].Payload)
	}
}

func TestUpsertTopic(t *testing.T) {
	e := testEngine(t)
	personID := createTestPerson(t, e, "org-1", "a@b.com", "", "")

	t.Run("clamps weight and lower-cases name", func(t *testing.T) {
		if err := e.UpsertTopic(personID, "org-1", "Conversion", 1.7); err != nil {
			t.Fatalf("UpsertTopic error: %v", err)
		}
		topics, err := e.TopTopics(personID, 5)
		if err != nil {
			t.Fatalf("TopTopics error: %v", err)
		}
		if len(topics) != 1 || topics[0].Name != "conversion" {
			t.Fatalf("expected lower-cased topic, got %+v", topics)
		}
		if topics[0].Weight != 1 {
			t.Fatalf("expected weight clamped to 1, got %v", topics[0].Weight)
		}
	})

	t.Run("overwrites on re-upsert", func(t *testing.T) {
		if err := e.UpsertTopic(personID, "org-1", "conversion", 0.4); err != nil {
			t.Fatalf("UpsertTopic error: %v", err)
		}
		topics, _ := e.TopTopics(personID, 5)
		if topics[0].Weight != 0.4 {
			t.Fatalf("expected weight overwritten to 0.4, got %v", topics[0].Weight)
		}
	})
}

func TestTopTopicsOrder(t *testing.T) {
	e := testEngine(t)
	personID := createTestPerson(t, e, "org-1", "a@b.com", "", "")

	for name, weight := range map[string]float64{"nurture": 0.3, "conversion": 0.9, "retention": 0.6} {
		if err := e.UpsertTopic(personID, "org-1", name, weight); err != nil {
			t.Fatalf("UpsertTopic error: %v", err)
		}
	}

	topics, err := e.TopTopics(personID, 2)
	if err != nil {
		t.Fatalf("TopTopics error: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected limit applied, got %d", len(topics))
	}
	if topics[0].Name != "conversion" || topics[1].Name != "retention" {
		t.Fatalf("expected strongest first, got %+v", topics)
	}
}

func TestDecayTopics(t *testing.T) {
	e := testEngine(t)
	personID := createTestPerson(t, e, "org-1", "a@b.com", "", "")

	if err := e.UpsertTopic(personID, "org-1", "conversion", 0.8); err != nil {
		t.Fatalf("UpsertTopic error: %v", err)
	}
	if err := e.UpsertTopic(personID, "org-1", "stale", 0.001); err != nil {
		t.Fatalf("UpsertTopic error: %v", err)
	}

	n, err := e.DecayTopics(0.5)
	if err != nil {
		t.Fatalf("DecayTopics error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows touched, got %d", n)
	}

	topics, _ := e.TopTopics(personID, 5)
	if topics[0].Weight != 0.4 {
		t.Fatalf("expected 0.8*0.5=0.4, got %v", topics[0].Weight)
	}
	if topics[1].Weight != 0 {
		t.Fatalf("expected tiny weight floored to 0, got %v", topics[1].Weight)
	}
}

func TestDecayTopicsRejectsBadFactor(t *testing.T) {
	e := testEngine(t)
	for _, factor := range []float64{0, -0.5, 1.5} {
		if _, err := e.DecayTopics(factor); err == nil {
			t.Fatalf("expected error for factor %v", factor)
		}
	}
}
