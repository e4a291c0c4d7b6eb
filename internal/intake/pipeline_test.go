package intake

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KofiRusu/neonhub-go/internal/identity"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

func testPipeline(t *testing.T, embedder Embedder) (*Pipeline, *store.Engine) {
	t.Helper()
	engine, err := store.NewEngine(filepath.Join(t.TempDir(), "neonhub.db"))
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return NewPipeline(engine, identity.NewResolver(engine), embedder), engine
}

func TestIngestRequiresOrganization(t *testing.T) {
	p, _ := testPipeline(t, nil)

	err := p.Ingest(context.Background(), RawEvent{Channel: "email", Type: "click", Email: "a@b.com"})
	if !errors.Is(err, ErrMissingOrg) {
		t.Fatalf("expected ErrMissingOrg, got %v", err)
	}
}

func TestIngestEndToEnd(t *testing.T) {
	p, engine := testPipeline(t, nil)
	ctx := context.Background()

	err := p.Ingest(ctx, RawEvent{
		OrgID:      "org-1",
		Email:      "ada@example.org",
		Channel:    "email",
		Type:       "click",
		Source:     "campaign-7",
		Payload:    map[string]any{"url": "https://example.org/pricing"},
		OccurredAt: "2026-04-01T09:30:00Z",
	})
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}

	// The person was resolved from the email.
	r := identity.NewResolver(engine)
	personID, err := r.Resolve(ctx, identity.Descriptor{OrgID: "org-1", Email: "ada@example.org", SkipCreate: true})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	events, err := engine.ListEvents(personID, 10)
	if err != nil {
		t.Fatalf("ListEvents error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Intent != "engagement" || ev.Topic != "conversion" || ev.Sentiment != "positive" {
		t.Fatalf("unexpected classification on event: %+v", ev)
	}
	if ev.Metadata["classification"] == nil {
		t.Fatal("expected classification stamped into metadata")
	}
	if !ev.OccurredAt.Equal(time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("occurred_at mismatch: %v", ev.OccurredAt)
	}

	topics, err := engine.TopTopics(personID, 5)
	if err != nil {
		t.Fatalf("TopTopics error: %v", err)
	}
	if len(topics) != 1 || topics[0].Name != "conversion" || topics[0].Weight != 0.8 {
		t.Fatalf("expected conversion topic at 0.8, got %+v", topics)
	}

	memories, err := engine.ListMemories(personID, store.MemoryQuery{})
	if err != nil {
		t.Fatalf("ListMemories error: %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("expected 1 memory record, got %d", len(memories))
	}
	if memories[0].Label != "email:click" {
		t.Fatalf("unexpected memory label %q", memories[0].Label)
	}
	if !strings.Contains(memories[0].Summary, "Channel: email") {
		t.Fatalf("unexpected summary %q", memories[0].Summary)
	}
	if memories[0].SourceEventID != ev.ID {
		t.Fatalf("memory not linked to event: %q vs %q", memories[0].SourceEventID, ev.ID)
	}
}

func TestIngestNormalization(t *testing.T) {
	p, engine := testPipeline(t, nil)
	ctx := context.Background()

	err := p.Ingest(ctx, RawEvent{
		OrgID:   "org-1",
		Email:   "ada@example.org",
		Channel: "CarrierPigeon",
		Type:    "  Added To Cart ",
	})
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}

	r := identity.NewResolver(engine)
	personID, _ := r.Resolve(ctx, identity.Descriptor{OrgID: "org-1", Email: "ada@example.org", SkipCreate: true})
	events, _ := engine.ListEvents(personID, 10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Channel != DefaultChannel {
		t.Fatalf("expected unknown channel mapped to %q, got %q", DefaultChannel, events[0].Channel)
	}
	if events[0].Type != "added_to_cart" {
		t.Fatalf("expected slugified type, got %q", events[0].Type)
	}
}

func TestIngestFallsBackToNowOnBadTimestamp(t *testing.T) {
	p, engine := testPipeline(t, nil)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.Ingest(context.Background(), RawEvent{
		OrgID: "org-1", Email: "a@b.com", Channel: "email", Type: "open", OccurredAt: "yesterday-ish",
	})
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}

	r := identity.NewResolver(engine)
	personID, _ := r.Resolve(context.Background(), identity.Descriptor{OrgID: "org-1", Email: "a@b.com", SkipCreate: true})
	events, _ := engine.ListEvents(personID, 10)
	if !events[0].OccurredAt.Equal(fixed) {
		t.Fatalf("expected now fallback %v, got %v", fixed, events[0].OccurredAt)
	}
}

func TestIngestUsesPreResolvedPerson(t *testing.T) {
	p, engine := testPipeline(t, nil)
	ctx := context.Background()

	r := identity.NewResolver(engine)
	personID, err := r.Resolve(ctx, identity.Descriptor{OrgID: "org-1", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	if err := p.Ingest(ctx, RawEvent{OrgID: "org-1", PersonID: personID, Channel: "sms", Type: "reply"}); err != nil {
		t.Fatalf("Ingest error: %v", err)
	}

	events, _ := engine.ListEvents(personID, 10)
	if len(events) != 1 || events[0].Channel != "sms" {
		t.Fatalf("expected sms event on the given person, got %+v", events)
	}
}

func TestIngestEmbedsMemories(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1, 0, 0}}
	p, engine := testPipeline(t, emb)
	ctx := context.Background()

	if err := p.Ingest(ctx, RawEvent{OrgID: "org-1", Email: "a@b.com", Channel: "email", Type: "click"}); err != nil {
		t.Fatalf("Ingest error: %v", err)
	}
	if emb.calls != 1 {
		t.Fatalf("expected one embed call, got %d", emb.calls)
	}

	r := identity.NewResolver(engine)
	personID, _ := r.Resolve(ctx, identity.Descriptor{OrgID: "org-1", Email: "a@b.com", SkipCreate: true})

	results, err := engine.SearchMemories(personID, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("SearchMemories error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the embedded memory to be searchable, got %d", len(results))
	}
}

func TestIngestSurvivesEmbedderFailure(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("provider down")}
	p, engine := testPipeline(t, emb)
	ctx := context.Background()

	if err := p.Ingest(ctx, RawEvent{OrgID: "org-1", Email: "a@b.com", Channel: "email", Type: "click"}); err != nil {
		t.Fatalf("Ingest must tolerate embedding failure: %v", err)
	}

	r := identity.NewResolver(engine)
	personID, _ := r.Resolve(ctx, identity.Descriptor{OrgID: "org-1", Email: "a@b.com", SkipCreate: true})
	memories, _ := engine.ListMemories(personID, store.MemoryQuery{})
	if len(memories) != 1 {
		t.Fatalf("expected memory written without vector, got %d", len(memories))
	}
}

func TestAddNote(t *testing.T) {
	p, engine := testPipeline(t, nil)
	ctx := context.Background()

	personID, err := p.resolver.Resolve(ctx, identity.Descriptor{OrgID: "org-1", Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	id, err := p.AddNote(ctx, personID, "prefers quarterly billing")
	if err != nil {
		t.Fatalf("AddNote error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a memory id")
	}

	memories, err := engine.ListMemories(personID, store.MemoryQuery{})
	if err != nil {
		t.Fatalf("ListMemories error: %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(memories))
	}
	if memories[0].Label != "note" || memories[0].Summary != "prefers quarterly billing" {
		t.Fatalf("unexpected note record: %+v", memories[0])
	}
	if memories[0].Metadata["category"] != "support" {
		t.Fatalf("expected support category, got %v", memories[0].Metadata)
	}
}

func TestAddNoteValidation(t *testing.T) {
	p, _ := testPipeline(t, nil)
	ctx := context.Background()

	if _, err := p.AddNote(ctx, "ghost", "hello"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown person, got %v", err)
	}
	personID, _ := p.resolver.Resolve(ctx, identity.Descriptor{OrgID: "org-1", Email: "a@b.com"})
	if _, err := p.AddNote(ctx, personID, "   "); err == nil {
		t.Fatal("expected error for blank note")
	}
}
