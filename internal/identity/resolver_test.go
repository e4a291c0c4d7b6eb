package identity

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/KofiRusu/neonhub-go/internal/store"
)

func testResolver(t *testing.T) (*Resolver, *store.Engine) {
	t.Helper()
	engine, err := store.NewEngine(filepath.Join(t.TempDir(), "neonhub.db"))
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return NewResolver(engine), engine
}

func TestResolveRejectsEmptyDescriptor(t *testing.T) {
	r, _ := testResolver(t)

	_, err := r.Resolve(context.Background(), Descriptor{OrgID: "org-1"})
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestResolveCreatesThenReuses(t *testing.T) {
	r, engine := testResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if first == "" {
		t.Fatal("expected a person id")
	}

	second, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if second != first {
		t.Fatalf("expected idempotent resolve, got %q then %q", first, second)
	}

	n, err := engine.CountIdentities(first)
	if err != nil {
		t.Fatalf("CountIdentities error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a single identity row, got %d", n)
	}
}

func TestResolveIsCaseInsensitiveForEmailAndHandle(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", Email: "Ada@Example.org"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	second, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", Email: "ada@example.ORG"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if first != second {
		t.Fatalf("expected case-insensitive email match, got %q and %q", first, second)
	}
}

func TestResolveScopedByOrganization(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()

	a, err := r.Resolve(ctx, Descriptor{OrgID: "org-a", Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	b, err := r.Resolve(ctx, Descriptor{OrgID: "org-b", Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if a == b {
		t.Fatal("expected separate persons per organization")
	}
}

func TestResolveIdentityPairBeatsExternalID(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()

	byEmail, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	byExternal, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", ExternalID: "crm-77"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if byEmail == byExternal {
		t.Fatal("setup expects two distinct persons")
	}

	// Both identifiers at once: the identity pair wins.
	got, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", Email: "ada@example.org", ExternalID: "crm-77"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got != byEmail {
		t.Fatalf("expected identity-pair precedence, got %q want %q", got, byEmail)
	}
}

func TestResolveIdentityPairBeatsDirectField(t *testing.T) {
	r, engine := testResolver(t)
	ctx := context.Background()

	// A legacy person row carries the email only as a primary field,
	// while a second person holds the same email as a bound identity.
	var legacy, bound string
	err := engine.WithTx(func(tx *sql.Tx) error {
		var err error
		legacy, err = store.CreatePersonTx(tx, "org-1", "", "Legacy Row", "ada@example.org", "", "", nil)
		if err != nil {
			return err
		}
		bound, err = store.CreatePersonTx(tx, "org-1", "", "Bound Row", "", "", "", nil)
		if err != nil {
			return err
		}
		return store.UpsertIdentityTx(tx, "org-1", bound, store.IdentityPair{
			Type: store.IdentityEmail, Value: "ada@example.org", Channel: "email",
		})
	})
	if err != nil {
		t.Fatalf("seed error: %v", err)
	}
	if legacy == bound {
		t.Fatal("setup expects two distinct persons")
	}

	got, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got != bound {
		t.Fatalf("expected the identity-bound person %q, got %q", bound, got)
	}
}

func TestResolveBackfillsIdentifiersAndTraits(t *testing.T) {
	r, engine := testResolver(t)
	ctx := context.Background()

	id, err := r.Resolve(ctx, Descriptor{
		OrgID:  "org-1",
		Email:  "ada@example.org",
		Traits: map[string]any{"name": "Ada Lovelace", "plan": "starter"},
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	again, err := r.Resolve(ctx, Descriptor{
		OrgID:  "org-1",
		Email:  "ada@example.org",
		Phone:  "+15550001111",
		Traits: map[string]any{"plan": "growth"},
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if again != id {
		t.Fatalf("expected same person, got %q", again)
	}

	person, err := engine.GetPerson(id)
	if err != nil {
		t.Fatalf("GetPerson error: %v", err)
	}
	if person.DisplayName != "Ada Lovelace" {
		t.Fatalf("expected display name from first traits, got %q", person.DisplayName)
	}
	if person.PrimaryPhone != "+15550001111" {
		t.Fatalf("expected phone backfilled, got %q", person.PrimaryPhone)
	}
	if person.Attributes["plan"] != "growth" {
		t.Fatalf("expected trait overwritten, got %v", person.Attributes["plan"])
	}

	n, _ := engine.CountIdentities(id)
	if n != 2 {
		t.Fatalf("expected email and phone identities, got %d", n)
	}
}

func TestResolveSkipCreate(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()

	_, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", Email: "ghost@example.org", SkipCreate: true})
	if !errors.Is(err, ErrPersonNotFound) {
		t.Fatalf("expected ErrPersonNotFound, got %v", err)
	}

	id, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", Email: "ghost@example.org"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	found, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", Email: "ghost@example.org", SkipCreate: true})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if found != id {
		t.Fatalf("expected existing person under SkipCreate, got %q", found)
	}
}

func TestResolveByExternalIDBindsNewIdentities(t *testing.T) {
	r, engine := testResolver(t)
	ctx := context.Background()

	id, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", ExternalID: "crm-42"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	// Later signal carries the external id plus a fresh email: same
	// person, and the email becomes a bound identity.
	again, err := r.Resolve(ctx, Descriptor{OrgID: "org-1", ExternalID: "crm-42", Email: "late@example.org"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if again != id {
		t.Fatalf("expected external-id match, got %q want %q", again, id)
	}

	ident, err := engine.FindIdentity(id, store.IdentityEmail)
	if err != nil {
		t.Fatalf("FindIdentity error: %v", err)
	}
	if ident.Value != "late@example.org" {
		t.Fatalf("expected email identity bound, got %q", ident.Value)
	}
}
