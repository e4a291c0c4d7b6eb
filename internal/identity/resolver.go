// Package identity maps raw contact signals onto canonical persons.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/KofiRusu/neonhub-go/internal/store"
)

var (
	// ErrInvalidIdentifier is returned when a descriptor carries no
	// identifier at all.
	ErrInvalidIdentifier = errors.New("identity: at least one of email, phone, handle or external id is required")

	// ErrPersonNotFound is returned when CreateIfMissing is false and
	// no existing person matches.
	ErrPersonNotFound = errors.New("identity: person not found for provided identifiers")
)

// Descriptor carries the identifiers and traits submitted for
// resolution. CreateIfMissing defaults to true; set SkipCreate to
// resolve without ever creating a person.
type Descriptor struct {
	OrgID      string         `json:"organizationId"`
	Email      string         `json:"email,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	Handle     string         `json:"handle,omitempty"`
	ExternalID string         `json:"externalId,omitempty"`
	Traits     map[string]any `json:"traits,omitempty"`
	SkipCreate bool           `json:"-"`
}

// Resolver maps identity descriptors to person ids, transactionally.
type Resolver struct {
	engine *store.Engine
}

func NewResolver(engine *store.Engine) *Resolver {
	return &Resolver{engine: engine}
}

// Resolve returns the person id for the descriptor, creating the
// person when nothing matches and SkipCreate is unset.
//
// Match precedence is fixed: an identity-pair match beats an external
// id match, which beats a direct match on the person's primary fields.
// The whole lookup-or-create runs in one transaction so concurrent
// resolves for the same new identifier cannot create two persons; the
// unique index on identities(org_id, type, value) backstops the
// application logic.
//
// Note: when two identifiers in one descriptor already belong to two
// different persons, the precedence order silently picks one and the
// other person is left behind. There is no merge operation; known
// latent duplication, kept to match upstream behavior.
func (r *Resolver) Resolve(ctx context.Context, d Descriptor) (string, error) {
	d = normalize(d)
	if d.Email == "" && d.Phone == "" && d.Handle == "" && d.ExternalID == "" {
		return "", ErrInvalidIdentifier
	}

	pairs := identityPairs(d)

	var personID string
	err := r.engine.WithTx(func(tx *sql.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, err := store.FindIdentityPersonTx(tx, d.OrgID, pairs)
		if err != nil {
			return err
		}

		if id == "" && d.ExternalID != "" {
			id, err = store.FindPersonByExternalIDTx(tx, d.OrgID, d.ExternalID)
			if err != nil {
				return err
			}
		}

		if id == "" {
			id, err = store.FindPersonDirectTx(tx, d.OrgID, d.Email, d.Phone, d.Handle, d.ExternalID)
			if err != nil {
				return err
			}
		}

		if id == "" {
			if d.SkipCreate {
				return ErrPersonNotFound
			}
			id, err = store.CreatePersonTx(tx, d.OrgID, d.ExternalID, displayName(d.Traits), d.Email, d.Phone, d.Handle, d.Traits)
			if err != nil {
				return err
			}
		} else {
			if err := store.BackfillPersonTx(tx, id, d.Email, d.Phone, d.Handle, d.Traits); err != nil {
				return err
			}
		}

		for _, pair := range pairs {
			if err := store.UpsertIdentityTx(tx, d.OrgID, id, pair); err != nil {
				return err
			}
		}

		personID = id
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("resolve: %w", err)
	}
	return personID, nil
}

// normalize lower-cases emails and handles so matching is
// case-insensitive; phone values are kept as supplied.
func normalize(d Descriptor) Descriptor {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Phone = strings.TrimSpace(d.Phone)
	d.Handle = strings.ToLower(strings.TrimSpace(d.Handle))
	d.ExternalID = strings.TrimSpace(d.ExternalID)
	return d
}

func identityPairs(d Descriptor) []store.IdentityPair {
	var pairs []store.IdentityPair
	if d.Email != "" {
		pairs = append(pairs, store.IdentityPair{Type: store.IdentityEmail, Value: d.Email, Channel: "email"})
	}
	if d.Phone != "" {
		pairs = append(pairs, store.IdentityPair{Type: store.IdentityPhone, Value: d.Phone, Channel: "sms"})
	}
	if d.Handle != "" {
		pairs = append(pairs, store.IdentityPair{Type: store.IdentityHandle, Value: d.Handle, Channel: "dm"})
	}
	return pairs
}

func displayName(traits map[string]any) string {
	if traits == nil {
		return ""
	}
	if name, ok := traits["name"].(string); ok {
		return strings.TrimSpace(name)
	}
	return ""
}
