package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const personColumns = `id, org_id, COALESCE(external_id, ''), COALESCE(display_name, ''),
	COALESCE(primary_email, ''), COALESCE(primary_phone, ''), COALESCE(primary_handle, ''),
	attributes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*Person, error) {
	var p Person
	var attrs string
	err := row.Scan(&p.ID, &p.OrgID, &p.ExternalID, &p.DisplayName,
		&p.PrimaryEmail, &p.PrimaryPhone, &p.PrimaryHandle,
		&attrs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Attributes = decodeJSON(attrs)
	return &p, nil
}

func (e *Engine) GetPerson(id string) (*Person, error) {
	row := e.db.QueryRow(`SELECT `+personColumns+` FROM persons WHERE id = ?`, id)
	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("person %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// IdentityPair is a (type, value) identifier submitted for resolution.
type IdentityPair struct {
	Type    string
	Value   string
	Channel string
}

// FindIdentityPersonTx returns the person bound to any of the supplied
// identity pairs within the organization, in pair order.
func FindIdentityPersonTx(tx *sql.Tx, orgID string, pairs []IdentityPair) (string, error) {
	for _, pair := range pairs {
		var personID string
		err := tx.QueryRow(
			`SELECT person_id FROM identities WHERE org_id = ? AND type = ? AND value = ?`,
			orgID, pair.Type, pair.Value,
		).Scan(&personID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("find identity: %w", err)
		}
		return personID, nil
	}
	return "", nil
}

// FindPersonByExternalIDTx looks up a person by (org, external id).
func FindPersonByExternalIDTx(tx *sql.Tx, orgID, externalID string) (string, error) {
	var id string
	err := tx.QueryRow(
		`SELECT id FROM persons WHERE org_id = ? AND external_id = ?`,
		orgID, externalID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find person by external id: %w", err)
	}
	return id, nil
}

// FindPersonDirectTx matches legacy person rows by primary identifier
// fields, for records that predate identity rows.
func FindPersonDirectTx(tx *sql.Tx, orgID, email, phone, handle, externalID string) (string, error) {
	clauses := make([]string, 0, 4)
	args := []any{orgID}
	if email != "" {
		clauses = append(clauses, "primary_email = ?")
		args = append(args, email)
	}
	if phone != "" {
		clauses = append(clauses, "primary_phone = ?")
		args = append(args, phone)
	}
	if handle != "" {
		clauses = append(clauses, "primary_handle = ?")
		args = append(args, handle)
	}
	if externalID != "" {
		clauses = append(clauses, "external_id = ?")
		args = append(args, externalID)
	}
	if len(clauses) == 0 {
		return "", nil
	}

	query := `SELECT id FROM persons WHERE org_id = ? AND (`
	for i, c := range clauses {
		if i > 0 {
			query += " OR "
		}
		query += c
	}
	query += `) LIMIT 1`

	var id string
	err := tx.QueryRow(query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find person direct: %w", err)
	}
	return id, nil
}

// CreatePersonTx inserts a new person seeded with the supplied primary
// identifiers and traits, returning the new id.
func CreatePersonTx(tx *sql.Tx, orgID, externalID, displayName, email, phone, handle string, traits map[string]any) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(
		`INSERT INTO persons (id, org_id, external_id, display_name, primary_email, primary_phone, primary_handle, attributes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, orgID, nullable(externalID), nullable(displayName),
		nullable(email), nullable(phone), nullable(handle), encodeJSON(traits),
	)
	if err != nil {
		return "", fmt.Errorf("create person: %w", err)
	}
	return id, nil
}

// BackfillPersonTx fills missing primary-identifier fields on an
// existing person and additively merges traits into its attributes:
// supplied keys overwrite, absent keys are untouched.
func BackfillPersonTx(tx *sql.Tx, personID, email, phone, handle string, traits map[string]any) error {
	var attrs string
	if err := tx.QueryRow(`SELECT attributes FROM persons WHERE id = ?`, personID).Scan(&attrs); err != nil {
		return fmt.Errorf("load person attributes: %w", err)
	}
	merged := decodeJSON(attrs)
	if merged == nil {
		merged = map[string]any{}
	}
	for k, v := range traits {
		merged[k] = v
	}

	_, err := tx.Exec(
		`UPDATE persons SET
			primary_email = COALESCE(primary_email, ?),
			primary_phone = COALESCE(primary_phone, ?),
			primary_handle = COALESCE(primary_handle, ?),
			attributes = ?,
			updated_at = ?
		 WHERE id = ?`,
		nullable(email), nullable(phone), nullable(handle),
		encodeJSON(merged), nowUTC(), personID,
	)
	if err != nil {
		return fmt.Errorf("backfill person: %w", err)
	}
	return nil
}

// UpsertIdentityTx points the (org, type, value) identity at the given
// person. Re-supplying an existing pair is a no-op apart from
// re-affirming the binding.
func UpsertIdentityTx(tx *sql.Tx, orgID, personID string, pair IdentityPair) error {
	_, err := tx.Exec(
		`INSERT INTO identities (id, org_id, person_id, type, value, channel)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(org_id, type, value) DO UPDATE SET person_id = excluded.person_id`,
		uuid.NewString(), orgID, personID, pair.Type, pair.Value, pair.Channel,
	)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

// FindIdentity returns the identity row for (person, type), if any.
func (e *Engine) FindIdentity(personID, identityType string) (*Identity, error) {
	var ident Identity
	err := e.db.QueryRow(
		`SELECT id, org_id, person_id, type, value, channel, created_at
		 FROM identities WHERE person_id = ? AND type = ? ORDER BY created_at DESC LIMIT 1`,
		personID, identityType,
	).Scan(&ident.ID, &ident.OrgID, &ident.PersonID, &ident.Type, &ident.Value, &ident.Channel, &ident.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("identity %s/%s: %w", personID, identityType, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return &ident, nil
}

// CountIdentities reports how many identity rows point at the person.
func (e *Engine) CountIdentities(personID string) (int, error) {
	var n int
	if err := e.db.QueryRow(`SELECT COUNT(*) FROM identities WHERE person_id = ?`, personID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
