package store

import "time"

// Identity types recognized by the resolver.
const (
	IdentityEmail  = "email"
	IdentityPhone  = "phone"
	IdentityHandle = "handle"
)

// Consent statuses, newest row per (person, channel) wins.
const (
	ConsentGranted = "granted"
	ConsentRevoked = "revoked"
	ConsentPending = "pending"
	ConsentUnknown = "unknown"
)

// Person is the canonical, organization-scoped contact record a set of
// identities resolve to. Never deleted by this core.
type Person struct {
	ID            string
	OrgID         string
	ExternalID    string
	DisplayName   string
	PrimaryEmail  string
	PrimaryPhone  string
	PrimaryHandle string
	Attributes    map[string]any
	CreatedAt     string
	UpdatedAt     string
}

// Identity binds a single verifiable identifier to one person, unique
// per (org, type, value).
type Identity struct {
	ID        string
	OrgID     string
	PersonID  string
	Type      string
	Value     string
	Channel   string
	CreatedAt string
}

// Event is an immutable behavioral fact.
type Event struct {
	ID         string
	OrgID      string
	PersonID   string
	Channel    string
	Type       string
	Source     string
	Topic      string
	Intent     string
	Sentiment  string
	Payload    map[string]any
	Metadata   map[string]any
	OccurredAt time.Time
	CreatedAt  string
}

// Topic is a weighted affinity signal per (person, name).
type Topic struct {
	PersonID  string
	OrgID     string
	Name      string
	Weight    float64
	UpdatedAt string
}

// MemoryRecord is an append-only semantic snippet tied to a person.
type MemoryRecord struct {
	ID            string
	OrgID         string
	PersonID      string
	Label         string
	Summary       string
	Metadata      map[string]any
	Embedding     []float32
	SourceEventID string
	ExpiresAt     *time.Time
	CreatedAt     string
}

// MemoryQuery filters memory reads. Zero value returns everything,
// newest first.
type MemoryQuery struct {
	Since          *time.Time
	Limit          int
	IncludeVectors bool
}

// BrandVoice is a brand's composition template plus style rules.
type BrandVoice struct {
	ID             string
	BrandID        string
	PromptTemplate string
	StyleRules     map[string]any
	Metrics        map[string]any
}

// Snippet is a historical message ranked by win rate.
type Snippet struct {
	ID         string
	BrandID    string
	Channel    string
	Name       string
	Content    string
	WinRate    float64
	UsageCount int
}

// Consent records a person's channel-level messaging consent.
type Consent struct {
	ID        string
	PersonID  string
	Channel   string
	Status    string
	UpdatedAt string
}
