package entity

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain"
)

// Type is a category of business record with its own projection rule.
type Type string

// Entity type constants.
const (
	Invoice  Type = "invoice"
	Expense  Type = "expense"
	Client   Type = "client"
	Report   Type = "report"
	Employee Type = "employee"
)

// types is the registration order, also used by reindex.
var types = []Type{Invoice, Expense, Client, Report, Employee}

// Types returns all entity types in registration order.
func Types() []Type {
	out := make([]Type, len(types))
	copy(out, types)
	return out
}

// IsValid reports whether t is a registered entity type.
func (t Type) IsValid() bool {
	for _, known := range types {
		if t == known {
			return true
		}
	}
	return false
}

// ParseType validates a raw entity type name.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidEntityType, s)
	}
	return t, nil
}

// MaxIDLength bounds entity identifiers.
const MaxIDLength = 256

var idRegex = regexp.MustCompile(`^[^\s{}]+$`)

// ValidateID checks an opaque entity identifier.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: entity id is required", domain.ErrInvalidEntity)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: entity id too long (max %d)", domain.ErrInvalidEntity, MaxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: entity id must not contain whitespace or braces", domain.ErrInvalidEntity)
	}
	return nil
}

// Raw is an entity snapshot as delivered by the system of record.
type Raw map[string]any

// Metadata is the display snapshot stored next to the searchable text.
type Metadata struct {
	Title       string
	Subtitle    string
	Description string
	URL         string
	Status      string
	Amount      *float64
	Currency    string
	Date        string
	Fields      map[string]string
}

// IndexedEntity is the unit of indexing.
type IndexedEntity struct {
	tenantID       string
	entityType     Type
	entityID       string
	searchableText string
	metadata       Metadata
	indexedAt      time.Time
}

// New creates an IndexedEntity. Searchable text must already be normalized.
func New(
	tenantID string, t Type, id, searchableText string, meta Metadata, indexedAt time.Time,
) (IndexedEntity, error) {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return IndexedEntity{}, err
	}
	if !t.IsValid() {
		return IndexedEntity{}, fmt.Errorf("%w: %q", domain.ErrInvalidEntityType, t)
	}
	if err := ValidateID(id); err != nil {
		return IndexedEntity{}, err
	}
	if searchableText == "" {
		return IndexedEntity{}, fmt.Errorf("%s %s: %w", t, id, domain.ErrEmptyProjection)
	}
	return IndexedEntity{
		tenantID:       tenantID,
		entityType:     t,
		entityID:       id,
		searchableText: searchableText,
		metadata:       meta,
		indexedAt:      indexedAt,
	}, nil
}

// Reconstruct restores an IndexedEntity from storage without validation.
func Reconstruct(
	tenantID string, t Type, id, searchableText string, meta Metadata, indexedAt time.Time,
) IndexedEntity {
	return IndexedEntity{
		tenantID:       tenantID,
		entityType:     t,
		entityID:       id,
		searchableText: searchableText,
		metadata:       meta,
		indexedAt:      indexedAt,
	}
}

// TenantID returns the owning tenant.
func (e *IndexedEntity) TenantID() string { return e.tenantID }

// Type returns the entity type.
func (e *IndexedEntity) Type() Type { return e.entityType }

// ID returns the entity identifier.
func (e *IndexedEntity) ID() string { return e.entityID }

// SearchableText returns the normalized match text.
func (e *IndexedEntity) SearchableText() string { return e.searchableText }

// Metadata returns the display snapshot.
func (e *IndexedEntity) Metadata() Metadata { return e.metadata }

// IndexedAt returns the time of the last (re)index.
func (e *IndexedEntity) IndexedAt() time.Time { return e.indexedAt }

// Ref identifies an entity within a tenant.
type Ref struct {
	Type Type
	ID   string
}

// Member is an entry of a type's recency-ordered membership set.
type Member struct {
	ID        string
	IndexedAt time.Time
}
