package query

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

// Limits bounds a search request.
type Limits struct {
	DefaultLimit   int
	MaxLimit       int
	MaxOffset      int
	MaxQueryLength int
}

// DefaultLimits returns the stock request bounds.
func DefaultLimits() Limits {
	return Limits{DefaultLimit: 20, MaxLimit: 100, MaxOffset: 10000, MaxQueryLength: 256}
}

// Query is a validated, normalized search request.
type Query struct {
	tenantID string
	text     string
	tokens   []string
	types    []entity.Type
	limit    int
	offset   int
}

// New validates and normalizes a search request.
// Empty types means all registered types. A zero limit means none was
// supplied and takes the default; callers reject an explicit zero.
func New(tenantID, raw string, types []string, limit, offset int, lim Limits) (Query, error) {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return Query{}, err
	}

	text := Normalize(raw)
	if text == "" {
		return Query{}, fmt.Errorf("%w: query is empty", domain.ErrInvalidQuery)
	}
	if len(text) > lim.MaxQueryLength {
		return Query{}, fmt.Errorf("%w: query too long (max %d)", domain.ErrInvalidQuery, lim.MaxQueryLength)
	}

	switch {
	case limit == 0:
		limit = lim.DefaultLimit
	case limit < 0:
		return Query{}, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidQuery)
	case limit > lim.MaxLimit:
		return Query{}, fmt.Errorf("%w: limit exceeds %d", domain.ErrInvalidQuery, lim.MaxLimit)
	}
	if offset < 0 {
		return Query{}, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidQuery)
	}
	if offset > lim.MaxOffset {
		return Query{}, fmt.Errorf("%w: offset exceeds %d", domain.ErrInvalidQuery, lim.MaxOffset)
	}

	parsed, err := parseTypes(types)
	if err != nil {
		return Query{}, err
	}

	return Query{
		tenantID: tenantID,
		text:     text,
		tokens:   strings.Fields(text),
		types:    parsed,
		limit:    limit,
		offset:   offset,
	}, nil
}

func parseTypes(raw []string) ([]entity.Type, error) {
	if len(raw) == 0 {
		return entity.Types(), nil
	}
	seen := make(map[entity.Type]struct{}, len(raw))
	out := make([]entity.Type, 0, len(raw))
	for _, s := range raw {
		t, err := entity.ParseType(strings.TrimSpace(strings.ToLower(s)))
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// Normalize lower-cases s and collapses runs of whitespace into single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// TenantID returns the tenant the query is scoped to.
func (q *Query) TenantID() string { return q.tenantID }

// Text returns the normalized query text.
func (q *Query) Text() string { return q.text }

// Tokens returns the whitespace-delimited query tokens.
func (q *Query) Tokens() []string { return q.tokens }

// Types returns the entity types to search.
func (q *Query) Types() []entity.Type { return q.types }

// Limit returns the page size.
func (q *Query) Limit() int { return q.limit }

// Offset returns the page offset.
func (q *Query) Offset() int { return q.offset }
