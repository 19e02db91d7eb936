package result

import (
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

// Result is a single ranked search hit.
type Result struct {
	entityType entity.Type
	entityID   string
	score      float64
	indexedAt  time.Time
	metadata   entity.Metadata
}

// New creates a search result.
func New(t entity.Type, id string, score float64, indexedAt time.Time, meta entity.Metadata) Result {
	return Result{entityType: t, entityID: id, score: score, indexedAt: indexedAt, metadata: meta}
}

// EntityType returns the entity type of the hit.
func (r *Result) EntityType() entity.Type { return r.entityType }

// EntityID returns the entity identifier.
func (r *Result) EntityID() string { return r.entityID }

// Score returns the relevance score in [0,1].
func (r *Result) Score() float64 { return r.score }

// IndexedAt returns when the entity was last indexed.
func (r *Result) IndexedAt() time.Time { return r.indexedAt }

// Title returns the display title.
func (r *Result) Title() string { return r.metadata.Title }

// Subtitle returns the display subtitle.
func (r *Result) Subtitle() string { return r.metadata.Subtitle }

// Description returns the display description.
func (r *Result) Description() string { return r.metadata.Description }

// URL returns the link to the record in the UI.
func (r *Result) URL() string { return r.metadata.URL }

// Metadata returns the stored display snapshot.
func (r *Result) Metadata() entity.Metadata { return r.metadata }

// Page is one page of merged, ranked results.
type Page struct {
	Results       []Result
	Total         int
	Limit         int
	Offset        int
	HasMore       bool
	Truncated     bool // a per-type scan cap left members unmatched
	ExecutionTime time.Duration
}
