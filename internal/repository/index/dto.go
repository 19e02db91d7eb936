package index

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

// Hash field names of an entity document.
const (
	fieldText        = "text"
	fieldTitle       = "title"
	fieldSubtitle    = "subtitle"
	fieldDescription = "description"
	fieldURL         = "url"
	fieldStatus      = "status"
	fieldAmount      = "amount"
	fieldCurrency    = "currency"
	fieldDate        = "date"
	fieldFields      = "fields"
	fieldIndexedAt   = "indexed_at"
)

// entityToArgs flattens an entity into HSET field/value pairs. Empty values are skipped.
func entityToArgs(e *entity.IndexedEntity) ([]string, error) {
	meta := e.Metadata()
	args := []string{
		fieldText, e.SearchableText(),
		fieldIndexedAt, strconv.FormatInt(e.IndexedAt().UnixMilli(), 10),
	}
	add := func(field, value string) {
		if value != "" {
			args = append(args, field, value)
		}
	}
	add(fieldTitle, meta.Title)
	add(fieldSubtitle, meta.Subtitle)
	add(fieldDescription, meta.Description)
	add(fieldURL, meta.URL)
	add(fieldStatus, meta.Status)
	add(fieldCurrency, meta.Currency)
	add(fieldDate, meta.Date)
	if meta.Amount != nil {
		add(fieldAmount, strconv.FormatFloat(*meta.Amount, 'f', -1, 64))
	}
	if len(meta.Fields) > 0 {
		data, err := json.Marshal(meta.Fields)
		if err != nil {
			return nil, fmt.Errorf("marshal fields: %w", err)
		}
		add(fieldFields, string(data))
	}
	return args, nil
}

// entityFromHash hydrates an entity from an HGETALL result.
// Returns false for an empty hash (the entity vanished).
func entityFromHash(tenantID string, t entity.Type, id string, m map[string]string) (entity.IndexedEntity, bool) {
	text := m[fieldText]
	if text == "" {
		return entity.IndexedEntity{}, false
	}

	meta := entity.Metadata{
		Title:       m[fieldTitle],
		Subtitle:    m[fieldSubtitle],
		Description: m[fieldDescription],
		URL:         m[fieldURL],
		Status:      m[fieldStatus],
		Currency:    m[fieldCurrency],
		Date:        m[fieldDate],
	}
	if s, ok := m[fieldAmount]; ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			meta.Amount = &f
		}
	}
	if s := m[fieldFields]; s != "" {
		var fields map[string]string
		if err := json.Unmarshal([]byte(s), &fields); err == nil {
			meta.Fields = fields
		}
	}

	var indexedAt time.Time
	if ms, err := strconv.ParseInt(m[fieldIndexedAt], 10, 64); err == nil {
		indexedAt = time.UnixMilli(ms)
	}

	return entity.Reconstruct(tenantID, t, id, text, meta, indexedAt), true
}
