// Package postgres reads tenant entities from PostgreSQL tables with keyset paging.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	"github.com/kailas-cloud/entsearch/internal/source"
)

var identRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// DefaultTables maps each entity type to its conventional table.
func DefaultTables() map[entity.Type]string {
	return map[entity.Type]string{
		entity.Invoice:  "invoices",
		entity.Expense:  "expenses",
		entity.Client:   "clients",
		entity.Report:   "reports",
		entity.Employee: "employees",
	}
}

// Reader implements source.Reader over database/sql with the pgx driver.
type Reader struct {
	db      *sql.DB
	queries map[entity.Type]string
}

// Open connects to PostgreSQL and builds a reader.
func Open(dsn string, tables map[entity.Type]string) (*Reader, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	r, err := New(db, tables)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// New builds a reader over an open database. Table names are validated as
// SQL identifiers because they are interpolated into the page query.
func New(db *sql.DB, tables map[entity.Type]string) (*Reader, error) {
	queries := make(map[entity.Type]string, len(tables))
	for t, table := range tables {
		if !t.IsValid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidEntityType, t)
		}
		if !identRegex.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q for %s", table, t)
		}
		queries[t] = fmt.Sprintf(
			`SELECT t.id::text, row_to_json(t)::text FROM %s t
			 WHERE t.tenant_id::text = $1 AND t.id::text > $2
			 ORDER BY t.id::text
			 LIMIT $3`, table)
	}
	return &Reader{db: db, queries: queries}, nil
}

// ReadPage returns up to limit records with id greater than cursor.
func (r *Reader) ReadPage(
	ctx context.Context, tenantID string, t entity.Type, cursor string, limit int,
) (source.Page, error) {
	query, ok := r.queries[t]
	if !ok {
		return source.Page{}, fmt.Errorf("%s: %w", t, source.ErrUnsupportedType)
	}

	rows, err := r.db.QueryContext(ctx, query, tenantID, cursor, limit)
	if err != nil {
		return source.Page{}, fmt.Errorf("%w: read %s page: %w", domain.ErrSourceUnavailable, t, err)
	}
	defer rows.Close()

	records := make([]source.Record, 0, limit)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return source.Page{}, fmt.Errorf("%w: scan %s row: %w", domain.ErrSourceUnavailable, t, err)
		}
		rec := source.Record{ID: id}
		var raw map[string]any
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			rec.Err = fmt.Errorf("%w: decode %s %s: %w", domain.ErrInvalidEntity, t, id, err)
		} else {
			rec.Raw = raw
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return source.Page{}, fmt.Errorf("%w: iterate %s rows: %w", domain.ErrSourceUnavailable, t, err)
	}

	page := source.Page{Records: records}
	if len(records) == limit && limit > 0 {
		page.NextCursor = records[len(records)-1].ID
	}
	return page, nil
}

// Ping checks connectivity.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	return nil
}

// Close closes the underlying pool.
func (r *Reader) Close() error {
	return r.db.Close()
}
