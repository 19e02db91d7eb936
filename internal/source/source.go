// Package source defines how the reindex pipeline reads the system of record.
package source

import (
	"context"
	"errors"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

// ErrUnsupportedType is returned by ReadPage for a type the source does not hold.
var ErrUnsupportedType = errors.New("entity type not provided by source")

// Record is one raw entity read from the system of record.
// Err is set when the row could be read but not decoded.
type Record struct {
	ID  string
	Raw entity.Raw
	Err error
}

// Page is a keyset page of records. An empty NextCursor means the type is exhausted.
type Page struct {
	Records    []Record
	NextCursor string
}

// Reader pages through a tenant's entities of one type.
type Reader interface {
	ReadPage(ctx context.Context, tenantID string, t entity.Type, cursor string, limit int) (Page, error)
	Ping(ctx context.Context) error
}
