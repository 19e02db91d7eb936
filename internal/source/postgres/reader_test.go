package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	"github.com/kailas-cloud/entsearch/internal/source"
)

const pageQuery = `(?s)^SELECT\s+t\.id::text,\s*row_to_json\(t\)::text\s+FROM\s+invoices\s+t\s+` +
	`WHERE\s+t\.tenant_id::text\s*=\s*\$1\s+AND\s+t\.id::text\s*>\s*\$2\s+ORDER\s+BY\s+t\.id::text\s+LIMIT\s+\$3$`

func newReaderWithMock(t *testing.T) (*Reader, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp), sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	r, err := New(db, map[entity.Type]string{entity.Invoice: "invoices"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return r, mock, db
}

func TestReadPage_FullPageHasCursor(t *testing.T) {
	r, mock, db := newReaderWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "row_to_json"}).
		AddRow("INV-1", `{"invoice_number":"INV-1","status":"sent"}`).
		AddRow("INV-2", `{"invoice_number":"INV-2"}`)
	mock.ExpectQuery(pageQuery).WithArgs("T1", "", 2).WillReturnRows(rows)

	page, err := r.ReadPage(context.Background(), "T1", entity.Invoice, "", 2)
	if err != nil {
		t.Fatalf("ReadPage error: %v", err)
	}
	if len(page.Records) != 2 || page.NextCursor != "INV-2" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Records[0].Raw["status"] != "sent" {
		t.Errorf("raw = %v", page.Records[0].Raw)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReadPage_LastPage(t *testing.T) {
	r, mock, db := newReaderWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "row_to_json"}).AddRow("INV-3", `{}`)
	mock.ExpectQuery(pageQuery).WithArgs("T1", "INV-2", 2).WillReturnRows(rows)

	page, err := r.ReadPage(context.Background(), "T1", entity.Invoice, "INV-2", 2)
	if err != nil {
		t.Fatalf("ReadPage error: %v", err)
	}
	if page.NextCursor != "" {
		t.Errorf("NextCursor = %q, want empty", page.NextCursor)
	}
}

func TestReadPage_BadJSONIsPerRecord(t *testing.T) {
	r, mock, db := newReaderWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "row_to_json"}).
		AddRow("INV-1", `{not json`).
		AddRow("INV-2", `{"status":"paid"}`)
	mock.ExpectQuery(pageQuery).WithArgs("T1", "", 10).WillReturnRows(rows)

	page, err := r.ReadPage(context.Background(), "T1", entity.Invoice, "", 10)
	if err != nil {
		t.Fatalf("ReadPage error: %v", err)
	}
	if !errors.Is(page.Records[0].Err, domain.ErrInvalidEntity) {
		t.Errorf("expected per-record ErrInvalidEntity, got %v", page.Records[0].Err)
	}
	if page.Records[1].Err != nil {
		t.Errorf("unexpected error on good row: %v", page.Records[1].Err)
	}
}

func TestReadPage_DBError(t *testing.T) {
	r, mock, db := newReaderWithMock(t)
	defer db.Close()

	mock.ExpectQuery(pageQuery).WithArgs("T1", "", 10).WillReturnError(errors.New("db down"))

	_, err := r.ReadPage(context.Background(), "T1", entity.Invoice, "", 10)
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestReadPage_UnmappedType(t *testing.T) {
	r, _, db := newReaderWithMock(t)
	defer db.Close()

	_, err := r.ReadPage(context.Background(), "T1", entity.Report, "", 10)
	if !errors.Is(err, source.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestPing(t *testing.T) {
	r, mock, db := newReaderWithMock(t)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("refused"))
	if err := r.Ping(context.Background()); !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestNew_RejectsBadTable(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	if _, err := New(db, map[entity.Type]string{entity.Invoice: "invoices; DROP TABLE x"}); err == nil {
		t.Fatal("expected error for unsafe table name")
	}
	if _, err := New(db, map[entity.Type]string{"payslip": "payslips"}); !errors.Is(err, domain.ErrInvalidEntityType) {
		t.Fatalf("expected ErrInvalidEntityType, got %v", err)
	}
	if _, err := New(db, DefaultTables()); err != nil {
		t.Fatalf("default tables rejected: %v", err)
	}
}
