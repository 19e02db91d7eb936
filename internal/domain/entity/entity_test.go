package entity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain"
)

func TestParseType(t *testing.T) {
	for _, tt := range Types() {
		got, err := ParseType(string(tt))
		if err != nil {
			t.Errorf("ParseType(%q) unexpected error: %v", tt, err)
		}
		if got != tt {
			t.Errorf("ParseType(%q) = %q", tt, got)
		}
	}

	_, err := ParseType("payslip")
	if !errors.Is(err, domain.ErrInvalidEntityType) {
		t.Fatalf("expected ErrInvalidEntityType, got %v", err)
	}
}

func TestTypes_ReturnsCopy(t *testing.T) {
	ts := Types()
	ts[0] = "mutated"
	if Types()[0] != Invoice {
		t.Error("Types() must not expose the registration slice")
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"INV-100", false},
		{"550e8400-e29b-41d4-a716-446655440000", false},
		{"", true},
		{"with space", true},
		{"br{ace}", true},
		{strings.Repeat("x", MaxIDLength+1), true},
	}
	for _, tc := range tests {
		err := ValidateID(tc.id)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateID(%q) err = %v, wantErr %v", tc.id, err, tc.wantErr)
		}
	}
}

func TestNew_EmptyTextRejected(t *testing.T) {
	_, err := New("T1", Invoice, "INV-100", "", Metadata{}, time.Now())
	if !errors.Is(err, domain.ErrEmptyProjection) {
		t.Fatalf("expected ErrEmptyProjection, got %v", err)
	}
}

func TestNew_Valid(t *testing.T) {
	at := time.Unix(1700000000, 0)
	e, err := New("T1", Invoice, "INV-100", "invoice acme corp", Metadata{Title: "Invoice INV-100"}, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.TenantID() != "T1" || e.Type() != Invoice || e.ID() != "INV-100" {
		t.Errorf("unexpected identity: %s/%s/%s", e.TenantID(), e.Type(), e.ID())
	}
	if e.Metadata().Title != "Invoice INV-100" {
		t.Errorf("Title = %q", e.Metadata().Title)
	}
	if !e.IndexedAt().Equal(at) {
		t.Errorf("IndexedAt = %v", e.IndexedAt())
	}
}

func TestNew_InvalidTenant(t *testing.T) {
	_, err := New("", Invoice, "INV-100", "x", Metadata{}, time.Now())
	if !errors.Is(err, domain.ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}
}
