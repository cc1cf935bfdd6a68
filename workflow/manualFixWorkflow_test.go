package workflow

import (
	"reflect"
	"testing"

	"github.com/conrover/DocFlow/models"
	"github.com/shopspring/decimal"
)

func sp(v string) *string { return &v }

func dp(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestDiffExtractions_NoChanges(t *testing.T) {
	before := &models.ExtractionResult{
		DocType: models.DocTypeInvoice,
		Fields: []models.Field{
			{Key: "supplier_name", Value: "Acme Corp", Confidence: 0.9},
		},
		Specialized: models.Specialized{Invoice: &models.InvoiceData{
			SupplierName: sp("Acme Corp"),
			Total:        dp("108.00"),
		}},
	}
	after := &models.ExtractionResult{
		DocType: models.DocTypeInvoice,
		Fields: []models.Field{
			{Key: "supplier_name", Value: "Acme Corp", Confidence: 0.4},
		},
		Specialized: models.Specialized{Invoice: &models.InvoiceData{
			SupplierName: sp("Acme Corp"),
			Total:        dp("108.0"),
		}},
	}

	// Confidence changes and decimal formatting differences are not edits.
	if changes := diffExtractions(before, after); len(changes) != 0 {
		t.Fatalf("expected no changes, got %v", changes)
	}
}

func TestDiffExtractions_FieldValueChanged(t *testing.T) {
	before := &models.ExtractionResult{
		Fields: []models.Field{{Key: "invoice_number", Value: "INV-100"}},
	}
	after := &models.ExtractionResult{
		Fields: []models.Field{{Key: "invoice_number", Value: "INV-101"}},
	}

	changes := diffExtractions(before, after)
	want := []string{"invoice_number: INV-100 -> INV-101"}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("got %v, want %v", changes, want)
	}
}

func TestDiffExtractions_NewFieldAnnotatedAsNone(t *testing.T) {
	before := &models.ExtractionResult{}
	after := &models.ExtractionResult{
		Fields: []models.Field{{Key: "po_number", Value: "PO-2025-001"}},
	}

	changes := diffExtractions(before, after)
	want := []string{"po_number: (none) -> PO-2025-001"}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("got %v, want %v", changes, want)
	}
}

func TestDiffExtractions_InvoiceScalars(t *testing.T) {
	before := &models.ExtractionResult{
		DocType: models.DocTypeInvoice,
		Specialized: models.Specialized{Invoice: &models.InvoiceData{
			SupplierName: sp("Acme Corp"),
			Total:        dp("100"),
		}},
	}
	after := &models.ExtractionResult{
		DocType: models.DocTypeInvoice,
		Specialized: models.Specialized{Invoice: &models.InvoiceData{
			SupplierName: sp("Acme Corporation"),
			Total:        dp("108"),
			Tax:          dp("8"),
		}},
	}

	changes := diffExtractions(before, after)
	want := []string{
		"supplier_name: Acme Corp -> Acme Corporation",
		"tax: (none) -> 8",
		"total: 100 -> 108",
	}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("got %v, want %v", changes, want)
	}
}

func TestDiffExtractions_NilBefore(t *testing.T) {
	after := &models.ExtractionResult{
		DocType: models.DocTypeInvoice,
		Fields:  []models.Field{{Key: "total", Value: "50.00"}},
		Specialized: models.Specialized{Invoice: &models.InvoiceData{
			InvoiceNumber: sp("INV-1"),
		}},
	}

	changes := diffExtractions(nil, after)
	want := []string{
		"total: (none) -> 50.00",
		"invoice_number: (none) -> INV-1",
	}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("got %v, want %v", changes, want)
	}
}

func TestDiffExtractions_NonInvoiceSkipsScalars(t *testing.T) {
	before := &models.ExtractionResult{
		DocType: models.DocTypeInvoice,
		Specialized: models.Specialized{Invoice: &models.InvoiceData{
			Total: dp("100"),
		}},
	}
	after := &models.ExtractionResult{
		DocType: models.DocTypeReceipt,
	}

	if changes := diffExtractions(before, after); len(changes) != 0 {
		t.Fatalf("expected no changes for non-invoice edit, got %v", changes)
	}
}
