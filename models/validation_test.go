package models

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }

func decPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func invoiceDoc(id, filename, supplier, number string, total *decimal.Decimal) *DocumentRecord {
	return &DocumentRecord{
		ID:       id,
		Filename: filename,
		Type:     DocTypeInvoice,
		Extraction: &ExtractionResult{
			DocType: DocTypeInvoice,
			Specialized: Specialized{
				Invoice: &InvoiceData{
					SupplierName:  strPtr(supplier),
					InvoiceNumber: strPtr(number),
					InvoiceDate:   strPtr("2025-06-01"),
					Subtotal:      decPtr(100),
					Tax:           decPtr(8),
					Shipping:      decPtr(0),
					Total:         total,
				},
			},
		},
	}
}

func TestValidateExtraction_NoExtraction(t *testing.T) {
	result := ValidateExtraction(&DocumentRecord{ID: "d1"}, nil)
	if result.Valid {
		t.Fatal("expected invalid result for missing extraction")
	}
	if len(result.Errors) != 1 || result.Errors[0] != "No extraction results" {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
}

func TestValidateExtraction_ValidInvoice(t *testing.T) {
	doc := invoiceDoc("d1", "a.pdf", "Acme Corp", "INV-100", decPtr(108))
	result := ValidateExtraction(doc, nil)
	if !result.Valid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}
	if result.IsDuplicate {
		t.Fatal("expected no duplicate with empty peer set")
	}
	if !result.MathBalanced {
		t.Fatal("expected math to balance")
	}
}

func TestValidateExtraction_DuplicateTriple(t *testing.T) {
	doc := invoiceDoc("d1", "a.pdf", "Acme Corp", "INV-100", decPtr(108))
	peer := invoiceDoc("d2", "earlier.pdf", "Acme Corp", "INV-100", decPtr(108))

	result := ValidateExtraction(doc, []*DocumentRecord{peer})
	if !result.IsDuplicate {
		t.Fatal("expected duplicate")
	}
	if result.Valid {
		t.Fatal("duplicate must not be valid")
	}
	want := "DUPLICATE DETECTED: Matches document earlier.pdf"
	found := false
	for _, e := range result.Errors {
		if e == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected error %q, got %v", want, result.Errors)
	}
}

func TestValidateExtraction_DuplicateIgnoresSelf(t *testing.T) {
	doc := invoiceDoc("d1", "a.pdf", "Acme Corp", "INV-100", decPtr(108))
	result := ValidateExtraction(doc, []*DocumentRecord{doc})
	if result.IsDuplicate {
		t.Fatal("a document must not be its own duplicate")
	}
}

func TestValidateExtraction_DuplicateNilTotalsCompareEqual(t *testing.T) {
	doc := invoiceDoc("d1", "a.pdf", "Acme Corp", "INV-100", nil)
	peer := invoiceDoc("d2", "b.pdf", "Acme Corp", "INV-100", nil)

	result := ValidateExtraction(doc, []*DocumentRecord{peer})
	if !result.IsDuplicate {
		t.Fatal("nil totals on both sides must compare equal")
	}
}

func TestValidateExtraction_DifferentTotalIsNotDuplicate(t *testing.T) {
	doc := invoiceDoc("d1", "a.pdf", "Acme Corp", "INV-100", decPtr(108))
	peer := invoiceDoc("d2", "b.pdf", "Acme Corp", "INV-100", decPtr(200))

	result := ValidateExtraction(doc, []*DocumentRecord{peer})
	if result.IsDuplicate {
		t.Fatal("different totals must not be duplicates")
	}
}

func TestValidateExtraction_MissingRequiredFields(t *testing.T) {
	doc := &DocumentRecord{
		ID:   "d1",
		Type: DocTypeInvoice,
		Extraction: &ExtractionResult{
			DocType:     DocTypeInvoice,
			Specialized: Specialized{Invoice: &InvoiceData{}},
		},
	}
	result := ValidateExtraction(doc, nil)
	if result.Valid {
		t.Fatal("expected invalid")
	}
	for _, want := range []string{
		"Missing supplier name",
		"Missing invoice number",
		"Missing invoice date",
		"Missing total amount",
	} {
		found := false
		for _, e := range result.Errors {
			if e == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected error %q, got %v", want, result.Errors)
		}
	}
}

func TestValidateExtraction_MathToleranceBoundary(t *testing.T) {
	// Components sum to 108. A stated total of 108.01 is inside the
	// tolerance; 108.02 is outside.
	within := invoiceDoc("d1", "a.pdf", "Acme Corp", "INV-100", decPtr(108.01))
	result := ValidateExtraction(within, nil)
	if !result.MathBalanced {
		t.Fatalf("108.01 should balance against components of 108, errors: %v", result.Errors)
	}
	if !result.Valid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}

	outside := invoiceDoc("d2", "b.pdf", "Acme Corp", "INV-101", decPtr(108.02))
	result = ValidateExtraction(outside, nil)
	if result.MathBalanced {
		t.Fatal("108.02 should not balance against components of 108")
	}
	if result.Valid {
		t.Fatal("math error must make the document invalid")
	}
	found := false
	for _, e := range result.Errors {
		if strings.HasPrefix(e, "Math error: Components") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a math error, got %v", result.Errors)
	}
}

func TestValidateExtraction_LowConfidenceWholePercent(t *testing.T) {
	doc := invoiceDoc("d1", "a.pdf", "Acme Corp", "INV-100", decPtr(108))
	doc.Extraction.Fields = []Field{
		{Key: "supplier_name", Value: "Acme Corp", Confidence: 0.654},
		{Key: "total", Value: "108.00", Confidence: 0.99},
	}
	result := ValidateExtraction(doc, nil)
	if result.Valid {
		t.Fatal("low confidence field must make the document invalid")
	}
	want := "Low confidence for field: supplier_name (65%)"
	found := false
	for _, e := range result.Errors {
		if e == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %q, got %v", want, result.Errors)
	}
}

func TestValidateExtraction_NonInvoiceSkipsInvoiceChecks(t *testing.T) {
	doc := &DocumentRecord{
		ID:   "d1",
		Type: DocTypeReceipt,
		Extraction: &ExtractionResult{
			DocType: DocTypeReceipt,
		},
	}
	result := ValidateExtraction(doc, nil)
	if !result.Valid {
		t.Fatalf("receipts carry no invoice requirements, errors: %v", result.Errors)
	}
}
