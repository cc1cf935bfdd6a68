package models

import (
	"reflect"
	"testing"
)

func poDoc(poNumber *string) *DocumentRecord {
	return &DocumentRecord{
		ID:   "d1",
		Type: DocTypeInvoice,
		Extraction: &ExtractionResult{
			DocType: DocTypeInvoice,
			Specialized: Specialized{
				Invoice: &InvoiceData{PONumber: poNumber},
			},
		},
	}
}

func TestSimulateThreeWayMatch_NoPOReference(t *testing.T) {
	for _, doc := range []*DocumentRecord{
		poDoc(nil),
		poDoc(strPtr("")),
		poDoc(strPtr("   ")),
		{ID: "d2", Type: DocTypeReceipt, Extraction: &ExtractionResult{DocType: DocTypeReceipt}},
	} {
		state := SimulateThreeWayMatch(doc)
		if state.POMatch != MatchResultNotFound || state.ReceiptMatch != MatchResultNotFound {
			t.Fatalf("expected NOT_FOUND for both legs, got %+v", state)
		}
		if len(state.Variances) != 1 || state.Variances[0] != "No PO reference found on invoice." {
			t.Fatalf("unexpected variances: %v", state.Variances)
		}
	}
}

func TestSimulateThreeWayMatch_CleanMatch(t *testing.T) {
	state := SimulateThreeWayMatch(poDoc(strPtr("PO-2025-001")))
	if state.POMatch != MatchResultMatched || state.ReceiptMatch != MatchResultMatched {
		t.Fatalf("expected MATCHED on both legs, got %+v", state)
	}
	if len(state.Variances) != 0 {
		t.Fatalf("expected no variances, got %v", state.Variances)
	}
}

func TestSimulateThreeWayMatch_PriceVariance(t *testing.T) {
	state := SimulateThreeWayMatch(poDoc(strPtr("PO-99-001")))
	if state.POMatch != MatchResultVariance {
		t.Fatalf("expected PO leg variance, got %+v", state)
	}
	if state.ReceiptMatch != MatchResultMatched {
		t.Fatalf("receipt leg should be unaffected, got %+v", state)
	}
	if len(state.Variances) != 1 {
		t.Fatalf("expected one variance, got %v", state.Variances)
	}
}

func TestSimulateThreeWayMatch_QuantityVariance(t *testing.T) {
	state := SimulateThreeWayMatch(poDoc(strPtr("PO-11-001")))
	if state.ReceiptMatch != MatchResultVariance {
		t.Fatalf("expected receipt leg variance, got %+v", state)
	}
	if state.POMatch != MatchResultMatched {
		t.Fatalf("PO leg should be unaffected, got %+v", state)
	}
}

func TestSimulateThreeWayMatch_BothVariances(t *testing.T) {
	// Both triggers are independent.
	state := SimulateThreeWayMatch(poDoc(strPtr("PO-9911")))
	if state.POMatch != MatchResultVariance || state.ReceiptMatch != MatchResultVariance {
		t.Fatalf("expected variances on both legs, got %+v", state)
	}
	if len(state.Variances) != 2 {
		t.Fatalf("expected two variances, got %v", state.Variances)
	}
}

func TestSimulateThreeWayMatch_Deterministic(t *testing.T) {
	doc := poDoc(strPtr("PO-99-001"))
	first := SimulateThreeWayMatch(doc)
	for i := 0; i < 10; i++ {
		if got := SimulateThreeWayMatch(doc); !reflect.DeepEqual(first, got) {
			t.Fatalf("match state changed between runs: %+v vs %+v", first, got)
		}
	}
}
