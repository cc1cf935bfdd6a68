package models

import (
	"math"
	"testing"
)

func TestExtractionRejected(t *testing.T) {
	var nilResult *ExtractionResult
	if !nilResult.Rejected() {
		t.Fatal("nil extraction must be rejected")
	}
	if !(&ExtractionResult{DocType: DocTypeUnknown}).Rejected() {
		t.Fatal("unknown doc type must be rejected")
	}
	if !(&ExtractionResult{}).Rejected() {
		t.Fatal("empty doc type must be rejected")
	}
	firewalled := &ExtractionResult{
		DocType:  DocTypeInvoice,
		Warnings: []string{"NOT_A_VALID_DOCUMENT: The uploaded file is not a recognized financial instrument for AP processing."},
	}
	if !firewalled.Rejected() {
		t.Fatal("firewall warning must reject regardless of doc type")
	}
	if (&ExtractionResult{DocType: DocTypeInvoice}).Rejected() {
		t.Fatal("plain invoice must not be rejected")
	}
}

func TestRejectionMessage(t *testing.T) {
	warning := "NOT_A_VALID_DOCUMENT: The uploaded file is not a recognized financial instrument for AP processing."
	e := &ExtractionResult{DocType: DocTypeUnknown, Warnings: []string{"  " + warning}}
	if got := e.RejectionMessage(); got != warning {
		t.Fatalf("expected firewall warning, got %q", got)
	}

	e = &ExtractionResult{DocType: DocTypeUnknown}
	if got := e.RejectionMessage(); got == "" {
		t.Fatal("expected generic rejection message")
	}
}

func TestAverageFieldConfidence(t *testing.T) {
	var nilResult *ExtractionResult
	if got := nilResult.AverageFieldConfidence(); got != 0 {
		t.Fatalf("nil extraction should average 0, got %v", got)
	}
	if got := (&ExtractionResult{}).AverageFieldConfidence(); got != 0 {
		t.Fatalf("no fields should average 0, got %v", got)
	}

	e := &ExtractionResult{Fields: []Field{
		{Confidence: 0.9},
		{Confidence: 0.8},
		{Confidence: 1.0},
	}}
	if got := e.AverageFieldConfidence(); math.Abs(got-0.9) > 1e-9 {
		t.Fatalf("expected 0.9, got %v", got)
	}
}
