package models

import "testing"

func TestCanTransition_LegalPaths(t *testing.T) {
	legal := []struct{ from, to DocStatus }{
		{DocStatusUploaded, DocStatusExtracting},
		{DocStatusExtracting, DocStatusNeedsReview},
		{DocStatusExtracting, DocStatusApproved},
		{DocStatusExtracting, DocStatusFailed},
		{DocStatusNeedsReview, DocStatusApproved},
		{DocStatusNeedsReview, DocStatusRejected},
		{DocStatusNeedsReview, DocStatusExtracting},
		{DocStatusFailed, DocStatusExtracting},
		{DocStatusRejected, DocStatusExtracting},
		{DocStatusRejected, DocStatusApproved},
		{DocStatusApproved, DocStatusExporting},
		{DocStatusApproved, DocStatusExported},
		{DocStatusExporting, DocStatusExported},
		{DocStatusExporting, DocStatusApproved},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be legal", tc.from, tc.to)
		}
	}
}

func TestCanTransition_IllegalPaths(t *testing.T) {
	illegal := []struct{ from, to DocStatus }{
		{DocStatusUploaded, DocStatusApproved},
		{DocStatusUploaded, DocStatusExported},
		{DocStatusUploaded, DocStatusNeedsReview},
		{DocStatusExtracting, DocStatusRejected},
		{DocStatusExtracting, DocStatusExported},
		{DocStatusNeedsReview, DocStatusExported},
		{DocStatusFailed, DocStatusApproved},
		{DocStatusApproved, DocStatusNeedsReview},
		{DocStatusApproved, DocStatusRejected},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}
}

func TestCanTransition_ExportedIsTerminal(t *testing.T) {
	for _, to := range []DocStatus{
		DocStatusUploaded, DocStatusExtracting, DocStatusNeedsReview,
		DocStatusApproved, DocStatusRejected, DocStatusExporting,
		DocStatusExported, DocStatusFailed,
	} {
		if CanTransition(DocStatusExported, to) {
			t.Errorf("EXPORTED must be terminal, got legal transition to %s", to)
		}
	}
}

func TestCanTransition_SelfTransitionsIllegal(t *testing.T) {
	for from := range legalTransitions {
		if CanTransition(from, from) {
			t.Errorf("%s -> %s self transition should be illegal", from, from)
		}
	}
}
