package models

import (
	"fmt"
	"strings"
)

// MatchingState describes how an invoice reconciles against its purchase
// order and goods receipt. Derived per document, never persisted.
type MatchingState struct {
	POMatch      MatchResult `json:"po_match"`
	ReceiptMatch MatchResult `json:"receipt_match"`
	Variances    []string    `json:"variances"`
}

// Matcher resolves the three-way match for a document. The default is the
// deterministic simulator below; a production deployment swaps in a client
// that sources real PO and receipt records from the ERP.
type Matcher interface {
	Match(doc *DocumentRecord) MatchingState
}

// SimulatedMatcher is a stand-in reconciliation keyed on the PO reference
// itself: a reference containing "99" reports a PO price variance, one
// containing "11" reports a receipt quantity variance. Pure and I/O-free.
type SimulatedMatcher struct{}

func (SimulatedMatcher) Match(doc *DocumentRecord) MatchingState {
	return SimulateThreeWayMatch(doc)
}

func SimulateThreeWayMatch(doc *DocumentRecord) MatchingState {
	var inv *InvoiceData
	if doc != nil && doc.Extraction != nil {
		inv = doc.Extraction.Invoice()
	}
	if inv == nil || isBlank(inv.PONumber) {
		return MatchingState{
			POMatch:      MatchResultNotFound,
			ReceiptMatch: MatchResultNotFound,
			Variances:    []string{"No PO reference found on invoice."},
		}
	}

	po := strings.ToUpper(*inv.PONumber)
	state := MatchingState{
		POMatch:      MatchResultMatched,
		ReceiptMatch: MatchResultMatched,
		Variances:    []string{},
	}

	if strings.Contains(po, "99") {
		state.POMatch = MatchResultVariance
		state.Variances = append(state.Variances,
			fmt.Sprintf("Price variance: invoice unit pricing does not match PO %s.", *inv.PONumber))
	}
	if strings.Contains(po, "11") {
		state.ReceiptMatch = MatchResultVariance
		state.Variances = append(state.Variances,
			fmt.Sprintf("Quantity variance: goods receipt for PO %s does not cover the invoiced quantity.", *inv.PONumber))
	}
	return state
}
