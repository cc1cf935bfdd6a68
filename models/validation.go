package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// mathTolerance is the absolute tolerance for the component-vs-total
// reconciliation. A difference of exactly 0.01 is still balanced.
var mathTolerance = decimal.NewFromFloat(0.01)

// lowConfidenceThreshold flags individual fields the reviewer should check.
const lowConfidenceThreshold = 0.70

// ValidationResult is derived from the current extraction plus the current
// peer document set. Validation findings are data, not errors: they gate
// auto-approval but never stop the pipeline.
type ValidationResult struct {
	Valid        bool     `json:"valid"`
	Errors       []string `json:"errors"`
	IsDuplicate  bool     `json:"isDuplicate"`
	MathBalanced bool     `json:"mathBalanced"`
}

// ValidateExtraction runs the validation engine for one candidate document
// against its peer set (all documents owned by the same user). Pure: no I/O,
// no hidden state; callers load peers at validation time.
func ValidateExtraction(candidate *DocumentRecord, peers []*DocumentRecord) ValidationResult {
	if candidate == nil || candidate.Extraction == nil {
		return ValidationResult{Valid: false, Errors: []string{"No extraction results"}}
	}

	extraction := candidate.Extraction
	errs := make([]string, 0)
	isDuplicate := false
	mathBalanced := true

	// Duplicate check: invoices only, scoped to the caller-supplied peer set.
	// First match in peer iteration order wins; duplicates are not ranked.
	if extraction.DocType == DocTypeInvoice && extraction.Invoice() != nil {
		inv := extraction.Invoice()
		for _, peer := range peers {
			if peer == nil || peer.ID == candidate.ID || peer.Type != DocTypeInvoice {
				continue
			}
			peerInv := peer.Extraction.Invoice()
			if peerInv == nil {
				continue
			}
			if stringPtrEqual(peerInv.SupplierName, inv.SupplierName) &&
				stringPtrEqual(peerInv.InvoiceNumber, inv.InvoiceNumber) &&
				decimalPtrEqual(peerInv.Total, inv.Total) {
				isDuplicate = true
				errs = append(errs, fmt.Sprintf("DUPLICATE DETECTED: Matches document %s", peer.Filename))
				break
			}
		}
	}

	// Required fields & math reconciliation: only invoices carry a
	// specialized numeric story today.
	if extraction.DocType == DocTypeInvoice && extraction.Invoice() != nil {
		inv := extraction.Invoice()
		if isBlank(inv.SupplierName) {
			errs = append(errs, "Missing supplier name")
		}
		if isBlank(inv.InvoiceNumber) {
			errs = append(errs, "Missing invoice number")
		}
		if isBlank(inv.InvoiceDate) {
			errs = append(errs, "Missing invoice date")
		}

		if inv.Total != nil {
			subtotal := decimalOrZero(inv.Subtotal)
			tax := decimalOrZero(inv.Tax)
			shipping := decimalOrZero(inv.Shipping)
			diff := subtotal.Add(tax).Add(shipping).Sub(*inv.Total).Abs()
			if diff.GreaterThan(mathTolerance) {
				mathBalanced = false
				errs = append(errs, fmt.Sprintf("Math error: Components (%s + %s + %s) do not equal Total (%s)",
					subtotal.String(), tax.String(), shipping.String(), inv.Total.String()))
			}
		} else {
			// Missing total also short-circuits the math check.
			errs = append(errs, "Missing total amount")
		}
	}

	for _, f := range extraction.Fields {
		if f.Confidence < lowConfidenceThreshold {
			errs = append(errs, fmt.Sprintf("Low confidence for field: %s (%d%%)",
				f.Key, int(math.Round(f.Confidence*100))))
		}
	}

	return ValidationResult{
		Valid:        len(errs) == 0,
		Errors:       errs,
		IsDuplicate:  isDuplicate,
		MathBalanced: mathBalanced,
	}
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func (v ValidationResult) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *ValidationResult) Scan(value interface{}) error {
	switch val := value.(type) {
	case []byte:
		return json.Unmarshal(val, v)
	case string:
		return json.Unmarshal([]byte(val), v)
	default:
		return errors.New("validation result must be stored as JSON")
	}
}
