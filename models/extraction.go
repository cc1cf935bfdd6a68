package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Evidence anchors an extracted value back to the source document.
type Evidence struct {
	Page  *int   `json:"page"`
	Quote string `json:"quote"`
}

type Field struct {
	Key        string      `json:"key"`
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
	Evidence   Evidence    `json:"evidence"`
}

type Table struct {
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
	Columns    []string   `json:"columns"`
	Rows       [][]string `json:"rows"`
	Evidence   Evidence   `json:"evidence"`
}

type LineItem struct {
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Amount      *decimal.Decimal `json:"amount"`
	Confidence  float64          `json:"confidence"`
}

// InvoiceData is the specialized extraction record for invoices. Monetary
// amounts are decimals in the document's stated currency, nil when the model
// could not read them.
type InvoiceData struct {
	SupplierName           *string          `json:"supplier_name"`
	InvoiceNumber          *string          `json:"invoice_number"`
	InvoiceDate            *string          `json:"invoice_date"`
	DueDate                *string          `json:"due_date"`
	Currency               *string          `json:"currency"`
	Subtotal               *decimal.Decimal `json:"subtotal"`
	Tax                    *decimal.Decimal `json:"tax"`
	Shipping               *decimal.Decimal `json:"shipping"`
	Total                  *decimal.Decimal `json:"total"`
	PONumber               *string          `json:"po_number"`
	LineItems              []LineItem       `json:"line_items"`
	GLCodeSuggestion       *string          `json:"gl_code_suggestion"`
	PaymentTerms           *string          `json:"payment_terms"`
	HasDiscountOpportunity bool             `json:"has_discount_opportunity"`
}

type PurchaseOrderData struct {
	BuyerName    *string          `json:"buyer_name"`
	SupplierName *string          `json:"supplier_name"`
	PONumber     *string          `json:"po_number"`
	PODate       *string          `json:"po_date"`
	Currency     *string          `json:"currency"`
	Total        *decimal.Decimal `json:"total"`
}

type Specialized struct {
	Invoice       *InvoiceData       `json:"invoice"`
	PurchaseOrder *PurchaseOrderData `json:"purchase_order"`
}

// notAValidDocumentPrefix is the warning the extraction model emits when the
// input is not a financial document at all (content firewall).
const notAValidDocumentPrefix = "NOT_A_VALID_DOCUMENT"

// ExtractionResult is the structured output of the external AI extraction
// call. The engine only consumes it; it never produces one.
type ExtractionResult struct {
	DocType     DocType     `json:"doc_type"`
	Summary     string      `json:"summary"`
	Language    *string     `json:"language"`
	Fields      []Field     `json:"fields"`
	Tables      []Table     `json:"tables"`
	Specialized Specialized `json:"specialized"`
	Warnings    []string    `json:"warnings"`
}

// Rejected reports whether the extraction classified the input as outside the
// set of processable financial documents.
func (e *ExtractionResult) Rejected() bool {
	if e == nil {
		return true
	}
	if e.DocType == DocTypeUnknown || e.DocType == "" {
		return true
	}
	for _, w := range e.Warnings {
		if strings.HasPrefix(strings.TrimSpace(w), notAValidDocumentPrefix) {
			return true
		}
	}
	return false
}

// RejectionMessage returns the firewall warning when present, or a generic
// classification message. Only meaningful when Rejected() is true.
func (e *ExtractionResult) RejectionMessage() string {
	if e != nil {
		for _, w := range e.Warnings {
			if strings.HasPrefix(strings.TrimSpace(w), notAValidDocumentPrefix) {
				return strings.TrimSpace(w)
			}
		}
	}
	return "Document classified as unknown; not a recognized financial instrument for AP processing."
}

// AverageFieldConfidence is the arithmetic mean over all extracted field
// confidences, 0 when there are no fields.
func (e *ExtractionResult) AverageFieldConfidence() float64 {
	if e == nil || len(e.Fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range e.Fields {
		sum += f.Confidence
	}
	return sum / float64(len(e.Fields))
}

func (e *ExtractionResult) Invoice() *InvoiceData {
	if e == nil {
		return nil
	}
	return e.Specialized.Invoice
}

/// gorm JSON column plumbing: the extraction blob is stored as-is; the engine
// never mutates it outside manual fixes.

func (e ExtractionResult) Value() (driver.Value, error) {
	return json.Marshal(e)
}

func (e *ExtractionResult) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, e)
	case string:
		return json.Unmarshal([]byte(v), e)
	default:
		return errors.New("extraction result must be stored as JSON")
	}
}
