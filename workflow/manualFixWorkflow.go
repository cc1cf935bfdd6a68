package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecordManualEdit replaces a document's extraction with a reviewer-corrected
// version, revalidates, and appends a MANUAL_FIX entry describing every field
// that changed. The document's status never changes here: corrections do not
// re-enter the automation gate, a human still has to approve.
func RecordManualEdit(ctx context.Context, documentId string, actor string, edited *models.ExtractionResult) (*models.DocumentRecord, error) {
	if edited == nil {
		return nil, fmt.Errorf("edited extraction is required")
	}

	db := config.GetDB()
	var doc *models.DocumentRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock, err := acquireDocumentLock(ctx, tx, documentId)
		if err != nil {
			return err
		}
		defer lock.release(ctx)

		doc, err = models.GetDocument(ctx, documentId)
		if err != nil {
			return err
		}

		changes := diffExtractions(doc.Extraction, edited)
		doc.Extraction = edited
		doc.Type = edited.DocType

		peers, err := models.GetPeerDocuments(tx, doc.UserId)
		if err != nil {
			return err
		}
		validation := models.ValidateExtraction(doc, peers)
		doc.Validation = &validation

		if err := doc.Save(tx, ctx); err != nil {
			return err
		}

		details := "Extraction edited manually."
		if len(changes) > 0 {
			details = "Edited: " + strings.Join(changes, "; ")
		}
		entry := models.NewAuditEntry(doc.ID, doc.UserId, actor, models.AuditActionManualFix, details)
		return models.AppendAuditEntry(tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// diffExtractions lists human-readable "key: old -> new" changes across the
// generic fields and the specialized invoice scalars.
func diffExtractions(before, after *models.ExtractionResult) []string {
	var changes []string

	oldFields := map[string]interface{}{}
	if before != nil {
		for _, f := range before.Fields {
			oldFields[f.Key] = f.Value
		}
	}
	for _, f := range after.Fields {
		old, seen := oldFields[f.Key]
		if !seen {
			changes = append(changes, fmt.Sprintf("%s: (none) -> %v", f.Key, f.Value))
			continue
		}
		if fmt.Sprintf("%v", old) != fmt.Sprintf("%v", f.Value) {
			changes = append(changes, fmt.Sprintf("%s: %v -> %v", f.Key, old, f.Value))
		}
	}

	var beforeInv *models.InvoiceData
	if before != nil {
		beforeInv = before.Invoice()
	}
	afterInv := after.Invoice()
	if afterInv != nil {
		changes = append(changes, diffInvoiceScalars(beforeInv, afterInv)...)
	}
	return changes
}

func diffInvoiceScalars(before, after *models.InvoiceData) []string {
	var changes []string
	str := func(name string, oldV, newV *string) {
		if !strEq(oldV, newV) {
			changes = append(changes, fmt.Sprintf("%s: %s -> %s", name, strOr(oldV), strOr(newV)))
		}
	}
	dec := func(name string, oldV, newV *decimal.Decimal) {
		if !decEq(oldV, newV) {
			changes = append(changes, fmt.Sprintf("%s: %s -> %s", name, decOr(oldV), decOr(newV)))
		}
	}

	var oldInv models.InvoiceData
	if before != nil {
		oldInv = *before
	}
	str("supplier_name", oldInv.SupplierName, after.SupplierName)
	str("invoice_number", oldInv.InvoiceNumber, after.InvoiceNumber)
	str("invoice_date", oldInv.InvoiceDate, after.InvoiceDate)
	str("due_date", oldInv.DueDate, after.DueDate)
	str("currency", oldInv.Currency, after.Currency)
	str("po_number", oldInv.PONumber, after.PONumber)
	dec("subtotal", oldInv.Subtotal, after.Subtotal)
	dec("tax", oldInv.Tax, after.Tax)
	dec("shipping", oldInv.Shipping, after.Shipping)
	dec("total", oldInv.Total, after.Total)
	return changes
}

func strEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func decEq(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func strOr(s *string) string {
	if s == nil {
		return "(none)"
	}
	return *s
}

func decOr(d *decimal.Decimal) string {
	if d == nil {
		return "(none)"
	}
	return d.String()
}
