package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/models"
	"gorm.io/gorm"
)

// AutoApprovalDecision explains why a document did or did not clear the
// automation gate. The reason is quoted verbatim in the audit trail.
type AutoApprovalDecision struct {
	Approve bool
	Reason  string
}

// DecideAutoApproval applies the automation policy to one freshly validated
// document. All gates are independent: a disabled policy, an invalid
// document, a duplicate, any validation error, or confidence below the
// threshold each block approval on their own.
func DecideAutoApproval(extraction *models.ExtractionResult, validation models.ValidationResult, policy models.AutomationPolicy) AutoApprovalDecision {
	if !policy.AutoApproveEnabled {
		return AutoApprovalDecision{Approve: false, Reason: "auto-approval disabled"}
	}
	if !validation.Valid {
		return AutoApprovalDecision{Approve: false, Reason: "validation failed"}
	}
	if validation.IsDuplicate {
		return AutoApprovalDecision{Approve: false, Reason: "duplicate detected"}
	}
	if len(validation.Errors) > 0 {
		return AutoApprovalDecision{Approve: false, Reason: "validation errors present"}
	}

	avg := extraction.AverageFieldConfidence()
	threshold := policy.AutoApproveThreshold / 100
	if avg < threshold {
		return AutoApprovalDecision{
			Approve: false,
			Reason:  fmt.Sprintf("confidence %.1f%% below threshold %.0f%%", avg*100, policy.AutoApproveThreshold),
		}
	}
	return AutoApprovalDecision{
		Approve: true,
		Reason:  fmt.Sprintf("Auto-approved: confidence %.1f%% met threshold %.0f%%.", avg*100, policy.AutoApproveThreshold),
	}
}

// ApproveDocument records a manual approval. Legal from NEEDS_REVIEW (the
// usual path), and from REJECTED or EXPORTING when a reviewer overrides.
func ApproveDocument(ctx context.Context, documentId string, actor string) (*models.DocumentRecord, error) {
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

		entry := models.NewAuditEntry(doc.ID, doc.UserId, actor, models.AuditActionApprove,
			"Verified manually. Audit exception cleared.")
		if err := doc.Transition(tx, models.DocStatusApproved, entry); err != nil {
			return err
		}
		return models.WriteDocumentEvent(tx, doc, models.DocumentEventApproved)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// RejectDocument records a manual rejection with a mandatory reason. A blank
// reason is a no-op: no status change and no audit entry.
func RejectDocument(ctx context.Context, documentId string, actor string, reason string) (*models.DocumentRecord, error) {
	doc, err := models.GetDocument(ctx, documentId)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return doc, nil
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock, err := acquireDocumentLock(ctx, tx, documentId)
		if err != nil {
			return err
		}
		defer lock.release(ctx)

		// Re-read under the lock.
		doc, err = models.GetDocument(ctx, documentId)
		if err != nil {
			return err
		}

		doc.RejectionReason = &reason
		entry := models.NewAuditEntry(doc.ID, doc.UserId, actor, models.AuditActionReject, reason)
		if err := doc.Transition(tx, models.DocStatusRejected, entry); err != nil {
			return err
		}
		return models.WriteDocumentEvent(tx, doc, models.DocumentEventRejected)
	})
	if err != nil {
		config.LogError(config.GetLogger(), "workflow", "RejectDocument", "reject", map[string]string{"document_id": documentId}, err)
		return nil, err
	}
	return doc, nil
}
