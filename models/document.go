package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/utils"
	"gorm.io/gorm"
)

var ErrIllegalTransition = errors.New("illegal document status transition")

// LastError is the structured failure attached to a FAILED document. The
// message must be readable in the audit trail without further lookups.
type LastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e LastError) Value() (driver.Value, error) {
	return json.Marshal(e)
}

func (e *LastError) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, e)
	case string:
		return json.Unmarshal([]byte(v), e)
	default:
		return errors.New("last error must be stored as JSON")
	}
}

// DocumentRecord is owned by exactly one user and mutated only through
// lifecycle transitions. The engine never deletes records; deletion is an
// external concern. Timestamps are milliseconds since epoch.
type DocumentRecord struct {
	ID              string            `gorm:"primary_key;size:36" json:"id"`
	UserId          string            `gorm:"size:36;index;not null" json:"userId"`
	Filename        string            `gorm:"size:255;not null" json:"filename"`
	Source          IngestionSource   `gorm:"size:10;not null" json:"source"`
	Status          DocStatus         `gorm:"size:20;not null" json:"status"`
	Type            DocType           `gorm:"size:20;not null" json:"type"`
	CreatedAt       int64             `gorm:"autoCreateTime:milli" json:"createdAt"`
	UpdatedAt       int64             `gorm:"autoUpdateTime:milli" json:"updatedAt"`
	FileKey         string            `gorm:"size:512;not null" json:"fileKey"`
	Extraction      *ExtractionResult `gorm:"type:json" json:"extraction,omitempty"`
	Validation      *ValidationResult `gorm:"type:json" json:"validation,omitempty"`
	RejectionReason *string           `gorm:"size:1000" json:"rejectionReason,omitempty"`
	LastError       *LastError        `gorm:"type:json" json:"lastError,omitempty"`

	// Read-side association only; rows are written through AppendAuditEntry.
	AuditTrail []AuditEntry `gorm:"foreignKey:DocumentId;references:ID" json:"auditTrail,omitempty"`
}

// legalTransitions is the full lifecycle:
// UPLOADED -> EXTRACTING -> {NEEDS_REVIEW | FAILED | APPROVED},
// review states re-enter EXTRACTING via reprocess, a REJECTED document can be
// re-approved once corrected, and only APPROVED work reaches EXPORTED.
var legalTransitions = map[DocStatus][]DocStatus{
	DocStatusUploaded:    {DocStatusExtracting},
	DocStatusExtracting:  {DocStatusNeedsReview, DocStatusApproved, DocStatusFailed},
	DocStatusNeedsReview: {DocStatusApproved, DocStatusRejected, DocStatusExtracting},
	DocStatusFailed:      {DocStatusExtracting},
	DocStatusRejected:    {DocStatusExtracting, DocStatusApproved},
	DocStatusApproved:    {DocStatusExporting, DocStatusExported},
	DocStatusExporting:   {DocStatusExported, DocStatusApproved},
	DocStatusExported:    {},
}

func CanTransition(from, to DocStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the document to a new status and appends exactly one
// audit entry, atomically within the caller's transaction. Approval clears
// any earlier rejection reason.
func (d *DocumentRecord) Transition(tx *gorm.DB, to DocStatus, entry AuditEntry) error {
	if !CanTransition(d.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, d.Status, to)
	}

	d.Status = to
	if to == DocStatusApproved {
		d.RejectionReason = nil
	}
	if err := tx.Save(d).Error; err != nil {
		return err
	}

	entry.DocumentId = d.ID
	entry.UserId = d.UserId
	return AppendAuditEntry(tx, entry)
}

func (d *DocumentRecord) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(d).Error
}

// Save upserts by primary key; the last completed pipeline run wins.
func (d *DocumentRecord) Save(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Save(d).Error
}

// GetDocument loads one record, enforcing user ownership (fail closed)
// unless explicitly bypassed for admin/internal ops.
func GetDocument(ctx context.Context, id string) (*DocumentRecord, error) {
	var result DocumentRecord
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&result, "id = ?", id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	if skip, ok := utils.GetSkipUserScopeFromContext(ctx); ok && skip {
		return &result, nil
	}
	if isAdmin, ok := utils.GetIsAdminFromContext(ctx); ok && isAdmin {
		return &result, nil
	}

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}
	if result.UserId != userId {
		return nil, utils.ErrorUnauthorized
	}
	return &result, nil
}

// GetDocuments lists the requesting user's documents, newest first.
func GetDocuments(ctx context.Context) ([]*DocumentRecord, error) {
	db := config.GetDB()
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}

	var results []*DocumentRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetPeerDocuments reads the full document set for one user; the duplicate
// check needs the state as of validation time ("read your own writes"
// within a user's scope is sufficient isolation).
func GetPeerDocuments(tx *gorm.DB, userId string) ([]*DocumentRecord, error) {
	var results []*DocumentRecord
	err := tx.Where("user_id = ?", userId).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteDocument removes a record and its stored file. This is outside the
// lifecycle contract (no transition, no audit row survives the record).
func DeleteDocument(ctx context.Context, id string) error {
	doc, err := GetDocument(ctx, id)
	if err != nil {
		return err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("document_id = ?", doc.ID).Delete(&AuditEntry{}).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Delete(doc).Error; err != nil {
		return err
	}
	if doc.FileKey != "" {
		if err := utils.DeleteDocumentFile(ctx, doc.FileKey); err != nil {
			return err
		}
	}
	return nil
}
