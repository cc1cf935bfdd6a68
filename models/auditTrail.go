package models

import (
	"context"
	"errors"
	"time"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/utils"
	"gorm.io/gorm"
)

// AuditEntry rows are the only who/when/why history a document has. The
// table is append-only: this package exposes no update or delete for it, and
// every state-changing operation writes at least one row. Timestamps are
// milliseconds since epoch (the ingestion wire contract).
type AuditEntry struct {
	ID         int         `gorm:"primary_key" json:"-"`
	DocumentId string      `gorm:"size:36;index;not null" json:"-"`
	UserId     string      `gorm:"size:36;index;not null" json:"-"`
	Timestamp  int64       `gorm:"not null" json:"timestamp"`
	Actor      string      `gorm:"size:100;not null" json:"user"`
	Action     AuditAction `gorm:"size:30;not null" json:"action"`
	Details    string      `gorm:"type:text" json:"details"`
}

func NewAuditEntry(documentId, userId, actor string, action AuditAction, details string) AuditEntry {
	return AuditEntry{
		DocumentId: documentId,
		UserId:     userId,
		Timestamp:  time.Now().UnixMilli(),
		Actor:      actor,
		Action:     action,
		Details:    details,
	}
}

// AppendAuditEntry writes one immutable entry inside the caller's
// transaction so the entry commits or rolls back with the transition that
// produced it.
func AppendAuditEntry(tx *gorm.DB, entry AuditEntry) error {
	if entry.DocumentId == "" {
		return errors.New("audit entry requires a document id")
	}
	if entry.Actor == "" {
		return errors.New("audit entry requires an actor")
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	return tx.Create(&entry).Error
}

// GetAuditTrail returns the document's full trail in chronological order.
// The id tiebreak keeps entries written in the same millisecond stable.
func GetAuditTrail(ctx context.Context, documentId string) ([]*AuditEntry, error) {
	db := config.GetDB()
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}

	var entries []*AuditEntry
	err := db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentId, userId).
		Order("timestamp ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
