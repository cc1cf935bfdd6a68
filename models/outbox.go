package models

import (
	"time"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/utils"
	"gorm.io/gorm"
)

// DocumentEventRecord is the transactional outbox row for document lifecycle
// events. Rows are written in the same transaction as the status change they
// describe; a dispatcher publishes them to Pub/Sub after commit.
type DocumentEventRecord struct {
	ID         int               `gorm:"primary_key;index:idx_outbox_dispatch,priority:2" json:"id"`
	UserId     string            `gorm:"size:36;not null;index" json:"user_id"`
	DocumentId string            `gorm:"size:36;not null;index" json:"document_id"`
	EventType  DocumentEventType `gorm:"size:40;not null" json:"event_type"`
	Status     DocStatus         `gorm:"size:20;not null" json:"status"`
	Payload    []byte            `gorm:"type:blob" json:"payload"`
	OccurredAt int64             `gorm:"not null" json:"occurred_at"`

	PublishStatus    OutboxPublishStatus `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time          `gorm:"index" json:"published_at"`
	PubSubMessageId  *string             `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time          `gorm:"index" json:"next_attempt_at"`
	LockedAt         *time.Time          `gorm:"index" json:"locked_at"`
	LockedBy         *string             `gorm:"size:100" json:"locked_by"`
	LastPublishError *string             `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToDocumentEvent(record DocumentEventRecord) config.DocumentEvent {
	return config.DocumentEvent{
		ID:            record.ID,
		UserId:        record.UserId,
		DocumentId:    record.DocumentId,
		Status:        string(record.Status),
		EventType:     string(record.EventType),
		OccurredAt:    time.UnixMilli(record.OccurredAt),
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}

// WriteDocumentEvent appends an outbox row inside the caller's transaction so
// the event commits or rolls back together with the document change.
func WriteDocumentEvent(tx *gorm.DB, doc *DocumentRecord, eventType DocumentEventType) error {
	correlationId, _ := utils.GetCorrelationIdFromContext(tx.Statement.Context)
	payload, err := utils.MarshalToJSON(doc)
	if err != nil {
		return err
	}
	record := DocumentEventRecord{
		UserId:        doc.UserId,
		DocumentId:    doc.ID,
		EventType:     eventType,
		Status:        doc.Status,
		Payload:       []byte(payload),
		OccurredAt:    time.Now().UnixMilli(),
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}
	return tx.Create(&record).Error
}
