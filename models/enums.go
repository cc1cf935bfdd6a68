package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

type DocStatus string

const (
	DocStatusUploaded    DocStatus = "UPLOADED"
	DocStatusExtracting  DocStatus = "EXTRACTING"
	DocStatusNeedsReview DocStatus = "NEEDS_REVIEW"
	DocStatusApproved    DocStatus = "APPROVED"
	DocStatusRejected    DocStatus = "REJECTED"
	DocStatusExporting   DocStatus = "EXPORTING"
	DocStatusExported    DocStatus = "EXPORTED"
	DocStatusFailed      DocStatus = "FAILED"
)

func (s DocStatus) IsValid() bool {
	switch s {
	case DocStatusUploaded, DocStatusExtracting, DocStatusNeedsReview,
		DocStatusApproved, DocStatusRejected, DocStatusExporting,
		DocStatusExported, DocStatusFailed:
		return true
	}
	return false
}

func (s DocStatus) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid document status %q", string(s))
	}
	return string(s), nil
}

func (s *DocStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*s = DocStatus(v)
	case []byte:
		*s = DocStatus(v)
	default:
		return errors.New("document status must be string")
	}
	if !s.IsValid() {
		return fmt.Errorf("invalid document status %q", string(*s))
	}
	return nil
}

type DocType string

const (
	DocTypeInvoice       DocType = "invoice"
	DocTypePurchaseOrder DocType = "purchase_order"
	DocTypeReceipt       DocType = "receipt"
	DocTypePackingList   DocType = "packing_list"
	DocTypeBillOfLading  DocType = "bill_of_lading"
	DocTypeContract      DocType = "contract"
	DocTypeStatement     DocType = "statement"
	DocTypeUnknown       DocType = "unknown"
)

func (t DocType) IsValid() bool {
	switch t {
	case DocTypeInvoice, DocTypePurchaseOrder, DocTypeReceipt, DocTypePackingList,
		DocTypeBillOfLading, DocTypeContract, DocTypeStatement, DocTypeUnknown:
		return true
	}
	return false
}

type IngestionSource string

const (
	IngestionSourceManual IngestionSource = "MANUAL"
	IngestionSourceEmail  IngestionSource = "EMAIL"
	IngestionSourceAPI    IngestionSource = "API"
)

func (s IngestionSource) IsValid() bool {
	switch s {
	case IngestionSourceManual, IngestionSourceEmail, IngestionSourceAPI:
		return true
	}
	return false
}

// MatchResult is the outcome of one leg of a three-way match.
type MatchResult string

const (
	MatchResultMatched  MatchResult = "MATCHED"
	MatchResultVariance MatchResult = "VARIANCE"
	MatchResultNotFound MatchResult = "NOT_FOUND"
)

type AuditAction string

const (
	AuditActionIngest      AuditAction = "INGEST"
	AuditActionReprocess   AuditAction = "REPROCESS"
	AuditActionExtract     AuditAction = "EXTRACT"
	AuditActionFail        AuditAction = "EXTRACTION_FAILED"
	AuditActionApprove     AuditAction = "APPROVE"
	AuditActionAutoApprove AuditAction = "AUTO_APPROVE"
	AuditActionReject      AuditAction = "REJECT"
	AuditActionManualFix   AuditAction = "MANUAL_FIX"
	AuditActionExportStart AuditAction = "EXPORT_START"
	AuditActionExport      AuditAction = "EXPORT"
)

// Error codes carried on DocumentRecord.lastError. INVALID_DOC_TYPE is a
// content-firewall rejection; AI_FAILURE is an infrastructure failure.
const (
	ErrorCodeAIFailure      = "AI_FAILURE"
	ErrorCodeInvalidDocType = "INVALID_DOC_TYPE"
)

// AutomationActor attributes audit entries written by the auto-approval
// policy rather than a human reviewer.
const AutomationActor = "Automation Policy"

// MailDaemonActor attributes audit entries for documents arriving over the
// inbound email channel.
const MailDaemonActor = "Mail Daemon"

type ExportJobStatus string

const (
	ExportJobStatusPending   ExportJobStatus = "PENDING"
	ExportJobStatusCompleted ExportJobStatus = "COMPLETED"
	ExportJobStatusFailed    ExportJobStatus = "FAILED"
)

type DestinationType string

const (
	DestinationTypeWebhook   DestinationType = "webhook"
	DestinationTypeCSV       DestinationType = "csv"
	DestinationTypeAribaCXML DestinationType = "ariba_cxml"
	DestinationTypeNetSuite  DestinationType = "netsuite"
	DestinationTypeDynamics  DestinationType = "dynamics"
	DestinationTypeCoupa     DestinationType = "coupa"
)

func (t DestinationType) IsValid() bool {
	switch t {
	case DestinationTypeWebhook, DestinationTypeCSV, DestinationTypeAribaCXML,
		DestinationTypeNetSuite, DestinationTypeDynamics, DestinationTypeCoupa:
		return true
	}
	return false
}

type DocumentEventType string

const (
	DocumentEventApproved DocumentEventType = "DOCUMENT_APPROVED"
	DocumentEventRejected DocumentEventType = "DOCUMENT_REJECTED"
	DocumentEventFailed   DocumentEventType = "DOCUMENT_FAILED"
	DocumentEventExported DocumentEventType = "DOCUMENT_EXPORTED"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusPublishing OutboxPublishStatus = "PUBLISHING"
	OutboxPublishStatusPublished  OutboxPublishStatus = "PUBLISHED"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)
