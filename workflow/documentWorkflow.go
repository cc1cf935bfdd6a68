package workflow

import (
	"context"
	"fmt"
	"mime"
	"path"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/models"
	"github.com/conrover/DocFlow/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Extractor abstracts the AI extraction call. Production uses the Gemini
// client; tests substitute a fake.
type Extractor interface {
	Extract(ctx context.Context, content []byte, mimeType string, filename string) (*models.ExtractionResult, error)
}

// IngestInput is one inbound document regardless of channel.
type IngestInput struct {
	Filename string
	MimeType string
	Content  []byte
	Source   models.IngestionSource
	// Actor overrides the audit actor for the INGEST entry. Empty means the
	// channel default (authenticated user name, or the mail daemon for EMAIL).
	Actor string
}

// ProcessInboundDocument runs the full pipeline for one document: persist the
// raw file, create the record, extract, validate, and apply the automation
// policy. The returned record is in NEEDS_REVIEW, APPROVED or FAILED.
func ProcessInboundDocument(ctx context.Context, extractor Extractor, input IngestInput) (*models.DocumentRecord, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, utils.ErrorUnauthorized
	}
	if !input.Source.IsValid() {
		return nil, fmt.Errorf("unknown ingestion source %q", input.Source)
	}

	db := config.GetDB()
	logger := config.GetLogger()

	id := uuid.NewString()
	fileKey := fmt.Sprintf("documents/%s/%s%s", userId, id, path.Ext(input.Filename))
	if err := utils.SaveDocumentFile(ctx, fileKey, input.Content, input.MimeType); err != nil {
		config.LogError(logger, "workflow", "ProcessInboundDocument", "save file", input.Filename, err)
		return nil, err
	}

	doc := &models.DocumentRecord{
		ID:       id,
		UserId:   userId,
		Filename: input.Filename,
		Source:   input.Source,
		Status:   models.DocStatusUploaded,
		Type:     models.DocTypeUnknown,
		FileKey:  fileKey,
	}

	actor := ingestActor(ctx, input)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := doc.Store(tx, ctx); err != nil {
			return err
		}
		entry := models.NewAuditEntry(doc.ID, doc.UserId, actor, models.AuditActionIngest,
			fmt.Sprintf("Document received via %s.", input.Source))
		return doc.Transition(tx, models.DocStatusExtracting, entry)
	})
	if err != nil {
		return nil, err
	}

	return runExtraction(ctx, extractor, doc, input.Content, input.MimeType)
}

// ReprocessDocument re-reads the stored file and runs the pipeline again.
// Legal from NEEDS_REVIEW, FAILED and REJECTED. The automation policy is
// re-evaluated with its current settings, exactly as on first ingestion.
func ReprocessDocument(ctx context.Context, extractor Extractor, documentId string, actor string) (*models.DocumentRecord, error) {
	db := config.GetDB()
	logger := config.GetLogger()

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
		entry := models.NewAuditEntry(doc.ID, doc.UserId, actor, models.AuditActionReprocess,
			"Reprocessing requested; previous extraction discarded.")
		return doc.Transition(tx, models.DocStatusExtracting, entry)
	})
	if err != nil {
		return nil, err
	}

	content, err := utils.ReadDocumentFile(ctx, doc.FileKey)
	if err != nil {
		config.LogError(logger, "workflow", "ReprocessDocument", "read file", doc.FileKey, err)
		return failExtraction(ctx, doc, models.ErrorCodeAIFailure, "stored file unavailable: "+err.Error())
	}

	return runExtraction(ctx, extractor, doc, content, mime.TypeByExtension(path.Ext(doc.Filename)))
}

// runExtraction drives a document already in EXTRACTING through extraction,
// validation and the auto-approval decision.
func runExtraction(ctx context.Context, extractor Extractor, doc *models.DocumentRecord, content []byte, mimeType string) (*models.DocumentRecord, error) {
	logger := config.GetLogger()

	extraction, err := extractor.Extract(ctx, content, mimeType, doc.Filename)
	if err != nil {
		config.LogError(logger, "workflow", "runExtraction", "extract", doc.ID, err)
		return failExtraction(ctx, doc, models.ErrorCodeAIFailure, err.Error())
	}
	if extraction.Rejected() {
		doc.Extraction = extraction
		return failExtraction(ctx, doc, models.ErrorCodeInvalidDocType, extraction.RejectionMessage())
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock, err := acquireDocumentLock(ctx, tx, doc.ID)
		if err != nil {
			return err
		}
		defer lock.release(ctx)

		doc.Type = extraction.DocType
		doc.Extraction = extraction
		doc.LastError = nil

		peers, err := models.GetPeerDocuments(tx, doc.UserId)
		if err != nil {
			return err
		}
		validation := models.ValidateExtraction(doc, peers)
		doc.Validation = &validation

		extractEntry := models.NewAuditEntry(doc.ID, doc.UserId, "System", models.AuditActionExtract,
			fmt.Sprintf("Extraction complete: %s, %d fields, avg confidence %.1f%%.",
				doc.Type, len(extraction.Fields), extraction.AverageFieldConfidence()*100))

		policy, err := models.LoadPolicy(ctx, doc.UserId)
		if err != nil {
			return err
		}
		decision := DecideAutoApproval(extraction, validation, policy)
		if decision.Approve {
			if err := models.AppendAuditEntry(tx, extractEntry); err != nil {
				return err
			}
			autoEntry := models.NewAuditEntry(doc.ID, doc.UserId, models.AutomationActor,
				models.AuditActionAutoApprove, decision.Reason)
			if err := doc.Transition(tx, models.DocStatusApproved, autoEntry); err != nil {
				return err
			}
			return models.WriteDocumentEvent(tx, doc, models.DocumentEventApproved)
		}
		return doc.Transition(tx, models.DocStatusNeedsReview, extractEntry)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// failExtraction parks the document in FAILED with a structured lastError.
func failExtraction(ctx context.Context, doc *models.DocumentRecord, code string, message string) (*models.DocumentRecord, error) {
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc.LastError = &models.LastError{Code: code, Message: message}
		entry := models.NewAuditEntry(doc.ID, doc.UserId, "System", models.AuditActionFail, message)
		if err := doc.Transition(tx, models.DocStatusFailed, entry); err != nil {
			return err
		}
		return models.WriteDocumentEvent(tx, doc, models.DocumentEventFailed)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func ingestActor(ctx context.Context, input IngestInput) string {
	if input.Actor != "" {
		return input.Actor
	}
	if input.Source == models.IngestionSourceEmail {
		return models.MailDaemonActor
	}
	if name, ok := utils.GetUserNameFromContext(ctx); ok && name != "" {
		return name
	}
	return "System"
}
