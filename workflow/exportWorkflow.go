package workflow

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/models"
	"github.com/conrover/DocFlow/utils"
	"gorm.io/gorm"
)

var exportHTTPClient = &http.Client{Timeout: 30 * time.Second}

// StartExport queues an approved document for delivery to one of the user's
// destinations and moves it to EXPORTING.
func StartExport(ctx context.Context, documentId string, destinationId string, actor string) (*models.ExportJob, error) {
	dest, err := models.GetDestination(ctx, destinationId)
	if err != nil {
		return nil, err
	}
	if !dest.Enabled {
		return nil, fmt.Errorf("destination %s is disabled", dest.Name)
	}

	db := config.GetDB()
	var job *models.ExportJob
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock, err := acquireDocumentLock(ctx, tx, documentId)
		if err != nil {
			return err
		}
		defer lock.release(ctx)

		doc, err := models.GetDocument(ctx, documentId)
		if err != nil {
			return err
		}

		entry := models.NewAuditEntry(doc.ID, doc.UserId, actor, models.AuditActionExportStart,
			fmt.Sprintf("Export to %s (%s) queued.", dest.Name, dest.Type))
		if err := doc.Transition(tx, models.DocStatusExporting, entry); err != nil {
			return err
		}

		job, err = models.CreateExportJob(tx, doc.UserId, doc.ID, dest.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// RunExportWorker polls for pending export jobs until the context is done.
func RunExportWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		DispatchPendingExports(ctx)
	}
}

// DispatchPendingExports processes one batch of pending jobs.
func DispatchPendingExports(ctx context.Context) {
	db := config.GetDB()
	logger := config.GetLogger()

	// Worker runs without a request context; bypass the per-user scope.
	ctx = utils.SetSkipUserScopeInContext(ctx, true)

	jobs, err := models.GetPendingExportJobs(db.WithContext(ctx), 20)
	if err != nil {
		config.LogError(logger, "workflow", "DispatchPendingExports", "claim jobs", nil, err)
		return
	}
	for _, job := range jobs {
		if err := processExportJob(ctx, job); err != nil {
			config.LogError(logger, "workflow", "DispatchPendingExports", "process job", job.ID, err)
		}
	}
}

func processExportJob(ctx context.Context, job *models.ExportJob) error {
	db := config.GetDB()

	doc, err := models.GetDocument(ctx, job.DocumentId)
	if err != nil {
		return markExportFailed(ctx, job, err)
	}
	dest, err := models.GetDestination(ctx, job.DestinationId)
	if err != nil {
		return markExportFailed(ctx, job, err)
	}

	var artifactUri *string
	switch dest.Type {
	case models.DestinationTypeWebhook:
		err = deliverWebhook(ctx, dest.Endpoint, doc)
	default:
		// Connector and flat-file destinations all render a CSV artifact;
		// downstream pickup is destination-specific.
		artifactUri, err = renderCSVArtifact(ctx, doc, dest)
	}
	if err != nil {
		return markExportFailed(ctx, job, err)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock, lockErr := acquireDocumentLock(ctx, tx, doc.ID)
		if lockErr != nil {
			return lockErr
		}
		defer lock.release(ctx)

		updates := map[string]interface{}{
			"status":   models.ExportJobStatusCompleted,
			"attempts": gorm.Expr("attempts + 1"),
		}
		if artifactUri != nil {
			updates["artifact_uri"] = artifactUri
		}
		if err := tx.Model(&models.ExportJob{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
			return err
		}

		entry := models.NewAuditEntry(doc.ID, doc.UserId, "System", models.AuditActionExport,
			fmt.Sprintf("Exported to %s (%s).", dest.Name, dest.Type))
		if err := doc.Transition(tx, models.DocStatusExported, entry); err != nil {
			return err
		}
		return models.WriteDocumentEvent(tx, doc, models.DocumentEventExported)
	})
}

func markExportFailed(ctx context.Context, job *models.ExportJob, cause error) error {
	db := config.GetDB()
	msg := cause.Error()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ExportJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status":     models.ExportJobStatusFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": &msg,
		}).Error; err != nil {
			return err
		}

		// Put the document back in APPROVED so a reviewer can retry.
		doc, err := models.GetDocument(ctx, job.DocumentId)
		if err != nil {
			return err
		}
		if doc.Status != models.DocStatusExporting {
			return nil
		}
		entry := models.NewAuditEntry(doc.ID, doc.UserId, "System", models.AuditActionExport,
			"Export failed: "+msg)
		return doc.Transition(tx, models.DocStatusApproved, entry)
	})
	if err != nil {
		return err
	}
	return cause
}

func deliverWebhook(ctx context.Context, endpoint string, doc *models.DocumentRecord) error {
	payload, err := utils.MarshalToJSON(doc)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := exportHTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func renderCSVArtifact(ctx context.Context, doc *models.DocumentRecord, dest *models.Destination) (*string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{"key", "value"})
	_ = w.Write([]string{"document_id", doc.ID})
	_ = w.Write([]string{"filename", doc.Filename})
	_ = w.Write([]string{"doc_type", string(doc.Type)})
	if inv := doc.Extraction.Invoice(); inv != nil {
		_ = w.Write([]string{"supplier_name", strOr(inv.SupplierName)})
		_ = w.Write([]string{"invoice_number", strOr(inv.InvoiceNumber)})
		_ = w.Write([]string{"invoice_date", strOr(inv.InvoiceDate)})
		_ = w.Write([]string{"currency", strOr(inv.Currency)})
		_ = w.Write([]string{"subtotal", decOr(inv.Subtotal)})
		_ = w.Write([]string{"tax", decOr(inv.Tax)})
		_ = w.Write([]string{"shipping", decOr(inv.Shipping)})
		_ = w.Write([]string{"total", decOr(inv.Total)})
		_ = w.Write([]string{"po_number", strOr(inv.PONumber)})
	}
	if doc.Extraction != nil {
		for _, f := range doc.Extraction.Fields {
			_ = w.Write([]string{f.Key, fmt.Sprintf("%v", f.Value)})
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("exports/%s/%s-%s.csv", doc.UserId, dest.Type, doc.ID)
	if err := utils.SaveDocumentFile(ctx, key, buf.Bytes(), "text/csv"); err != nil {
		return nil, err
	}
	return &key, nil
}
