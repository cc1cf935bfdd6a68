package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/models"
	"github.com/conrover/DocFlow/utils"
	"github.com/xuri/excelize/v2"
)

type DocumentStatusCount struct {
	Status models.DocStatus `json:"status"`
	Count  int64            `json:"count"`
}

type DocumentSummary struct {
	TotalDocuments  int64                 `json:"total_documents"`
	StatusCounts    []DocumentStatusCount `json:"status_counts"`
	DuplicateCount  int64                 `json:"duplicate_count"`
	FailedCount     int64                 `json:"failed_count"`
	AutoApproved    int64                 `json:"auto_approved"`
	ManualApproved  int64                 `json:"manual_approved"`
	AutoApprovalPct float64               `json:"auto_approval_pct"`
	MatchedCleanly  int64                 `json:"matched_cleanly"`
	MatchRatePct    float64               `json:"match_rate_pct"`
}

// GetDocumentSummary aggregates the pipeline's disposition for one user:
// status breakdown, duplicates flagged by validation, and how much of the
// approval volume automation handled.
func GetDocumentSummary(ctx context.Context) (*DocumentSummary, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	summary := DocumentSummary{}

	err := db.WithContext(ctx).Raw(`
			SELECT status, COUNT(*) AS count
			FROM document_records
			WHERE user_id = ?
			GROUP BY status
			ORDER BY status;
		`, userId).Scan(&summary.StatusCounts).Error
	if err != nil {
		return nil, err
	}
	for _, sc := range summary.StatusCounts {
		summary.TotalDocuments += sc.Count
		if sc.Status == models.DocStatusFailed {
			summary.FailedCount = sc.Count
		}
	}

	err = db.WithContext(ctx).Raw(`
			SELECT COUNT(*)
			FROM document_records
			WHERE user_id = ?
			AND JSON_EXTRACT(validation, '$.isDuplicate') = true;
		`, userId).Scan(&summary.DuplicateCount).Error
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Raw(`
			SELECT COUNT(*)
			FROM audit_entries
			WHERE user_id = ?
			AND action = ?;
		`, userId, models.AuditActionAutoApprove).Scan(&summary.AutoApproved).Error
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Raw(`
			SELECT COUNT(*)
			FROM audit_entries
			WHERE user_id = ?
			AND action = ?;
		`, userId, models.AuditActionApprove).Scan(&summary.ManualApproved).Error
	if err != nil {
		return nil, err
	}

	if total := summary.AutoApproved + summary.ManualApproved; total > 0 {
		summary.AutoApprovalPct = float64(summary.AutoApproved) / float64(total) * 100
	}

	// Match state is derived, never stored, so the match rate is recomputed
	// over the user's invoices on every report run.
	docs, err := models.GetDocuments(ctx)
	if err != nil {
		return nil, err
	}
	matcher := models.SimulatedMatcher{}
	var invoices int64
	for _, doc := range docs {
		if doc.Type != models.DocTypeInvoice {
			continue
		}
		invoices++
		state := matcher.Match(doc)
		if state.POMatch == models.MatchResultMatched && state.ReceiptMatch == models.MatchResultMatched {
			summary.MatchedCleanly++
		}
	}
	if invoices > 0 {
		summary.MatchRatePct = float64(summary.MatchedCleanly) / float64(invoices) * 100
	}

	return &summary, nil
}

// ExportDocumentSummaryExcel writes the summary as an XLSX download.
func ExportDocumentSummaryExcel(w http.ResponseWriter, ctx context.Context) error {
	summary, err := GetDocumentSummary(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "Status")
	f.SetCellValue(sheet, "B1", "Count")
	row := 2
	for _, sc := range summary.StatusCounts {
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), string(sc.Status))
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), sc.Count)
		row++
	}
	row++
	f.SetCellValue(sheet, "A"+fmt.Sprint(row), "Total")
	f.SetCellValue(sheet, "B"+fmt.Sprint(row), summary.TotalDocuments)
	row++
	f.SetCellValue(sheet, "A"+fmt.Sprint(row), "Duplicates")
	f.SetCellValue(sheet, "B"+fmt.Sprint(row), summary.DuplicateCount)
	row++
	f.SetCellValue(sheet, "A"+fmt.Sprint(row), "AutoApproved")
	f.SetCellValue(sheet, "B"+fmt.Sprint(row), summary.AutoApproved)
	row++
	f.SetCellValue(sheet, "A"+fmt.Sprint(row), "ManualApproved")
	f.SetCellValue(sheet, "B"+fmt.Sprint(row), summary.ManualApproved)
	row++
	f.SetCellValue(sheet, "A"+fmt.Sprint(row), "AutoApprovalPct")
	f.SetCellValue(sheet, "B"+fmt.Sprint(row), summary.AutoApprovalPct)
	row++
	f.SetCellValue(sheet, "A"+fmt.Sprint(row), "MatchedCleanly")
	f.SetCellValue(sheet, "B"+fmt.Sprint(row), summary.MatchedCleanly)
	row++
	f.SetCellValue(sheet, "A"+fmt.Sprint(row), "MatchRatePct")
	f.SetCellValue(sheet, "B"+fmt.Sprint(row), summary.MatchRatePct)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=document-summary.xlsx")
	return f.Write(w)
}
