package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/models"
	"github.com/conrover/DocFlow/utils"
	"github.com/conrover/DocFlow/workflow"
	"github.com/shopspring/decimal"
)

type stubExtractor struct {
	result *models.ExtractionResult
	err    error
}

func (s stubExtractor) Extract(ctx context.Context, content []byte, mimeType string, filename string) (*models.ExtractionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	// Deep-ish copy so callers mutating the record do not share state.
	out := *s.result
	return &out, nil
}

func invoiceExtraction(supplier, number string, total float64, confidence float64) *models.ExtractionResult {
	totalDec := decimal.NewFromFloat(total)
	subtotal := totalDec
	zero := decimal.Zero
	date := "2025-06-01"
	return &models.ExtractionResult{
		DocType: models.DocTypeInvoice,
		Summary: "test invoice",
		Fields: []models.Field{
			{Key: "supplier_name", Value: supplier, Confidence: confidence},
			{Key: "invoice_number", Value: number, Confidence: confidence},
			{Key: "total", Value: fmt.Sprintf("%.2f", total), Confidence: confidence},
		},
		Specialized: models.Specialized{
			Invoice: &models.InvoiceData{
				SupplierName:  &supplier,
				InvoiceNumber: &number,
				InvoiceDate:   &date,
				Subtotal:      &subtotal,
				Tax:           &zero,
				Shipping:      &zero,
				Total:         &totalDec,
			},
		},
	}
}

func TestDocumentPipeline_EndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "docflow_test")
	t.Setenv("STORAGE_PROVIDER", "local")
	t.Setenv("STORAGE_LOCAL_DIR", t.TempDir())

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	user, err := models.CreateUser(ctx, &models.NewUser{
		Email:    "reviewer@example.com",
		Password: "test-password-1",
		Name:     "Reviewer",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	ctx = utils.SetUserIdInContext(ctx, user.ID)
	ctx = utils.SetUserNameInContext(ctx, user.Name)

	good := stubExtractor{result: invoiceExtraction("Acme Corp", "INV-100", 108, 0.99)}

	// 1) Policy disabled: a clean document lands in NEEDS_REVIEW.
	doc, err := workflow.ProcessInboundDocument(ctx, good, workflow.IngestInput{
		Filename: "inv-100.pdf",
		MimeType: "application/pdf",
		Content:  []byte("%PDF-1.4 test"),
		Source:   models.IngestionSourceManual,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if doc.Status != models.DocStatusNeedsReview {
		t.Fatalf("expected NEEDS_REVIEW with automation disabled, got %s", doc.Status)
	}

	trail, err := models.GetAuditTrail(ctx, doc.ID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	if len(trail) < 2 {
		t.Fatalf("expected at least INGEST and EXTRACT entries, got %d", len(trail))
	}
	if trail[0].Action != models.AuditActionIngest {
		t.Fatalf("first entry should be INGEST, got %s", trail[0].Action)
	}
	for i := 1; i < len(trail); i++ {
		if trail[i].Timestamp < trail[i-1].Timestamp {
			t.Fatal("audit trail must be chronological")
		}
	}

	// 2) Enable automation and ingest a distinct invoice: auto-approved.
	db := config.GetDB()
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"auto_approve_enabled":   true,
		"auto_approve_threshold": 95,
	}).Error; err != nil {
		t.Fatalf("enable policy: %v", err)
	}

	good2 := stubExtractor{result: invoiceExtraction("Acme Corp", "INV-101", 250, 0.99)}
	doc2, err := workflow.ProcessInboundDocument(ctx, good2, workflow.IngestInput{
		Filename: "inv-101.pdf",
		MimeType: "application/pdf",
		Content:  []byte("%PDF-1.4 test2"),
		Source:   models.IngestionSourceManual,
	})
	if err != nil {
		t.Fatalf("ingest 2: %v", err)
	}
	if doc2.Status != models.DocStatusApproved {
		t.Fatalf("expected auto-approval, got %s", doc2.Status)
	}
	trail2, _ := models.GetAuditTrail(ctx, doc2.ID)
	foundAuto := false
	for _, e := range trail2 {
		if e.Action == models.AuditActionAutoApprove {
			foundAuto = true
			if e.Actor != models.AutomationActor {
				t.Fatalf("auto-approval actor should be %q, got %q", models.AutomationActor, e.Actor)
			}
		}
	}
	if !foundAuto {
		t.Fatal("expected an AUTO_APPROVE audit entry")
	}

	// 3) Duplicate of doc2 is blocked from auto-approval despite high confidence.
	dup, err := workflow.ProcessInboundDocument(ctx, good2, workflow.IngestInput{
		Filename: "inv-101-copy.pdf",
		MimeType: "application/pdf",
		Content:  []byte("%PDF-1.4 test2 again"),
		Source:   models.IngestionSourceManual,
	})
	if err != nil {
		t.Fatalf("ingest duplicate: %v", err)
	}
	if dup.Status != models.DocStatusNeedsReview {
		t.Fatalf("duplicate should need review, got %s", dup.Status)
	}
	if dup.Validation == nil || !dup.Validation.IsDuplicate {
		t.Fatalf("duplicate flag not set: %+v", dup.Validation)
	}

	// 4) Blank rejection reason is a no-op.
	before := dup.Status
	same, err := workflow.RejectDocument(ctx, dup.ID, "Reviewer", "   ")
	if err != nil {
		t.Fatalf("blank reject: %v", err)
	}
	if same.Status != before {
		t.Fatalf("blank reason must not change status, got %s", same.Status)
	}

	// 5) Real rejection records the reason.
	rejected, err := workflow.RejectDocument(ctx, dup.ID, "Reviewer", "Duplicate of INV-101")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != models.DocStatusRejected {
		t.Fatalf("expected REJECTED, got %s", rejected.Status)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != "Duplicate of INV-101" {
		t.Fatalf("rejection reason not recorded: %v", rejected.RejectionReason)
	}

	// 6) Manual approval clears the rejection reason.
	approved, err := workflow.ApproveDocument(ctx, doc.ID, "Reviewer")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != models.DocStatusApproved {
		t.Fatalf("expected APPROVED, got %s", approved.Status)
	}

	// 7) Extractor failure parks the document in FAILED with AI_FAILURE,
	// and reprocessing with a healthy extractor recovers it.
	broken := stubExtractor{err: errors.New("model unavailable")}
	failed, err := workflow.ProcessInboundDocument(ctx, broken, workflow.IngestInput{
		Filename: "inv-102.pdf",
		MimeType: "application/pdf",
		Content:  []byte("%PDF-1.4 test3"),
		Source:   models.IngestionSourceManual,
	})
	if err != nil {
		t.Fatalf("ingest with broken extractor: %v", err)
	}
	if failed.Status != models.DocStatusFailed {
		t.Fatalf("expected FAILED, got %s", failed.Status)
	}
	if failed.LastError == nil || failed.LastError.Code != models.ErrorCodeAIFailure {
		t.Fatalf("expected AI_FAILURE last error, got %+v", failed.LastError)
	}

	good3 := stubExtractor{result: invoiceExtraction("Beta LLC", "INV-102", 75, 0.90)}
	recovered, err := workflow.ReprocessDocument(ctx, good3, failed.ID, "Reviewer")
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if recovered.Status != models.DocStatusNeedsReview {
		t.Fatalf("expected NEEDS_REVIEW after reprocess (0.90 < 95%%), got %s", recovered.Status)
	}
	if recovered.LastError != nil {
		t.Fatalf("last error should clear on successful reprocess, got %+v", recovered.LastError)
	}

	// 8) Firewall rejection surfaces as INVALID_DOC_TYPE.
	firewall := stubExtractor{result: &models.ExtractionResult{
		DocType:  models.DocTypeUnknown,
		Warnings: []string{"NOT_A_VALID_DOCUMENT: The uploaded file is not a recognized financial instrument for AP processing."},
	}}
	catPhoto, err := workflow.ProcessInboundDocument(ctx, firewall, workflow.IngestInput{
		Filename: "cat.jpg",
		MimeType: "image/jpeg",
		Content:  []byte("not a document"),
		Source:   models.IngestionSourceManual,
	})
	if err != nil {
		t.Fatalf("ingest firewall: %v", err)
	}
	if catPhoto.Status != models.DocStatusFailed {
		t.Fatalf("expected FAILED, got %s", catPhoto.Status)
	}
	if catPhoto.LastError == nil || catPhoto.LastError.Code != models.ErrorCodeInvalidDocType {
		t.Fatalf("expected INVALID_DOC_TYPE, got %+v", catPhoto.LastError)
	}
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}

func dockerRmForce(container string) error {
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("docflow-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("docflow-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=docflow_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}
