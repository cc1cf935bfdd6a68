package workflow

import (
	"testing"

	"github.com/conrover/DocFlow/models"
)

func extractionWithConfidence(conf ...float64) *models.ExtractionResult {
	fields := make([]models.Field, len(conf))
	for i, c := range conf {
		fields[i] = models.Field{Key: "f", Confidence: c}
	}
	return &models.ExtractionResult{DocType: models.DocTypeInvoice, Fields: fields}
}

func cleanValidation() models.ValidationResult {
	return models.ValidationResult{Valid: true, Errors: []string{}, MathBalanced: true}
}

func TestDecideAutoApproval_DisabledNeverApproves(t *testing.T) {
	policy := models.AutomationPolicy{AutoApproveEnabled: false, AutoApproveThreshold: 0}
	d := DecideAutoApproval(extractionWithConfidence(1, 1, 1), cleanValidation(), policy)
	if d.Approve {
		t.Fatal("disabled policy must never approve")
	}
}

func TestDecideAutoApproval_ThresholdBoundary(t *testing.T) {
	policy := models.AutomationPolicy{AutoApproveEnabled: true, AutoApproveThreshold: 98}

	d := DecideAutoApproval(extractionWithConfidence(0.979), cleanValidation(), policy)
	if d.Approve {
		t.Fatalf("0.979 below threshold 98%% must not approve, reason: %s", d.Reason)
	}

	d = DecideAutoApproval(extractionWithConfidence(0.98), cleanValidation(), policy)
	if !d.Approve {
		t.Fatalf("0.98 at threshold 98%% must approve, reason: %s", d.Reason)
	}
}

func TestDecideAutoApproval_IndependentGates(t *testing.T) {
	policy := models.AutomationPolicy{AutoApproveEnabled: true, AutoApproveThreshold: 50}
	extraction := extractionWithConfidence(1, 1)

	invalid := models.ValidationResult{Valid: false, Errors: []string{}}
	if d := DecideAutoApproval(extraction, invalid, policy); d.Approve {
		t.Fatal("invalid document must not auto-approve")
	}

	duplicate := models.ValidationResult{Valid: true, Errors: []string{}, IsDuplicate: true}
	if d := DecideAutoApproval(extraction, duplicate, policy); d.Approve {
		t.Fatal("duplicate must not auto-approve")
	}

	// The error-list gate fires even if the valid flag says otherwise.
	withErrors := models.ValidationResult{Valid: true, Errors: []string{"some error"}}
	if d := DecideAutoApproval(extraction, withErrors, policy); d.Approve {
		t.Fatal("validation errors must block auto-approval independently")
	}
}

func TestDecideAutoApproval_NoFieldsNeverClearsThreshold(t *testing.T) {
	policy := models.AutomationPolicy{AutoApproveEnabled: true, AutoApproveThreshold: 1}
	d := DecideAutoApproval(&models.ExtractionResult{DocType: models.DocTypeInvoice}, cleanValidation(), policy)
	if d.Approve {
		t.Fatal("zero fields averages 0 confidence and must not approve")
	}

	// Threshold 0 with no fields: 0 >= 0 passes every gate.
	policy.AutoApproveThreshold = 0
	d = DecideAutoApproval(&models.ExtractionResult{DocType: models.DocTypeInvoice}, cleanValidation(), policy)
	if !d.Approve {
		t.Fatalf("threshold 0 should approve a clean document, reason: %s", d.Reason)
	}
}
