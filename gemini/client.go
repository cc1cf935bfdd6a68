package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/conrover/DocFlow/models"
)

const extractionPrompt = `Act as a Strategic Controller and AP Automation Architect.
Analyze the provided document with extreme precision.

CRITICAL CLASSIFICATION RULE:
- First, determine if this is a valid financial document (Invoice, Purchase Order, Receipt, Packing List, or Statement).
- If the document is NOT one of these (e.g., a photo of a cat, a general letter, a passport, or random text), you MUST set "doc_type" to "unknown" and add exactly one warning: "NOT_A_VALID_DOCUMENT: The uploaded file is not a recognized financial instrument for AP processing."

INTELLIGENCE RULES FOR VALID DOCUMENTS:
1. DISCOUNT DISCOVERY: Look for terms like '2/10 Net 30' or '1% discount'. If found, set 'specialized.invoice.has_discount_opportunity' to true.
2. GL CODING: Based on the vendor name and the line items, suggest a standard General Ledger (GL) code.
3. FINANCIAL RECONCILIATION: Components (subtotal, tax, shipping) must balance to the total.
4. LINE ITEMS: Extract every line item with description, quantity, unit price, and amount.
5. CONFIDENCE SCORES: Provide a confidence score (0.0 to 1.0) for every field.
6. VENDOR IDENTIFICATION: Extract full legal entity name.

Return the result in strict JSON format matching the schema.`

// Client calls the Gemini generateContent REST endpoint with a structured
// response schema and decodes the result into a models.ExtractionResult.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewClient() (*Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	baseURL := strings.TrimSpace(os.Getenv("GEMINI_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	model := strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
	Temperature      float64         `json:"temperature"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) Extract(ctx context.Context, data []byte, mimeType string, filename string) (*models.ExtractionResult, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	reqBody := generateContentRequest{
		Contents: []content{
			{
				Parts: []part{
					{Text: extractionPrompt},
					{InlineData: &inlineData{
						MimeType: mimeType,
						Data:     base64.StdEncoding.EncodeToString(data),
					}},
				},
			},
		},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   json.RawMessage(extractionSchema),
			Temperature:      0.1,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("empty response from AI engine")
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	var result models.ExtractionResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, errors.New("the AI failed to parse the document structure reliably")
	}
	return &result, nil
}
