package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/models"
	"github.com/conrover/DocFlow/utils"
	"github.com/conrover/DocFlow/workflow"
	"github.com/sirupsen/logrus"
)

const maxUploadSizeBytes int64 = 20 * 1024 * 1024

// maxBatchConcurrency bounds how many documents of one batch run the
// extraction pipeline at the same time.
const maxBatchConcurrency = 4

var documentMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/tiff":      true,
}

type ingestResponse struct {
	Status     string  `json:"status"`
	DocId      string  `json:"docId"`
	DocStatus  string  `json:"docStatus"`
	Error      *string `json:"error,omitempty"`
	ReceivedAt string  `json:"receivedAt"`
}

func toIngestResponse(doc *models.DocumentRecord) ingestResponse {
	resp := ingestResponse{
		Status:     "ingested",
		DocId:      doc.ID,
		DocStatus:  string(doc.Status),
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if doc.Status == models.DocStatusFailed {
		resp.Status = "rejected"
		if doc.LastError != nil {
			msg := doc.LastError.Message
			resp.Error = &msg
		}
	}
	return resp
}

// manualIngestHandler accepts one or more multipart files from the UI and
// runs each through the pipeline. Multiple files are processed concurrently
// with a bounded worker count; the response preserves upload order.
func manualIngestHandler(extractor workflow.Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
			return
		}
		files := form.File["files"]
		if len(files) == 0 {
			if single := form.File["file"]; len(single) > 0 {
				files = single
			}
		}
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
			return
		}

		type result struct {
			resp ingestResponse
			err  error
		}
		results := make([]result, len(files))

		var wg sync.WaitGroup
		sem := make(chan struct{}, maxBatchConcurrency)
		for i, fh := range files {
			wg.Add(1)
			go func(i int, fh *multipart.FileHeader) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				doc, err := ingestUploadedFile(c, extractor, fh)
				if err != nil {
					results[i] = result{err: err}
					return
				}
				results[i] = result{resp: toIngestResponse(doc)}
			}(i, fh)
		}
		wg.Wait()

		out := make([]interface{}, 0, len(results))
		status := http.StatusOK
		for _, r := range results {
			if r.err != nil {
				logger.WithFields(logrus.Fields{"field": "manualIngestHandler"}).Error(r.err.Error())
				out = append(out, gin.H{"status": "error", "error": r.err.Error()})
				continue
			}
			out = append(out, r.resp)
		}
		if len(files) == 1 {
			c.JSON(status, out[0])
			return
		}
		c.JSON(status, gin.H{"results": out})
	}
}

func ingestUploadedFile(c *gin.Context, extractor workflow.Extractor, fh *multipart.FileHeader) (*models.DocumentRecord, error) {
	if fh.Size > maxUploadSizeBytes {
		return nil, fmt.Errorf("%s exceeds the %dMB upload limit", fh.Filename, maxUploadSizeBytes/(1024*1024))
	}
	mimeType := fh.Header.Get("Content-Type")
	if !documentMimeTypes[mimeType] {
		return nil, fmt.Errorf("unsupported file type %q", mimeType)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxUploadSizeBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > maxUploadSizeBytes {
		return nil, fmt.Errorf("%s exceeds the %dMB upload limit", fh.Filename, maxUploadSizeBytes/(1024*1024))
	}

	ctx, span := tracer.Start(c.Request.Context(), "ingest.document")
	defer span.End()
	doc, err := workflow.ProcessInboundDocument(ctx, extractor, workflow.IngestInput{
		Filename: fh.Filename,
		MimeType: mimeType,
		Content:  content,
		Source:   models.IngestionSourceManual,
	})
	if err != nil {
		return nil, err
	}

	// Image uploads get a preview thumbnail next to the original.
	if strings.HasPrefix(mimeType, "image/") {
		if thumbErr := storeThumbnail(c, doc, content); thumbErr != nil {
			config.LogError(config.GetLogger(), "uploads.go", "ingestUploadedFile", "thumbnail", doc.ID, thumbErr)
		}
	}
	return doc, nil
}

func storeThumbnail(c *gin.Context, doc *models.DocumentRecord, content []byte) error {
	img, err := imaging.Decode(bytes.NewReader(content))
	if err != nil {
		return err
	}
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return err
	}
	return utils.SaveDocumentFile(c.Request.Context(), thumbnailObjectKey(doc.FileKey), buf.Bytes(), "image/jpeg")
}

func thumbnailObjectKey(objectKey string) string {
	dir := path.Dir(objectKey)
	filename := path.Base(objectKey)
	return path.Join(dir, "thumbnails", filename)
}

type gatewayIngestRequest struct {
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	Base64Data string `json:"base64Data"`

	EmailMetadata *struct {
		From    string `json:"from"`
		To      string `json:"to"`
		Subject string `json:"subject"`
	} `json:"emailMetadata"`

	// Inbound-parse providers post an attachments array instead.
	Attachments []gatewayAttachment `json:"attachments"`
}

type gatewayAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	Base64      string `json:"base64"`
}

// gatewayIngestHandler is the webhook/API channel. Authentication is the
// caller's df_ gateway token, taken from the Authorization header or, for
// webhook providers that cannot set headers, a token query parameter.
func gatewayIngestHandler(extractor workflow.Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" || !strings.HasPrefix(token, "df_") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing Gateway Token (df_...)"})
			return
		}

		user, err := models.GetUserByGatewayToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing Gateway Token (df_...)"})
			return
		}

		var req gatewayIngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		filename, mimeType, data := req.Filename, req.MimeType, req.Base64Data
		if len(req.Attachments) > 0 {
			first := req.Attachments[0]
			data = first.Content
			if data == "" {
				data = first.Base64
			}
			filename = first.Filename
			mimeType = first.ContentType
			if mimeType == "" {
				mimeType = first.Type
			}
		}
		if data == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing document payload. Ensure the email has an attachment."})
			return
		}
		content, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid base64 payload"})
			return
		}
		if filename == "" {
			filename = "document.pdf"
		}
		if mimeType == "" {
			mimeType = "application/pdf"
		}

		ctx := utils.SetUserIdInContext(c.Request.Context(), user.ID)
		ctx = utils.SetUserNameInContext(ctx, user.Name)
		doc, err := workflow.ProcessInboundDocument(ctx, extractor, workflow.IngestInput{
			Filename: filename,
			MimeType: mimeType,
			Content:  content,
			Source:   models.IngestionSourceAPI,
			Actor:    "API Gateway",
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, toIngestResponse(doc))
	}
}

type pushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type inboundEmail struct {
	To          string              `json:"to"`
	From        string              `json:"from"`
	Subject     string              `json:"subject"`
	Attachments []gatewayAttachment `json:"attachments"`
}

// emailPubSubHandler receives inbound-email notifications over a Pub/Sub push
// subscription, routes by the recipient's unique inbound address, and ingests
// every attachment as the mail daemon. Malformed messages are acked and
// dropped so they do not retry forever.
func emailPubSubHandler(extractor workflow.Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "uploads.go", "emailPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		var envelope pushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "uploads.go", "emailPubSubHandler", "Unmarshal envelope", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var email inboundEmail
		if err := json.Unmarshal(envelope.Message.Data, &email); err != nil {
			config.LogError(logger, "uploads.go", "emailPubSubHandler", "Unmarshal email", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}
		if email.To == "" || len(email.Attachments) == 0 {
			config.LogError(logger, "uploads.go", "emailPubSubHandler", "invalid inbound email", email.Subject,
				fmt.Errorf("recipient and attachments are required"))
			c.Status(http.StatusNoContent)
			return
		}

		user, err := models.GetUserByInboundAddress(c.Request.Context(), strings.ToLower(strings.TrimSpace(email.To)))
		if err != nil {
			// Unknown recipient: drop, a retry will not help.
			config.LogError(logger, "uploads.go", "emailPubSubHandler", "unknown inbound address", email.To, err)
			c.Status(http.StatusNoContent)
			return
		}

		ctx := utils.SetUserIdInContext(c.Request.Context(), user.ID)
		ctx = utils.SetUserNameInContext(ctx, user.Name)

		var failed bool
		for _, att := range email.Attachments {
			data := att.Content
			if data == "" {
				data = att.Base64
			}
			content, decErr := base64.StdEncoding.DecodeString(data)
			if decErr != nil {
				config.LogError(logger, "uploads.go", "emailPubSubHandler", "decode attachment", att.Filename, decErr)
				continue
			}
			mimeType := att.ContentType
			if mimeType == "" {
				mimeType = att.Type
			}
			_, procErr := workflow.ProcessInboundDocument(ctx, extractor, workflow.IngestInput{
				Filename: att.Filename,
				MimeType: mimeType,
				Content:  content,
				Source:   models.IngestionSourceEmail,
			})
			if procErr != nil {
				config.LogError(logger, "uploads.go", "emailPubSubHandler", "process attachment", att.Filename, procErr)
				failed = true
			}
		}
		if failed {
			// Non-2xx tells Pub/Sub to retry.
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
