package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/conrover/DocFlow/models"
	"github.com/conrover/DocFlow/models/reports"
	"github.com/conrover/DocFlow/utils"
	"github.com/conrover/DocFlow/workflow"
)

// bindError reports a request binding failure, breaking validation errors
// down per field when the payload parsed but failed its rules.
func bindError(c *gin.Context, err error) {
	if fields := utils.ProcessValidationErrors(err); fields != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func registerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, err := utils.JwtGenerate(user.ID, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		user, token, err := models.Login(c.Request.Context(), input.Email, input.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func meHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		user, err := models.GetUser(c.Request.Context(), userId)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func listDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, err := models.GetDocuments(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": docs})
	}
}

func getDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := models.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		trail, err := models.GetAuditTrail(c.Request.Context(), doc.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"document": doc, "auditTrail": trail})
	}
}

func deleteDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := models.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func downloadDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := models.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		content, err := utils.ReadDocumentFile(c.Request.Context(), doc.FileKey)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "stored file unavailable"})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
		c.Data(http.StatusOK, "application/octet-stream", content)
	}
}

// getValidationHandler recomputes validation against the user's current
// document set rather than returning the stored snapshot.
func getValidationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := models.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		peers, err := models.GetDocuments(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		validation := models.ValidateExtraction(doc, peers)
		c.JSON(http.StatusOK, validation)
	}
}

func getMatchStateHandler(matcher models.Matcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := models.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusOK, matcher.Match(doc))
	}
}

func getAuditTrailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trail, err := models.GetAuditTrail(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"auditTrail": trail})
	}
}

func approveDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := utils.GetUserNameFromContext(c.Request.Context())
		if actor == "" {
			actor = "Reviewer"
		}
		doc, err := workflow.ApproveDocument(c.Request.Context(), c.Param("id"), actor)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func rejectDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Reason string `json:"reason"`
		}
		// Body is optional; a missing or blank reason is a documented no-op.
		_ = c.ShouldBindJSON(&input)

		actor, _ := utils.GetUserNameFromContext(c.Request.Context())
		if actor == "" {
			actor = "Reviewer"
		}
		doc, err := workflow.RejectDocument(c.Request.Context(), c.Param("id"), actor, input.Reason)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func reprocessDocumentHandler(extractor workflow.Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := utils.GetUserNameFromContext(c.Request.Context())
		if actor == "" {
			actor = "Reviewer"
		}
		doc, err := workflow.ReprocessDocument(c.Request.Context(), extractor, c.Param("id"), actor)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func editDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var edited models.ExtractionResult
		if err := c.ShouldBindJSON(&edited); err != nil {
			bindError(c, err)
			return
		}
		actor, _ := utils.GetUserNameFromContext(c.Request.Context())
		if actor == "" {
			actor = "Reviewer"
		}
		doc, err := workflow.RecordManualEdit(c.Request.Context(), c.Param("id"), actor, &edited)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func getPolicyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		policy, err := models.LoadPolicy(c.Request.Context(), userId)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, policy)
	}
}

// updatePolicyHandler mutates a user's automation policy. Admin only; the
// models layer enforces the role check.
func updatePolicyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.UpdateAutomationPolicyInput
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		targetUserId := c.Param("userId")
		if targetUserId == "" {
			targetUserId, _ = utils.GetUserIdFromContext(c.Request.Context())
		}
		user, err := models.UpdateAutomationPolicy(c.Request.Context(), targetUserId, input)
		if err != nil {
			if err == utils.ErrorUnauthorized {
				c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, user.AutomationPolicy)
	}
}

func createDestinationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDestination
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		dest, err := models.CreateDestination(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, dest)
	}
}

func listDestinationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dests, err := models.GetDestinations(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"destinations": dests})
	}
}

func deleteDestinationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := models.DeleteDestination(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func startExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			DestinationId string `json:"destinationId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		actor, _ := utils.GetUserNameFromContext(c.Request.Context())
		if actor == "" {
			actor = "Reviewer"
		}
		job, err := workflow.StartExport(c.Request.Context(), c.Param("id"), input.DestinationId, actor)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, job)
	}
}

func listExportJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobs, err := models.GetExportJobsForDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}

func documentSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Query("format"), "xlsx") {
			if err := reports.ExportDocumentSummaryExcel(c.Writer, c.Request.Context()); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		summary, err := reports.GetDocumentSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
