package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/conrover/DocFlow/config"
	"github.com/conrover/DocFlow/gemini"
	"github.com/conrover/DocFlow/middlewares"
	"github.com/conrover/DocFlow/models"
	"github.com/conrover/DocFlow/utils"
	"github.com/conrover/DocFlow/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("docflow-ingestion")

type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
}

// failingExtractor stands in when the Gemini client cannot be configured.
// Every extraction fails cleanly, which parks documents in FAILED with an
// AI_FAILURE error instead of crashing ingestion.
type failingExtractor struct{ cause error }

func (f failingExtractor) Extract(ctx context.Context, content []byte, mimeType string, filename string) (*models.ExtractionResult, error) {
	return nil, f.cause
}

type outboxReplayRequest struct {
	RecordId int `json:"record_id"`
}

// outboxReplayHandler re-queues a DEAD/FAILED outbox row for publishing.
// Admin only.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin, ok := utils.GetIsAdminFromContext(c.Request.Context())
		if !ok || !isAdmin {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_id is required"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		if err := db.WithContext(c.Request.Context()).
			Model(&models.DocumentEventRecord{}).
			Where("id = ?", req.RecordId).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusFailed,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	var extractor workflow.Extractor
	if client, err := gemini.NewClient(); err != nil {
		logger.WithFields(logrus.Fields{"field": "gemini"}).Warn("extraction client not configured: " + err.Error())
		extractor = failingExtractor{cause: err}
	} else {
		extractor = client
	}

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/auth/register", registerHandler())
	r.POST("/auth/login", loginHandler())

	// Webhook/API ingestion authenticates with a df_ gateway token instead of a JWT.
	r.POST("/ingest", gatewayIngestHandler(extractor))
	// Inbound email arrives over a Pub/Sub push subscription.
	r.POST("/pubsub/email", emailPubSubHandler(extractor))

	matcher := models.SimulatedMatcher{}

	authed := r.Group("/", middlewares.RequireAuth())
	{
		authed.GET("/me", meHandler())

		authed.POST("/documents", manualIngestHandler(extractor))
		authed.GET("/documents", listDocumentsHandler())
		authed.GET("/documents/:id", getDocumentHandler())
		authed.DELETE("/documents/:id", deleteDocumentHandler())
		authed.GET("/documents/:id/file", downloadDocumentHandler())
		authed.GET("/documents/:id/validation", getValidationHandler())
		authed.GET("/documents/:id/match", getMatchStateHandler(matcher))
		authed.GET("/documents/:id/audit", getAuditTrailHandler())
		authed.POST("/documents/:id/approve", approveDocumentHandler())
		authed.POST("/documents/:id/reject", rejectDocumentHandler())
		authed.POST("/documents/:id/reprocess", reprocessDocumentHandler(extractor))
		authed.PUT("/documents/:id/extraction", editDocumentHandler())

		authed.POST("/documents/:id/exports", startExportHandler())
		authed.GET("/documents/:id/exports", listExportJobsHandler())

		authed.GET("/policy", getPolicyHandler())
		authed.PUT("/policy/:userId", updatePolicyHandler())

		authed.POST("/destinations", createDestinationHandler())
		authed.GET("/destinations", listDestinationsHandler())
		authed.DELETE("/destinations/:id", deleteDestinationHandler())

		authed.GET("/reports/document-summary", documentSummaryHandler())

		// Ops tooling (admin only): replay outbox events marked DEAD/FAILED.
		authed.POST("/internal/ops/outbox/replay", outboxReplayHandler())
	}

	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Background workers: outbox dispatcher (publishes AFTER commit) and the
	// export delivery worker.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go workflow.NewOutboxDispatcher(db, logger).Run(workerCtx)
	go workflow.RunExportWorker(workerCtx, 2*time.Second)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't pick up new work while draining.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
