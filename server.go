package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/datasource"
	"bitbucket.org/mmdatafocus/matchreview_backend/models"
	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

const defaultPort = "8080"

var tracer = otel.Tracer("matchreview-backend")

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			entry := logger.WithField("path", c.Request.URL.Path)
			if cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
				entry = entry.WithField("correlationId", cid)
			}
			entry.Error(c.Errors.String())
		}
	}
}

// noCacheMiddleware stops browsers and proxies from caching grid data.
// Stale record pages make the pending-change badge lie.
func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}

func registerRoutes(r *gin.Engine, session *models.Session, registry *config.DatasourceRegistry, audit models.AuditStore) {
	api := r.Group("/api", noCacheMiddleware())

	api.GET("/records", recordsHandler(session))
	api.GET("/record/:row_id", recordHandler(session))
	api.GET("/recommendations", recommendationsHandler(session))
	api.GET("/stats", statsHandler(session))

	api.POST("/edit", editHandler(session))
	api.POST("/approve", approveHandler(session))
	api.POST("/bulk_edit", bulkEditHandler(session))
	api.POST("/bulk_approve", bulkApproveHandler(session))
	api.POST("/import_ids", importIDsHandler(session))
	api.POST("/search_replace", searchReplaceHandler(session))

	api.POST("/save", saveHandler(session))
	api.POST("/undo", undoHandler(session))
	api.POST("/redo", redoHandler(session))
	api.POST("/reload", reloadHandler(session))

	api.GET("/export", exportHandler(session))
	api.POST("/export_selected", exportSelectedHandler(session))

	api.GET("/update_log", updateLogHandler(audit))
	api.GET("/datasources", datasourcesHandler(registry, session))
	api.POST("/switch_datasource", switchDatasourceHandler(registry, session))

	r.NoRoute(customNotFoundHandler)
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

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	policies, err := config.LoadFieldPolicies()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "policies"}).Panic(err.Error())
	}
	registry, err := config.LoadDatasourceRegistry(config.StringFromEnv("DATASOURCE_FILE", "datasources.json"))
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "datasources"}).Panic(err.Error())
	}

	audit := models.GormAuditStore{}
	session := models.NewSession(nil, audit, policies, logger)

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the audit DB and dataset are ready, app endpoints return 503.
	var ready atomic.Bool
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerRoutes(r, session, registry, audit)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectAuditDatabaseWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTables(); err != nil {
			config.LogError(logger, "server.go", "main", "MigrateTables", nil, err)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Open the active source and load it, retrying with backoff so a slow
	// warehouse or a locked workbook doesn't kill the revision.
	for attempt := 1; ; attempt++ {
		loadCtx, span := tracer.Start(sigCtx, "dataset.load")
		ds, openErr := datasource.Open(registry.ActiveConfig())
		if openErr == nil {
			if _, openErr = session.SwitchDataset(loadCtx, ds, registry.Active); openErr == nil {
				span.End()
				break
			}
		}
		span.RecordError(openErr)
		span.End()
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "datasource",
			"source":  registry.Active,
			"attempt": attempt,
		}).Warn("failed to load datasource; retrying in " + sleep.String() + ": " + openErr.Error())
		select {
		case <-sigCtx.Done():
			return
		case <-time.After(sleep):
		}
	}

	// Start the background dataset writer (full-source writeback after saves).
	writerCtx, cancelWriter := context.WithCancel(context.Background())
	defer cancelWriter()
	writer := NewBackgroundWriter(session.Dataset, logger)
	session.SetWriter(writer)
	go writer.Run(writerCtx)

	ready.Store(true)

	logger.WithFields(logrus.Fields{
		"info":    "Connection Established",
		"source":  registry.Active,
		"records": session.RowCount(),
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop the background writer first so it doesn't start a write mid-drain.
	cancelWriter()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
