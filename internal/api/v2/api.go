// Package api provides the JSON API v2 for the transcriptor service.
package api

import (
	"crypto/rand"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/transcriptor-go/internal/conf"
	"github.com/tphakala/transcriptor-go/internal/datastore"
	"github.com/tphakala/transcriptor-go/internal/detection"
	"github.com/tphakala/transcriptor-go/internal/logging"
	"github.com/tphakala/transcriptor-go/internal/observability"
	"github.com/tphakala/transcriptor-go/internal/processor"
	"github.com/tphakala/transcriptor-go/internal/transcription"
)

// Controller handles API routes and dependencies for the v2 API.
type Controller struct {
	Echo        *echo.Echo
	Group       *echo.Group
	DS          datastore.Interface
	Settings    *conf.Settings
	Processor   *processor.Processor
	Transcriber *transcription.Client
	Detector    *detection.Detector
	Metrics     *observability.Metrics

	startTime      time.Time
	apiLogger      *slog.Logger
	apiLoggerClose func() error
}

// New creates a new API controller and registers its routes under /api/v2.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	proc *processor.Processor, transcriber *transcription.Client,
	detector *detection.Detector, metrics *observability.Metrics) *Controller {

	c := &Controller{
		Echo:        e,
		DS:          ds,
		Settings:    settings,
		Processor:   proc,
		Transcriber: transcriber,
		Detector:    detector,
		Metrics:     metrics,
		startTime:   time.Now(),
	}

	// Service-specific file logger for API requests
	logFilePath := filepath.Join("logs", "api.log")
	var err error
	c.apiLogger, c.apiLoggerClose, err = logging.NewFileLogger(logFilePath, "api", slog.LevelInfo)
	if err != nil {
		log.Printf("Failed to initialize API file logger at %s: %v. API request logging disabled.", logFilePath, err)
		c.apiLogger = nil
		c.apiLoggerClose = nil
	}

	c.Group = e.Group("/api/v2")
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.CORS())
	c.Group.Use(c.LoggingMiddleware())

	c.initRoutes()
	return c
}

// LoggingMiddleware logs API requests with latency and status.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()

			err := next(ctx)

			req := ctx.Request()
			res := ctx.Response()
			latency := time.Since(start)

			if c.Metrics != nil {
				c.Metrics.HTTPRequestDuration.
					WithLabelValues(req.Method, fmt.Sprintf("%d", res.Status)).
					Observe(latency.Seconds())
			}

			if c.apiLogger == nil {
				return err
			}

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("query", req.URL.RawQuery),
				slog.Int("status", res.Status),
				slog.String("ip", ctx.RealIP()),
				slog.String("user_agent", req.UserAgent()),
				slog.Int64("latency_ms", latency.Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			c.apiLogger.LogAttrs(req.Context(), slog.LevelInfo, "API Request", attrs...)

			return err
		}
	}
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.Group.POST("/sessions", c.CreateSession)
	c.Group.GET("/sessions", c.ListSessions)
	c.Group.GET("/sessions/:id", c.GetSession)
	c.Group.DELETE("/sessions/:id", c.DeleteSession)
	c.Group.POST("/sessions/:id/detect-codes", c.DetectCodes)
	c.Group.GET("/sessions/:id/media", c.ServeMedia)
	c.Group.GET("/sessions-summary", c.SessionsSummary)

	if c.Metrics != nil {
		c.Group.GET("/metrics", echo.WrapHandler(c.Metrics.Handler()))
	}
}

// HealthCheck reports service and dependency status.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":    "healthy",
		"version":   c.Settings.Version,
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(c.startTime).String(),
	}

	dbStatus := "connected"
	if _, err := c.DS.Summary(); err != nil {
		dbStatus = "disconnected"
		response["status"] = "degraded"
		response["database_error"] = err.Error()
	}
	response["database_status"] = dbStatus

	transcriptionUp := c.Transcriber != nil && c.Transcriber.CheckHealth(ctx.Request().Context())
	response["transcription_available"] = transcriptionUp
	if !transcriptionUp {
		response["status"] = "degraded"
	}

	if c.Detector != nil {
		response["detection"] = c.Detector.Status()
	} else {
		response["detection"] = detection.Status{Available: false, Error: "detection not initialized"}
	}

	response["ffmpeg_available"] = conf.IsFfmpegAvailable(c.Settings.Extraction.FfmpegPath)

	code := http.StatusOK
	if response["status"] == "degraded" {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, response)
}

// Shutdown performs cleanup of resources used by the API controller.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			log.Printf("Error closing API log file: %v", err)
		}
	}
}

// ErrorResponse is the API error payload.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	correlationID := generateCorrelationID()

	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}
}

// generateCorrelationID creates a unique identifier for error tracking
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	if c.apiLogger != nil {
		var errorStr string
		if err != nil {
			errorStr = err.Error()
		} else {
			errorStr = message
		}

		c.apiLogger.Error("API Error",
			"correlation_id", errorResp.CorrelationID,
			"message", message,
			"error", errorStr,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ctx.RealIP(),
		)
	}

	return ctx.JSON(code, errorResp)
}
