package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/transcriptor-go/internal/datastore"
	"github.com/tphakala/transcriptor-go/internal/errors"
)

// CreateSession accepts a multipart media upload and starts background
// processing. Form fields: "file" (the recording) and optional
// "extract_audio" ("true" to convert video to audio before submission).
func (c *Controller) CreateSession(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return c.HandleError(ctx, err, "Missing file in upload", http.StatusBadRequest)
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if err := c.Transcriber.ValidateFile(fileHeader.Filename, mimeType, fileHeader.Size); err != nil {
		code := http.StatusBadRequest
		if errors.IsCategory(err, errors.CategoryLimit) {
			code = http.StatusRequestEntityTooLarge
		}
		return c.HandleError(ctx, err, "File rejected", code)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read upload", http.StatusInternalServerError)
	}
	defer func() { _ = src.Close() }()

	mediaID := uuid.New().String()
	mediaFile := mediaID + strings.ToLower(filepath.Ext(fileHeader.Filename))
	mediaPath := filepath.Join(c.Settings.Storage.MediaPath, mediaFile)

	// The upload is staged in the temporary upload directory and only
	// moved into the media store once fully written.
	stagingPath := filepath.Join(c.Settings.Storage.UploadPath, mediaFile+".upload")
	dst, err := os.Create(stagingPath)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to store upload", http.StatusInternalServerError)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(stagingPath)
		return c.HandleError(ctx, err, "Failed to store upload", http.StatusInternalServerError)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(stagingPath)
		return c.HandleError(ctx, err, "Failed to store upload", http.StatusInternalServerError)
	}
	if err := moveFile(stagingPath, mediaPath); err != nil {
		_ = os.Remove(stagingPath)
		return c.HandleError(ctx, err, "Failed to store upload", http.StatusInternalServerError)
	}

	session := &datastore.Session{
		ID:       uuid.New().String(),
		Filename: fileHeader.Filename,
		MediaID:  mediaFile,
		MimeType: mimeType,
		FileSize: fileHeader.Size,
		Status:   datastore.StatusQueued,
	}
	if err := c.DS.Create(session); err != nil {
		_ = os.Remove(mediaPath)
		if errors.Is(err, datastore.ErrAlreadyExists) {
			return c.HandleError(ctx, err, "Session already exists", http.StatusConflict)
		}
		return c.HandleError(ctx, err, "Failed to create session", http.StatusInternalServerError)
	}

	if c.Metrics != nil {
		c.Metrics.SessionsCreated.Inc()
		c.Metrics.UploadBytes.Add(float64(fileHeader.Size))
	}

	extractAudio := strings.EqualFold(ctx.FormValue("extract_audio"), "true")
	c.Processor.Start(session, mediaPath, extractAudio)

	return ctx.JSON(http.StatusCreated, session)
}

// ListSessions returns sessions newest first. Query parameters: "status"
// filters by lifecycle state, "limit" caps the result count.
func (c *Controller) ListSessions(ctx echo.Context) error {
	filter := &datastore.ListFilter{
		Status: ctx.QueryParam("status"),
	}

	if limitStr := ctx.QueryParam("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return c.HandleError(ctx, err, "Invalid limit parameter", http.StatusBadRequest)
		}
		filter.Limit = limit
	}

	sessions, err := c.DS.List(filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list sessions", http.StatusInternalServerError)
	}
	if sessions == nil {
		sessions = []datastore.Session{}
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one session by ID.
func (c *Controller) GetSession(ctx echo.Context) error {
	session, err := c.DS.Get(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return c.HandleError(ctx, err, "Session not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to fetch session", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, session)
}

// DeleteSession removes a session and its stored media. Processing that
// is still in flight notices the deletion and stops.
func (c *Controller) DeleteSession(ctx echo.Context) error {
	id := ctx.Param("id")

	session, err := c.DS.Get(id)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return c.HandleError(ctx, err, "Session not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to fetch session", http.StatusInternalServerError)
	}

	deleted, err := c.DS.Delete(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to delete session", http.StatusInternalServerError)
	}
	if !deleted {
		return c.HandleError(ctx, nil, "Session not found", http.StatusNotFound)
	}

	if session.MediaID != "" {
		mediaPath := filepath.Join(c.Settings.Storage.MediaPath, session.MediaID)
		if err := os.Remove(mediaPath); err != nil && !os.IsNotExist(err) {
			// Media cleanup is best-effort, the session row is already gone
			if c.apiLogger != nil {
				c.apiLogger.Warn("failed to remove media file",
					"session_id", id,
					"media_path", mediaPath,
					"error", err)
			}
		}
	}

	if c.Metrics != nil {
		c.Metrics.SessionsDeleted.Inc()
	}

	return ctx.NoContent(http.StatusNoContent)
}

// DetectCodes re-runs code detection for a completed session using the
// lower user-triggered confidence threshold.
func (c *Controller) DetectCodes(ctx echo.Context) error {
	session, err := c.Processor.RunDetection(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, datastore.ErrNotFound):
			return c.HandleError(ctx, err, "Session not found", http.StatusNotFound)
		case errors.IsCategory(err, errors.CategoryValidation):
			return c.HandleError(ctx, err, "Session has no transcript to analyze", http.StatusBadRequest)
		case errors.IsCategory(err, errors.CategoryConfiguration):
			return c.HandleError(ctx, err, "Code detection is not configured", http.StatusServiceUnavailable)
		default:
			return c.HandleError(ctx, err, "Code detection failed", http.StatusBadGateway)
		}
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"session_id":     session.ID,
		"detected_codes": session.DetectedCodes,
		"ran_at":         session.DetectionRanAt,
	})
}

// SessionsSummary returns aggregate counts across all sessions.
func (c *Controller) SessionsSummary(ctx echo.Context) error {
	summary, err := c.DS.Summary()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute summary", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, summary)
}

// moveFile renames the staged upload into the media store, falling back
// to a copy when the two directories sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
