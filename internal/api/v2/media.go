package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/transcriptor-go/internal/datastore"
	"github.com/tphakala/transcriptor-go/internal/errors"
)

// ServeMedia streams a session's stored media file. Range requests are
// honored so browsers can seek within video playback, and so the
// transcription provider can fetch large files submitted by URL.
func (c *Controller) ServeMedia(ctx echo.Context) error {
	session, err := c.DS.Get(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return c.HandleError(ctx, err, "Session not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to fetch session", http.StatusInternalServerError)
	}

	mediaPath, err := c.validateMediaPath(session.MediaID)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid media path", http.StatusBadRequest)
	}

	file, err := os.Open(mediaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return c.HandleError(ctx, err, "Media file not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to open media file", http.StatusInternalServerError)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to stat media file", http.StatusInternalServerError)
	}

	if session.MimeType != "" {
		ctx.Response().Header().Set(echo.HeaderContentType, session.MimeType)
	}
	ctx.Response().Header().Set("Accept-Ranges", "bytes")

	// ServeContent handles Range and If-Modified-Since
	http.ServeContent(ctx.Response(), ctx.Request(), session.Filename, info.ModTime(), file)
	return nil
}

// validateMediaPath resolves a media ID inside the media directory and
// rejects traversal outside it.
func (c *Controller) validateMediaPath(mediaID string) (string, error) {
	if mediaID == "" {
		return "", errors.Newf("session has no stored media").
			Category(errors.CategoryValidation).
			Component("api").
			Build()
	}

	baseDir, err := filepath.Abs(c.Settings.Storage.MediaPath)
	if err != nil {
		return "", err
	}

	mediaPath, err := filepath.Abs(filepath.Join(baseDir, mediaID))
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(mediaPath, baseDir+string(os.PathSeparator)) {
		return "", errors.Newf("media path escapes media directory").
			Category(errors.CategoryValidation).
			Context("media_id", mediaID).
			Component("api").
			Build()
	}

	return mediaPath, nil
}
