// Package server wires together the datastore, provider clients,
// processor and HTTP API, and runs the web server until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	api "github.com/tphakala/transcriptor-go/internal/api/v2"
	"github.com/tphakala/transcriptor-go/internal/conf"
	"github.com/tphakala/transcriptor-go/internal/datastore"
	"github.com/tphakala/transcriptor-go/internal/detection"
	"github.com/tphakala/transcriptor-go/internal/extraction"
	"github.com/tphakala/transcriptor-go/internal/logging"
	"github.com/tphakala/transcriptor-go/internal/observability"
	"github.com/tphakala/transcriptor-go/internal/processor"
	"github.com/tphakala/transcriptor-go/internal/transcription"
)

// Run starts the transcriptor service and blocks until SIGINT or SIGTERM.
func Run(settings *conf.Settings) error {
	if err := conf.EnsureDirectories(settings); err != nil {
		return err
	}

	store := datastore.New(settings.Storage.DataPath, settings.Debug)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() { _ = store.Close() }()

	transcriber, err := transcription.NewClient(transcription.Config{
		APIKey:          settings.Transcription.APIKey,
		BaseURL:         settings.Transcription.BaseURL,
		PublicBaseURL:   settings.Transcription.PublicBaseURL,
		UploadThreshold: settings.Transcription.UploadThresholdMB * 1024 * 1024,
		MaxFileSize:     settings.Storage.MaxUploadSize,
		MaxRetries:      settings.Transcription.MaxRetries,
		RetryDelay:      time.Duration(settings.Transcription.RetryDelayMS) * time.Millisecond,
		PollInterval:    time.Duration(settings.Transcription.PollIntervalSeconds) * time.Second,
		PollTimeout:     time.Duration(settings.Transcription.PollTimeoutMinutes) * time.Minute,
		WordBoost:       settings.Transcription.WordBoost,
	})
	if err != nil {
		return fmt.Errorf("failed to create transcription client: %w", err)
	}
	defer transcriber.Close()

	detector := detection.New(detection.Config{
		APIKey:              settings.Detection.APIKey,
		BaseURL:             settings.Detection.BaseURL,
		Model:               settings.Detection.Model,
		ConfidenceThreshold: settings.Detection.ConfidenceThreshold,
		ManualThreshold:     settings.Detection.ManualThreshold,
		MaxTranscriptChars:  settings.Detection.MaxTranscriptChars,
		Timeout:             time.Duration(settings.Detection.TimeoutSeconds) * time.Second,
	})
	defer detector.Close()

	var extractor processor.Extractor
	if settings.Extraction.Enabled {
		ext := extraction.New(&settings.Extraction)
		if ext.IsAvailable() {
			logging.Info("ffmpeg found", "path", ext.FfmpegPath, "version", ext.Version())
		} else {
			logging.Warn("ffmpeg not found, audio extraction disabled")
		}
		extractor = ext
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	proc := processor.New(store, transcriber, detector, extractor, metrics)
	defer proc.Shutdown()

	e := echo.New()
	e.HideBanner = true
	e.Debug = settings.WebServer.Debug

	controller := api.New(e, store, settings, proc, transcriber, detector, metrics)
	defer controller.Shutdown()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + settings.WebServer.Port
		logging.Info("web server starting", "addr", addr, "version", settings.Version)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("web server failed: %w", err)
	case sig := <-quit:
		logging.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}

	return nil
}
