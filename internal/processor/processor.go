// Package processor drives the session lifecycle: audio extraction,
// submission to the transcription provider, polling, and code detection.
package processor

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tphakala/transcriptor-go/internal/datastore"
	"github.com/tphakala/transcriptor-go/internal/errors"
	"github.com/tphakala/transcriptor-go/internal/extraction"
	"github.com/tphakala/transcriptor-go/internal/logging"
	"github.com/tphakala/transcriptor-go/internal/observability"
	"github.com/tphakala/transcriptor-go/internal/transcription"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "processor.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "processor", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize processor file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "processor")
		closeLogger = func() error { return nil }
	}
}

// timeNow is stubbed in tests
var timeNow = time.Now

// Transcriber is the provider-facing surface the processor needs.
type Transcriber interface {
	Submit(ctx context.Context, filePath, mediaPath string, size int64) (string, error)
	PollUntilTerminal(ctx context.Context, jobID string, onStatus func(status string)) (*transcription.Transcript, error)
}

// Detector finds participation codes in completed transcripts.
type Detector interface {
	IsAvailable() bool
	Detect(ctx context.Context, result *datastore.TranscriptionResult, manual bool) ([]datastore.DetectionRecord, *int, error)
}

// Extractor pulls an audio track out of a video container.
type Extractor interface {
	IsAvailable() bool
	Extract(ctx context.Context, sourcePath string, format extraction.Format, quality extraction.Quality) (string, error)
}

// Processor owns in-flight sessions. Each started session runs in its own
// goroutine; failures are isolated per session.
type Processor struct {
	store       datastore.Interface
	transcriber Transcriber
	detector    Detector
	extractor   Extractor
	metrics     *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Processor. The metrics argument may be nil.
func New(store datastore.Interface, transcriber Transcriber, detector Detector, extractor Extractor, metrics *observability.Metrics) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		store:       store,
		transcriber: transcriber,
		detector:    detector,
		extractor:   extractor,
		metrics:     metrics,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches background processing for a session. filePath is the
// stored media file, extractAudio requests video-to-audio conversion
// before submission. Returns immediately.
func (p *Processor) Start(session *datastore.Session, filePath string, extractAudio bool) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.process(session, filePath, extractAudio)
	}()
}

// Shutdown cancels in-flight sessions and waits for their goroutines.
func (p *Processor) Shutdown() {
	p.cancel()
	p.wg.Wait()
	if closeLogger != nil {
		_ = closeLogger()
	}
}

func (p *Processor) process(session *datastore.Session, filePath string, extractAudio bool) {
	ctx := p.ctx
	sessionID := session.ID

	logger.Info("processing session",
		"session_id", sessionID,
		"filename", session.Filename,
		"file_size", session.FileSize,
		"extract_audio", extractAudio)

	submitPath := filePath
	extractedPath := ""

	if extractAudio && extraction.IsApplicable(session.Filename, session.MimeType) {
		if p.extractor != nil && p.extractor.IsAvailable() {
			format := extraction.ChooseFormat(session.FileSize)
			quality := extraction.QualityFor(session.FileSize)
			audioPath, err := p.extractor.Extract(ctx, filePath, format, quality)
			if err != nil {
				// Extraction failure is not fatal, submit the original file
				logger.Warn("audio extraction failed, submitting original file",
					"session_id", sessionID,
					"error", err)
			} else {
				submitPath = audioPath
				extractedPath = audioPath
				extracted := true
				formatStr := string(format)
				if !p.updateSession(sessionID, &datastore.SessionUpdate{
					AudioExtracted:  &extracted,
					ExtractedFormat: &formatStr,
				}) {
					extraction.Cleanup(extractedPath)
					return
				}
			}
		} else {
			logger.Warn("audio extraction requested but ffmpeg unavailable",
				"session_id", sessionID)
		}
	}

	size := session.FileSize
	if info, err := os.Stat(submitPath); err == nil {
		size = info.Size()
	}

	mediaPath := fmt.Sprintf("/api/v2/sessions/%s/media", sessionID)
	jobID, err := p.transcriber.Submit(ctx, submitPath, mediaPath, size)

	// The extracted copy is only needed for submission
	extraction.Cleanup(extractedPath)

	if err != nil {
		p.failSession(sessionID, "submission failed: "+errMessage(err))
		return
	}

	processing := datastore.StatusProcessing
	if !p.updateSession(sessionID, &datastore.SessionUpdate{
		Status:             &processing,
		TranscriptionJobID: &jobID,
	}) {
		return
	}

	transcript, err := p.transcriber.PollUntilTerminal(ctx, jobID, func(status string) {
		// Provider statuses are persisted verbatim, including values this
		// service does not recognize
		if !datastore.IsTerminalStatus(status) && status != "" {
			s := status
			p.updateSession(sessionID, &datastore.SessionUpdate{Status: &s})
		}
	})
	if err != nil {
		p.failSession(sessionID, errMessage(err))
		return
	}

	result := convertTranscript(transcript)
	completed := datastore.StatusCompleted
	if !p.updateSession(sessionID, &datastore.SessionUpdate{
		Status: &completed,
		Result: result,
	}) {
		return
	}

	if p.metrics != nil {
		p.metrics.SessionsCompleted.Inc()
		p.metrics.TranscriptionDuration.Observe(float64(result.DurationMS) / 1000)
	}

	logger.Info("session completed",
		"session_id", sessionID,
		"words", len(result.Words),
		"duration_ms", result.DurationMS)

	p.runDetection(ctx, sessionID, result, false)
}

// runDetection runs code detection best-effort: a detection failure marks
// the session but never downgrades a completed status.
func (p *Processor) runDetection(ctx context.Context, sessionID string, result *datastore.TranscriptionResult, manual bool) {
	if p.detector == nil || !p.detector.IsAvailable() {
		return
	}

	records, expectedCount, err := p.detector.Detect(ctx, result, manual)
	failed := err != nil
	if failed {
		logger.Warn("code detection failed",
			"session_id", sessionID,
			"error", err)
		if p.metrics != nil {
			p.metrics.DetectionFailures.Inc()
		}
		p.updateSession(sessionID, &datastore.SessionUpdate{DetectionFailed: &failed})
		return
	}

	now := timeNow()
	if records == nil {
		records = []datastore.DetectionRecord{}
	}
	p.updateSession(sessionID, &datastore.SessionUpdate{
		DetectedCodes:     records,
		DetectionRanAt:    &now,
		DetectionFailed:   &failed,
		ExpectedCodeCount: expectedCount,
	})

	if p.metrics != nil {
		p.metrics.CodesDetected.Add(float64(len(records)))
	}
}

// RunDetection re-runs code detection for a completed session on demand,
// using the lower manual confidence threshold.
func (p *Processor) RunDetection(ctx context.Context, sessionID string) (*datastore.Session, error) {
	session, err := p.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != datastore.StatusCompleted || session.Result == nil {
		return nil, errors.Newf("session is not completed, detection requires a transcript").
			Category(errors.CategoryValidation).
			Context("session_id", sessionID).
			Context("status", session.Status).
			Component("processor").
			Build()
	}
	if p.detector == nil || !p.detector.IsAvailable() {
		return nil, errors.Newf("code detection is not configured").
			Category(errors.CategoryConfiguration).
			Component("processor").
			Build()
	}

	records, expectedCount, err := p.detector.Detect(ctx, session.Result, true)
	if err != nil {
		failed := true
		_, _ = p.store.Update(sessionID, &datastore.SessionUpdate{DetectionFailed: &failed})
		return nil, err
	}

	now := timeNow()
	failed := false
	if records == nil {
		records = []datastore.DetectionRecord{}
	}
	return p.store.Update(sessionID, &datastore.SessionUpdate{
		DetectedCodes:     records,
		DetectionRanAt:    &now,
		DetectionFailed:   &failed,
		ExpectedCodeCount: expectedCount,
	})
}

// updateSession applies an update, tolerating sessions deleted mid-flight.
// Returns false when the session is gone and processing should stop.
func (p *Processor) updateSession(sessionID string, update *datastore.SessionUpdate) bool {
	_, err := p.store.Update(sessionID, update)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			logger.Info("session deleted during processing, stopping",
				"session_id", sessionID)
			return false
		}
		logger.Error("failed to update session",
			"session_id", sessionID,
			"error", err)
		return false
	}
	return true
}

func (p *Processor) failSession(sessionID, message string) {
	logger.Error("session failed",
		"session_id", sessionID,
		"error", message)
	if p.metrics != nil {
		p.metrics.SessionsFailed.Inc()
	}
	status := datastore.StatusError
	p.updateSession(sessionID, &datastore.SessionUpdate{
		Status:       &status,
		ErrorMessage: &message,
	})
}

// convertTranscript maps the provider's completed transcript onto the
// stored result shape. Provider duration is in seconds.
func convertTranscript(t *transcription.Transcript) *datastore.TranscriptionResult {
	result := &datastore.TranscriptionResult{
		Text:       t.Text,
		Confidence: t.Confidence,
		DurationMS: int64(t.AudioDuration * 1000),
	}
	for _, w := range t.Words {
		result.Words = append(result.Words, datastore.Word{
			Text:       w.Text,
			StartMS:    w.Start,
			EndMS:      w.End,
			Confidence: w.Confidence,
			Speaker:    w.Speaker,
		})
	}
	for _, c := range t.Chapters {
		result.Chapters = append(result.Chapters, datastore.Chapter{
			Headline: c.Headline,
			Summary:  c.Summary,
			Gist:     c.Gist,
			StartMS:  c.Start,
			EndMS:    c.End,
		})
	}
	return result
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
