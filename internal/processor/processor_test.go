package processor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/transcriptor-go/internal/datastore"
	"github.com/tphakala/transcriptor-go/internal/errors"
	"github.com/tphakala/transcriptor-go/internal/extraction"
	"github.com/tphakala/transcriptor-go/internal/transcription"
)

// fakeTranscriber scripts the provider interaction.
type fakeTranscriber struct {
	mu         sync.Mutex
	submitErr  error
	pollErr    error
	statuses   []string
	transcript *transcription.Transcript
	submitPath string
	submitSize int64
}

func (f *fakeTranscriber) Submit(ctx context.Context, filePath, mediaPath string, size int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitPath = filePath
	f.submitSize = size
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "job-1", nil
}

func (f *fakeTranscriber) PollUntilTerminal(ctx context.Context, jobID string, onStatus func(string)) (*transcription.Transcript, error) {
	for _, s := range f.statuses {
		onStatus(s)
	}
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.transcript, nil
}

type fakeDetector struct {
	available     bool
	records       []datastore.DetectionRecord
	expectedCount *int
	err           error
	manual        bool
	called        bool
}

func (f *fakeDetector) IsAvailable() bool { return f.available }

func (f *fakeDetector) Detect(ctx context.Context, result *datastore.TranscriptionResult, manual bool) ([]datastore.DetectionRecord, *int, error) {
	f.called = true
	f.manual = manual
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.records, f.expectedCount, nil
}

type fakeExtractor struct {
	available bool
	err       error
	output    string
	called    bool
}

func (f *fakeExtractor) IsAvailable() bool { return f.available }

func (f *fakeExtractor) Extract(ctx context.Context, sourcePath string, format extraction.Format, quality extraction.Quality) (string, error) {
	f.called = true
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

func newStore(t *testing.T) datastore.Interface {
	t.Helper()
	store := datastore.New(t.TempDir(), false)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createSession(t *testing.T, store datastore.Interface, mimeType string) *datastore.Session {
	t.Helper()
	session := &datastore.Session{
		ID:       uuid.New().String(),
		Filename: "recording.mp4",
		MediaID:  uuid.New().String(),
		MimeType: mimeType,
		FileSize: 2048,
	}
	require.NoError(t, store.Create(session))
	return session
}

func writeMedia(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "media.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func completedTranscript() *transcription.Transcript {
	return &transcription.Transcript{
		ID:            "job-1",
		Status:        transcription.StatusCompleted,
		Text:          "hello world",
		Confidence:    0.95,
		AudioDuration: 12.5,
		Words: []transcription.Word{
			{Text: "hello", Start: 0, End: 500, Confidence: 0.96},
			{Text: "world", Start: 500, End: 1000, Confidence: 0.94},
		},
	}
}

func runToCompletion(t *testing.T, p *Processor, store datastore.Interface, id string) *datastore.Session {
	t.Helper()
	p.wg.Wait()
	session, err := store.Get(id)
	require.NoError(t, err)
	return session
}

func TestProcessCompletesSession(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")
	media := writeMedia(t, "audio bytes")

	transcriber := &fakeTranscriber{
		statuses:   []string{"queued", "processing"},
		transcript: completedTranscript(),
	}
	detector := &fakeDetector{available: true, records: []datastore.DetectionRecord{
		{Code: "JBA123", VariationType: datastore.VariationStandard, Confidence: 0.9},
	}}

	p := New(store, transcriber, detector, &fakeExtractor{}, nil)
	p.Start(session, media, false)

	got := runToCompletion(t, p, store, session.ID)
	assert.Equal(t, datastore.StatusCompleted, got.Status)
	assert.Equal(t, "job-1", got.TranscriptionJobID)
	require.NotNil(t, got.Result)
	assert.Equal(t, "hello world", got.Result.Text)
	assert.Equal(t, int64(12500), got.Result.DurationMS)
	require.Len(t, got.DetectedCodes, 1)
	assert.Equal(t, "JBA123", got.DetectedCodes[0].Code)
	assert.False(t, got.DetectionFailed)
	require.NotNil(t, got.DetectionRanAt)
	assert.True(t, detector.called)
	assert.False(t, detector.manual)
}

func TestProcessSubmissionFailure(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")
	media := writeMedia(t, "audio bytes")

	transcriber := &fakeTranscriber{submitErr: errors.NewStd("provider unreachable")}
	p := New(store, transcriber, &fakeDetector{}, &fakeExtractor{}, nil)
	p.Start(session, media, false)

	got := runToCompletion(t, p, store, session.ID)
	assert.Equal(t, datastore.StatusError, got.Status)
	assert.Contains(t, got.ErrorMessage, "provider unreachable")
}

func TestProcessPollFailure(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")
	media := writeMedia(t, "audio bytes")

	transcriber := &fakeTranscriber{pollErr: errors.NewStd("polling timed out")}
	p := New(store, transcriber, &fakeDetector{}, &fakeExtractor{}, nil)
	p.Start(session, media, false)

	got := runToCompletion(t, p, store, session.ID)
	assert.Equal(t, datastore.StatusError, got.Status)
	assert.Contains(t, got.ErrorMessage, "polling timed out")
}

func TestProcessPersistsUnknownStatuses(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")
	media := writeMedia(t, "audio bytes")

	transcriber := &fakeTranscriber{
		statuses:   []string{"transcoding"},
		transcript: completedTranscript(),
	}
	p := New(store, transcriber, &fakeDetector{}, &fakeExtractor{}, nil)

	// Capture the intermediate status before completion overwrites it
	p.process(session, media, false)

	got, err := store.Get(session.ID)
	require.NoError(t, err)
	// Terminal state wins, but the run must not have rejected the unknown value
	assert.Equal(t, datastore.StatusCompleted, got.Status)
}

func TestDetectionFailureNeverDowngradesCompleted(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")
	media := writeMedia(t, "audio bytes")

	transcriber := &fakeTranscriber{transcript: completedTranscript()}
	detector := &fakeDetector{available: true, err: errors.NewStd("model overloaded")}

	p := New(store, transcriber, detector, &fakeExtractor{}, nil)
	p.Start(session, media, false)

	got := runToCompletion(t, p, store, session.ID)
	assert.Equal(t, datastore.StatusCompleted, got.Status)
	assert.True(t, got.DetectionFailed)
	assert.Empty(t, got.ErrorMessage)
}

func TestDetectionSkippedWhenUnavailable(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")
	media := writeMedia(t, "audio bytes")

	transcriber := &fakeTranscriber{transcript: completedTranscript()}
	detector := &fakeDetector{available: false}

	p := New(store, transcriber, detector, &fakeExtractor{}, nil)
	p.Start(session, media, false)

	got := runToCompletion(t, p, store, session.ID)
	assert.Equal(t, datastore.StatusCompleted, got.Status)
	assert.False(t, detector.called)
	assert.Nil(t, got.DetectionRanAt)
}

func TestExtractionUsedForVideo(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "video/mp4")
	media := writeMedia(t, "video bytes")
	extracted := writeMedia(t, "extracted audio")

	transcriber := &fakeTranscriber{transcript: completedTranscript()}
	extractor := &fakeExtractor{available: true, output: extracted}

	p := New(store, transcriber, &fakeDetector{}, extractor, nil)
	p.Start(session, media, true)

	got := runToCompletion(t, p, store, session.ID)
	assert.True(t, extractor.called)
	assert.True(t, got.AudioExtracted)
	assert.Equal(t, "wav", got.ExtractedFormat)
	assert.Equal(t, extracted, transcriber.submitPath)

	// Extracted copy is cleaned up after submission
	_, err := os.Stat(extracted)
	assert.True(t, os.IsNotExist(err))
}

func TestExtractionFailureFallsBackToOriginal(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "video/mp4")
	media := writeMedia(t, "video bytes")

	transcriber := &fakeTranscriber{transcript: completedTranscript()}
	extractor := &fakeExtractor{available: true, err: errors.NewStd("codec unsupported")}

	p := New(store, transcriber, &fakeDetector{}, extractor, nil)
	p.Start(session, media, true)

	got := runToCompletion(t, p, store, session.ID)
	assert.Equal(t, datastore.StatusCompleted, got.Status)
	assert.False(t, got.AudioExtracted)
	assert.Equal(t, media, transcriber.submitPath)
}

func TestExtractionSkippedForAudio(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")
	session.Filename = "audio.wav"
	media := writeMedia(t, "audio bytes")

	transcriber := &fakeTranscriber{transcript: completedTranscript()}
	extractor := &fakeExtractor{available: true, output: "unused"}

	p := New(store, transcriber, &fakeDetector{}, extractor, nil)
	p.Start(session, media, true)

	runToCompletion(t, p, store, session.ID)
	assert.False(t, extractor.called)
}

func TestDeletedSessionStopsProcessing(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")
	media := writeMedia(t, "audio bytes")

	// Delete before processing starts; the first persist hits ErrNotFound
	deleted, err := store.Delete(session.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	transcriber := &fakeTranscriber{transcript: completedTranscript()}
	p := New(store, transcriber, &fakeDetector{available: true}, &fakeExtractor{}, nil)
	p.process(session, media, false)

	_, err = store.Get(session.ID)
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}

func TestRunDetectionRequiresCompletedSession(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")

	p := New(store, &fakeTranscriber{}, &fakeDetector{available: true}, &fakeExtractor{}, nil)
	_, err := p.RunDetection(context.Background(), session.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not completed")
}

func TestRunDetectionManual(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")

	completed := datastore.StatusCompleted
	_, err := store.Update(session.ID, &datastore.SessionUpdate{
		Status: &completed,
		Result: &datastore.TranscriptionResult{Text: "the code is jba123"},
	})
	require.NoError(t, err)

	expected := 2
	detector := &fakeDetector{available: true, expectedCount: &expected, records: []datastore.DetectionRecord{
		{Code: "JBA123", Confidence: 0.65, Manual: true},
	}}
	p := New(store, &fakeTranscriber{}, detector, &fakeExtractor{}, nil)

	updated, err := p.RunDetection(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, detector.manual)
	require.Len(t, updated.DetectedCodes, 1)
	assert.False(t, updated.DetectionFailed)
	require.NotNil(t, updated.ExpectedCodeCount)
	assert.Equal(t, 2, *updated.ExpectedCodeCount)
}

func TestRunDetectionUnknownSession(t *testing.T) {
	store := newStore(t)
	p := New(store, &fakeTranscriber{}, &fakeDetector{available: true}, &fakeExtractor{}, nil)

	_, err := p.RunDetection(context.Background(), "missing")
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}

func TestShutdownWaitsForSessions(t *testing.T) {
	store := newStore(t)
	session := createSession(t, store, "audio/wav")
	media := writeMedia(t, "audio bytes")

	transcriber := &fakeTranscriber{transcript: completedTranscript()}
	p := New(store, transcriber, &fakeDetector{}, &fakeExtractor{}, nil)
	p.Start(session, media, false)

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}
