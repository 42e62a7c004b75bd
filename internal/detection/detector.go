// Package detection finds CLE participation codes in completed transcripts
// using an AI model behind the OpenRouter chat completions API.
package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/tphakala/transcriptor-go/internal/datastore"
	"github.com/tphakala/transcriptor-go/internal/errors"
	"github.com/tphakala/transcriptor-go/internal/logging"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "detection.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "detection", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize detection file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "detection")
		closeLogger = func() error { return nil }
	}
}

// Config holds settings for the detection service
type Config struct {
	APIKey              string
	BaseURL             string
	Model               string
	ConfidenceThreshold float64 // minimum confidence for automatic runs
	ManualThreshold     float64 // minimum confidence for user-triggered runs
	MaxTranscriptChars  int     // trailing transcript slice sent to the model
	Timeout             time.Duration
}

// DefaultConfig returns a Config with service defaults applied.
func DefaultConfig() Config {
	return Config{
		BaseURL:             "https://openrouter.ai/api/v1",
		Model:               "anthropic/claude-3.5-sonnet",
		ConfidenceThreshold: 0.7,
		ManualThreshold:     0.6,
		MaxTranscriptChars:  15000,
		Timeout:             2 * time.Minute,
	}
}

// Status describes detection service availability for health checks.
type Status struct {
	Available bool   `json:"available"`
	Model     string `json:"model,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Detector runs code detection against the configured model. A detector
// without an API key is valid but reports unavailable and detects nothing.
type Detector struct {
	config     Config
	httpClient *http.Client
	enabled    bool
}

// chat completions request/response types, minimal subset
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// New creates a Detector. A missing API key disables detection rather
// than failing, transcription still works without it.
func New(config Config) *Detector {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.ConfidenceThreshold == 0 {
		config.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if config.ManualThreshold == 0 {
		config.ManualThreshold = defaults.ManualThreshold
	}
	if config.MaxTranscriptChars == 0 {
		config.MaxTranscriptChars = defaults.MaxTranscriptChars
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}

	enabled := config.APIKey != ""
	if !enabled {
		logger.Warn("detection API key not configured, code detection disabled")
	} else {
		logger.Info("detection service initialized", "model", config.Model)
	}

	return &Detector{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		enabled:    enabled,
	}
}

// IsAvailable reports whether detection is configured and usable.
func (d *Detector) IsAvailable() bool {
	return d.enabled
}

// Status returns service availability for the health endpoint.
func (d *Detector) Status() Status {
	if !d.enabled {
		return Status{Available: false, Error: "detection API key not configured"}
	}
	return Status{Available: true, Model: d.config.Model}
}

// Detect analyzes a completed transcript for participation codes. When
// manual is set, the lower user-triggered confidence threshold applies
// and results are flagged accordingly. The second return value is the
// model's expected-code-count hint, nil when it reports none. Returns an
// empty slice when the service is disabled.
func (d *Detector) Detect(ctx context.Context, result *datastore.TranscriptionResult, manual bool) ([]datastore.DetectionRecord, *int, error) {
	if !d.enabled {
		logger.Warn("detection skipped, service not configured")
		return []datastore.DetectionRecord{}, nil, nil
	}
	if result == nil || result.Text == "" {
		return []datastore.DetectionRecord{}, nil, nil
	}

	logger.Info("starting code detection",
		"transcript_chars", len(result.Text),
		"manual", manual)

	content, err := d.complete(ctx, result.Text)
	if err != nil {
		return nil, nil, err
	}

	records := ParseResponse(content, result.Words)
	expectedCount := ExtractExpectedCount(content)

	threshold := d.config.ConfidenceThreshold
	if manual {
		threshold = d.config.ManualThreshold
	}

	filtered := make([]datastore.DetectionRecord, 0, len(records))
	for i := range records {
		if records[i].Confidence >= threshold {
			records[i].Manual = manual
			filtered = append(filtered, records[i])
		}
	}

	logger.Info("code detection complete",
		"raw_detections", len(records),
		"accepted", len(filtered),
		"threshold", threshold)

	return filtered, expectedCount, nil
}

// complete sends one chat completion request and returns the model output.
func (d *Detector) complete(ctx context.Context, transcript string) (string, error) {
	request := chatRequest{
		Model: d.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(transcript, d.config.MaxTranscriptChars)},
		},
		Temperature: 0.1,
		MaxTokens:   4000,
	}

	payload, err := json.Marshal(&request)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryFileParsing).
			Component("detection").
			Build()
	}

	url := d.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Component("detection").
			Build()
	}
	req.Header.Set("Authorization", "Bearer "+d.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", errors.Newf("detection request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", url).
			Component("detection").
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Newf("failed to read detection response: %w", err).
			Category(errors.CategoryNetwork).
			Component("detection").
			Build()
	}

	if resp.StatusCode >= 400 {
		detail := string(bodyBytes)
		var chatResp chatResponse
		if json.Unmarshal(bodyBytes, &chatResp) == nil && chatResp.Error != nil {
			detail = chatResp.Error.Message
		}
		logger.Error("detection provider error",
			"status_code", resp.StatusCode,
			"detail", detail)
		return "", errors.Newf("detection provider error (status %d): %s", resp.StatusCode, detail).
			Category(errors.CategoryDetection).
			Context("status_code", resp.StatusCode).
			Component("detection").
			Build()
	}

	var chatResp chatResponse
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		return "", errors.Newf("failed to parse detection response: %w", err).
			Category(errors.CategoryFileParsing).
			Component("detection").
			Build()
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.Newf("detection model returned no choices").
			Category(errors.CategoryDetection).
			Component("detection").
			Build()
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Close releases the package logger.
func (d *Detector) Close() {
	if closeLogger != nil {
		_ = closeLogger()
	}
}

const systemPrompt = `You are an expert legal transcript analyzer specializing in detecting Continuing Legal Education (CLE) codes, specifically JBA codes.

CONTEXT:
- JBA codes are alphanumeric codes given during legal education sessions
- Attorneys need these codes to receive CLE credits
- Speakers typically announce when they're about to provide a code
- Due to speech-to-text conversion, "JBA" may appear as various forms

YOUR TASK:
Analyze the transcript and identify all JBA codes with high accuracy. Look for:

1. ANNOUNCEMENT PATTERNS (speakers often say):
   - "Here's your JBA code"
   - "The code is..."
   - "For your CLE credits, the code is..."
   - "Please write down this code"
   - "Your participation code is..."

2. JBA VARIATIONS (due to speech-to-text):
   - "JBA" (exact)
   - "jay bee aye" or "jay-bee-aye"
   - "j b a" or "J-B-A"
   - "jba" (lowercase)
   - Any phonetic variation

3. CODE FORMATS:
   - Usually starts with JBA/jay-bee-aye variations
   - Followed by numbers/letters (e.g., "JBA123", "JBA-45-B")
   - May include hyphens, spaces, or other separators
   - Typically 5-15 characters total

4. CONTEXT CLUES:
   - Often mentioned at end of sessions
   - May be repeated for clarity
   - Speaker may spell it out letter by letter
   - Often preceded by instructions to "write this down"

RESPONSE FORMAT:
Return a JSON array of detected codes. For each detection, provide:
{
  "code": "normalized_code_here",
  "originalText": "exact_text_from_transcript",
  "context": "surrounding_context_for_verification",
  "confidence": 0.95,
  "variationType": "standard|spaced|phonetic|spelled_out"
}

Be thorough but precise. High confidence codes only. Include surrounding context for verification.`

// buildUserPrompt trims long transcripts to their trailing slice since
// codes are typically announced near the end of a session.
func buildUserPrompt(transcript string, maxChars int) string {
	textToAnalyze := transcript
	if len(transcript) > maxChars {
		textToAnalyze = "..." + transcript[len(transcript)-maxChars:]
		logger.Debug("trimming transcript for analysis",
			"original_chars", len(transcript),
			"analyzed_chars", maxChars)
	}

	return fmt.Sprintf(`Please analyze this legal education transcript and identify all JBA codes for CLE credits.

TRANSCRIPT TO ANALYZE:
%s

Remember to look for announcement patterns, handle speech-to-text variations of "JBA", and provide high-confidence detections only. Return results as JSON array.`, textToAnalyze)
}
