package datastore

import (
	"time"
)

// Session status values. A session moves queued -> processing -> completed
// or error; completed is terminal and never downgraded by detection failures.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// VariationType classifies how a detected code was rendered in speech.
type VariationType string

const (
	VariationStandard   VariationType = "standard"
	VariationSpaced     VariationType = "spaced"
	VariationDotted     VariationType = "dotted"
	VariationHyphenated VariationType = "hyphenated"
	VariationLowercase  VariationType = "lowercase"
	VariationSpoken     VariationType = "spoken"
	VariationExtended   VariationType = "extended"
)

// Session represents one uploaded recording and the full lifecycle of its
// transcription and code detection.
type Session struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Filename string `json:"filename"` // original client filename
	MediaID  string `gorm:"index" json:"media_id"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`

	Status       string `gorm:"index" json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Provider-side job identifier, set once submission succeeds.
	TranscriptionJobID string `json:"transcription_job_id,omitempty"`

	// True when audio was extracted from a video container before submission.
	AudioExtracted  bool   `json:"audio_extracted"`
	ExtractedFormat string `json:"extracted_format,omitempty"`

	Result *TranscriptionResult `gorm:"serializer:json" json:"result,omitempty"`

	DetectedCodes   []DetectionRecord `gorm:"serializer:json" json:"detected_codes,omitempty"`
	DetectionRanAt  *time.Time        `json:"detection_ran_at,omitempty"`
	DetectionFailed bool              `json:"detection_failed"`

	// Display-only hint reported by the detection model, e.g. "the speaker
	// announced two codes" when only one could be located.
	ExpectedCodeCount *int `json:"expected_code_count,omitempty"`
}

// TranscriptionResult holds the completed transcript and its word-level
// timing data as returned by the provider.
type TranscriptionResult struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	DurationMS int64     `json:"duration_ms"`
	Words      []Word    `json:"words,omitempty"`
	Chapters   []Chapter `json:"chapters,omitempty"`
}

// Word is a single transcript token with millisecond timestamps.
type Word struct {
	Text       string  `json:"text"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Chapter is an auto-generated transcript chapter.
type Chapter struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Gist     string `json:"gist"`
	StartMS  int64  `json:"start_ms"`
	EndMS    int64  `json:"end_ms"`
}

// DetectionRecord is one code occurrence found in the transcript.
// Code holds the normalized form (e.g. JBA123), RawText the rendering
// as spoken.
type DetectionRecord struct {
	Code          string        `json:"code"`
	RawText       string        `json:"raw_text"`
	VariationType VariationType `json:"variation_type"`
	Confidence    float64       `json:"confidence"`
	Context       string        `json:"context"`
	TimestampMS   *int64        `json:"timestamp_ms,omitempty"`
	Manual        bool          `json:"manual"` // found by a user-triggered re-run
}

// SessionSummary aggregates session counts per status.
type SessionSummary struct {
	Total      int64 `json:"total"`
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Error      int64 `json:"error"`

	WithDetections int64 `json:"with_detections"`
	TotalCodes     int64 `json:"total_codes"`
}

// IsTerminalStatus reports whether a status value ends the processing lifecycle.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusError
}
