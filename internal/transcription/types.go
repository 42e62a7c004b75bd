package transcription

import (
	"time"
)

// Transcript job statuses reported by the provider. Unknown values are
// passed through to callers untouched.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Config holds settings for the transcription client
type Config struct {
	APIKey          string
	BaseURL         string
	PublicBaseURL   string        // externally reachable base for URL-based submission
	UploadThreshold int64         // direct upload at or below this size, in bytes
	MaxFileSize     int64         // hard upload cap in bytes
	MaxRetries      int           // submission retry ceiling
	RetryDelay      time.Duration // base backoff delay, doubled per attempt
	PollInterval    time.Duration
	PollTimeout     time.Duration
	WordBoost       []string // vocabulary hints passed at submission
	Timeout         time.Duration
	HealthCacheTTL  time.Duration
}

// DefaultConfig returns a Config with provider defaults applied.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://api.assemblyai.com/v2",
		UploadThreshold: 500 * 1024 * 1024,
		MaxFileSize:     4831838208, // 4.5 GB
		MaxRetries:      3,
		RetryDelay:      time.Second,
		PollInterval:    5 * time.Second,
		PollTimeout:     30 * time.Minute,
		WordBoost:       []string{"JBA", "J B A", "J.B.A", "J-B-A"},
		Timeout:         60 * time.Second,
		HealthCacheTTL:  time.Minute,
	}
}

// Transcript is the provider-side view of a transcription job.
type Transcript struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	// audio_duration is reported in seconds
	AudioDuration float64   `json:"audio_duration"`
	Words         []Word    `json:"words"`
	Chapters      []Chapter `json:"chapters"`
	Error         string    `json:"error"`
}

// Word is a transcript token with millisecond timestamps. Speaker is
// populated only when the provider diarizes.
type Word struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Chapter is an auto-generated transcript chapter.
type Chapter struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Gist     string `json:"gist"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

// transcriptRequest is the submission payload sent to the provider.
type transcriptRequest struct {
	AudioURL     string   `json:"audio_url"`
	WordBoost    []string `json:"word_boost,omitempty"`
	BoostParam   string   `json:"boost_param,omitempty"`
	AutoChapters bool     `json:"auto_chapters"`
}

// uploadResponse is returned by the direct upload endpoint.
type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

// apiError is the provider's error payload.
type apiError struct {
	Error string `json:"error"`
}

// supportedMimeTypes lists accepted upload content types.
var supportedMimeTypes = []string{
	"audio/mpeg",
	"audio/mp3",
	"audio/wav",
	"audio/x-wav",
	"audio/wave",
	"audio/mp4",
	"audio/m4a",
	"audio/x-m4a",
	"audio/aac",
	"audio/flac",
	"audio/x-flac",
	"audio/ogg",
	"audio/webm",
	"video/mp4",
	"video/quicktime",
	"video/x-msvideo",
	"video/webm",
	"video/x-matroska",
}

// SupportedFormats returns the accepted upload content types.
func SupportedFormats() []string {
	formats := make([]string, len(supportedMimeTypes))
	copy(formats, supportedMimeTypes)
	return formats
}
