// Package transcription submits recordings to the speech-to-text provider
// and polls jobs to completion.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/transcriptor-go/internal/errors"
	"github.com/tphakala/transcriptor-go/internal/logging"
)

// Package-level logger specific to transcription service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "transcription.log")
	initialLevel := slog.LevelDebug
	serviceLevelVar.Set(initialLevel)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "transcription", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize transcription file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "transcription")
		closeLogger = func() error { return nil }
	}
}

const healthCacheKey = "provider_health"

// Client talks to the transcription provider's REST API.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache
}

// statusError carries an HTTP status code so retry logic can inspect it.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.code, e.body)
}

// NewClient creates a new transcription client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("transcription API key is required").
			Category(errors.CategoryConfiguration).
			Component("transcription").
			Build()
	}

	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.UploadThreshold == 0 {
		config.UploadThreshold = defaults.UploadThreshold
	}
	if config.MaxFileSize == 0 {
		config.MaxFileSize = defaults.MaxFileSize
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.PollTimeout == 0 {
		config.PollTimeout = defaults.PollTimeout
	}
	if config.WordBoost == nil {
		config.WordBoost = defaults.WordBoost
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.HealthCacheTTL == 0 {
		config.HealthCacheTTL = defaults.HealthCacheTTL
	}

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache: cache.New(config.HealthCacheTTL, config.HealthCacheTTL*2),
	}

	logger.Info("transcription client initialized",
		"base_url", config.BaseURL,
		"upload_threshold", config.UploadThreshold,
		"max_retries", config.MaxRetries,
		"api_key_configured", config.APIKey != "")

	return client, nil
}

// Close cleans up client resources
func (c *Client) Close() {
	logger.Info("Closing transcription client")
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing transcription logger: %v", err)
		}
	}
}

// ValidateFile rejects uploads over the size cap or with an unsupported
// content type before any provider call is made.
func (c *Client) ValidateFile(filename, mimeType string, size int64) error {
	if size <= 0 {
		return errors.Newf("file is empty: %s", filename).
			Category(errors.CategoryValidation).
			Context("filename", filename).
			Component("transcription").
			Build()
	}
	if size > c.config.MaxFileSize {
		return errors.Newf("file exceeds maximum upload size of %d bytes", c.config.MaxFileSize).
			Category(errors.CategoryLimit).
			Context("filename", filename).
			Context("file_size", size).
			Context("max_size", c.config.MaxFileSize).
			Component("transcription").
			Build()
	}

	normalized := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if !slices.Contains(supportedMimeTypes, normalized) {
		return errors.Newf("unsupported file type: %s", mimeType).
			Category(errors.CategoryValidation).
			Context("filename", filename).
			Context("mime_type", mimeType).
			Component("transcription").
			Build()
	}
	return nil
}

// Submit sends a recording for transcription and returns the provider job ID.
// Files at or below the upload threshold are uploaded directly; larger files
// are submitted by URL, which requires a configured public base URL.
// mediaPath is the server path under which the media is publicly reachable.
func (c *Client) Submit(ctx context.Context, filePath, mediaPath string, size int64) (string, error) {
	var audioURL string

	if size <= c.config.UploadThreshold {
		uploadURL, err := c.uploadFile(ctx, filePath)
		if err != nil {
			return "", err
		}
		audioURL = uploadURL
	} else {
		if c.config.PublicBaseURL == "" {
			return "", errors.Newf("file too large for direct upload and no public base URL configured").
				Category(errors.CategoryConfiguration).
				Context("file_size", size).
				Context("upload_threshold", c.config.UploadThreshold).
				Component("transcription").
				Build()
		}
		audioURL = strings.TrimSuffix(c.config.PublicBaseURL, "/") + "/" + strings.TrimPrefix(mediaPath, "/")
		logger.Info("submitting by URL, file exceeds direct upload threshold",
			"file_size", size,
			"audio_url", audioURL)
	}

	request := transcriptRequest{
		AudioURL:     audioURL,
		WordBoost:    c.config.WordBoost,
		BoostParam:   "high",
		AutoChapters: true,
	}
	payload, err := json.Marshal(&request)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryFileParsing).
			Component("transcription").
			Build()
	}

	var transcript Transcript
	err = c.doRequestWithRetry(ctx, http.MethodPost, c.config.BaseURL+"/transcript", payload, &transcript)
	if err != nil {
		return "", err
	}

	logger.Info("transcription job submitted",
		"job_id", transcript.ID,
		"status", transcript.Status,
		"direct_upload", size <= c.config.UploadThreshold)

	return transcript.ID, nil
}

// FetchStatus returns the current provider-side state of a job.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*Transcript, error) {
	var transcript Transcript
	url := fmt.Sprintf("%s/transcript/%s", c.config.BaseURL, jobID)
	if err := c.doRequest(ctx, http.MethodGet, url, nil, &transcript); err != nil {
		return nil, err
	}
	return &transcript, nil
}

// PollUntilTerminal polls a job until it completes or errors, invoking
// onStatus for every observed status change including unrecognized values.
// Returns a timeout error when the job does not settle within the ceiling.
func (c *Client) PollUntilTerminal(ctx context.Context, jobID string, onStatus func(status string)) (*Transcript, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.config.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	lastStatus := ""
	for {
		transcript, err := c.FetchStatus(pollCtx, jobID)
		if err != nil {
			if pollCtx.Err() != nil {
				return nil, c.pollTimeoutError(jobID, lastStatus)
			}
			return nil, err
		}

		if transcript.Status != lastStatus {
			lastStatus = transcript.Status
			logger.Debug("transcription job status changed",
				"job_id", jobID,
				"status", transcript.Status)
			if onStatus != nil {
				onStatus(transcript.Status)
			}
		}

		switch transcript.Status {
		case StatusCompleted:
			logger.Info("transcription job completed",
				"job_id", jobID,
				"words", len(transcript.Words),
				"duration_sec", transcript.AudioDuration)
			return transcript, nil
		case StatusError:
			return transcript, errors.Newf("transcription failed: %s", transcript.Error).
				Category(errors.CategoryTranscription).
				Context("job_id", jobID).
				Component("transcription").
				Build()
		}

		select {
		case <-pollCtx.Done():
			return nil, c.pollTimeoutError(jobID, lastStatus)
		case <-ticker.C:
		}
	}
}

func (c *Client) pollTimeoutError(jobID, lastStatus string) error {
	return errors.Newf("transcription polling timed out after %s", c.config.PollTimeout).
		Category(errors.CategoryTimeout).
		Context("job_id", jobID).
		Context("last_status", lastStatus).
		Context("poll_timeout", c.config.PollTimeout.String()).
		Component("transcription").
		Build()
}

// CheckHealth probes provider reachability. Results are cached briefly to
// keep the health endpoint from hammering the provider.
func (c *Client) CheckHealth(ctx context.Context) bool {
	if cached, found := c.cache.Get(healthCacheKey); found {
		if healthy, ok := cached.(bool); ok {
			return healthy
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/transcript?limit=1", http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	healthy := err == nil && resp.StatusCode < 500
	if resp != nil {
		_ = resp.Body.Close()
	}

	c.cache.Set(healthCacheKey, healthy, cache.DefaultExpiration)
	if !healthy {
		logger.Warn("transcription provider health check failed", "error", err)
	}
	return healthy
}

// uploadFile streams a local file to the provider's upload endpoint.
// Retried per attempt since the file can be reopened.
func (c *Client) uploadFile(ctx context.Context, filePath string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		uploadURL, err := c.uploadFileOnce(ctx, filePath)
		if err == nil {
			return uploadURL, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == c.config.MaxRetries {
			break
		}

		delay := c.config.RetryDelay * time.Duration(1<<(attempt-1))
		logger.Warn("upload failed, retrying",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	return "", lastErr
}

func (c *Client) uploadFileOnce(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryFileIO).
			Context("file_path", filePath).
			Component("transcription").
			Build()
	}
	defer func() { _ = file.Close() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/upload", file)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryNetwork).
			Component("transcription").
			Build()
	}
	req.Header.Set("Authorization", c.config.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")
	if info, err := file.Stat(); err == nil {
		req.ContentLength = info.Size()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.networkError(err, c.config.BaseURL+"/upload")
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.networkError(err, c.config.BaseURL+"/upload")
	}

	if resp.StatusCode >= 400 {
		return "", &statusError{code: resp.StatusCode, body: string(bodyBytes)}
	}

	var upload uploadResponse
	if err := json.Unmarshal(bodyBytes, &upload); err != nil {
		return "", errors.Newf("failed to parse upload response: %w", err).
			Category(errors.CategoryFileParsing).
			Component("transcription").
			Build()
	}
	if upload.UploadURL == "" {
		return "", errors.Newf("upload response missing upload_url").
			Category(errors.CategoryTranscription).
			Component("transcription").
			Build()
	}

	return upload.UploadURL, nil
}

// doRequestWithRetry wraps doRequest with exponential backoff for transient
// failures. Only gateway errors and connection-level failures are retried,
// 4xx responses fail immediately.
func (c *Client) doRequestWithRetry(ctx context.Context, method, url string, payload []byte, result any) error {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		err := c.doRequest(ctx, method, url, payload, result)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == c.config.MaxRetries {
			break
		}

		delay := c.config.RetryDelay * time.Duration(1<<(attempt-1))
		logger.Warn("provider request failed, retrying",
			"method", method,
			"url", url,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// doRequest performs a single HTTP request with auth and JSON decoding.
func (c *Client) doRequest(ctx context.Context, method, url string, payload []byte, result any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("url", url).
			Component("transcription").
			Build()
	}
	req.Header.Set("Authorization", c.config.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.networkError(err, url)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.networkError(err, url)
	}

	if resp.StatusCode >= 400 {
		var provErr apiError
		detail := string(bodyBytes)
		if json.Unmarshal(bodyBytes, &provErr) == nil && provErr.Error != "" {
			detail = provErr.Error
		}
		logger.Warn("provider error response",
			"status_code", resp.StatusCode,
			"url", url,
			"detail", detail)
		return &statusError{code: resp.StatusCode, body: detail}
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			return errors.Newf("failed to parse provider response: %w", err).
				Category(errors.CategoryFileParsing).
				Context("url", url).
				Context("response_size", len(bodyBytes)).
				Component("transcription").
				Build()
		}
	}

	return nil
}

func (c *Client) networkError(err error, url string) error {
	return errors.Newf("provider request failed: %w", err).
		Category(errors.CategoryNetwork).
		Context("url", url).
		Component("transcription").
		Build()
}

// isRetryable reports whether a failure is transient: gateway errors
// (502, 503, 504) and connection-level failures qualify.
func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
