package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mutate ...func(*Config)) *Client {
	t.Helper()

	config := DefaultConfig()
	config.APIKey = "test-key"
	config.RetryDelay = time.Millisecond
	config.PollInterval = 5 * time.Millisecond
	config.PollTimeout = 200 * time.Millisecond
	for _, fn := range mutate {
		fn(&config)
	}

	client, err := NewClient(config)
	require.NoError(t, err)

	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	return client
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestValidateFile(t *testing.T) {
	client := newTestClient(t)

	tests := []struct {
		name     string
		mimeType string
		size     int64
		wantErr  string
	}{
		{"valid wav", "audio/wav", 1024, ""},
		{"valid mp4", "video/mp4", 1024, ""},
		{"mime with params", "audio/mpeg; charset=utf-8", 1024, ""},
		{"empty file", "audio/wav", 0, "empty"},
		{"over cap", "audio/wav", 5 * 1024 * 1024 * 1024, "maximum upload size"},
		{"unsupported type", "application/pdf", 1024, "unsupported file type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.ValidateFile("test.bin", tt.mimeType, tt.size)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSubmitDirectUpload(t *testing.T) {
	client := newTestClient(t)
	filePath := writeTestFile(t, "fake audio bytes")

	httpmock.RegisterResponder(http.MethodPost, "https://api.assemblyai.com/v2/upload",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "test-key", req.Header.Get("Authorization"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{
				"upload_url": "https://cdn.example.com/upload/abc",
			})
		})

	httpmock.RegisterResponder(http.MethodPost, "https://api.assemblyai.com/v2/transcript",
		func(req *http.Request) (*http.Response, error) {
			var body transcriptRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "https://cdn.example.com/upload/abc", body.AudioURL)
			assert.Equal(t, []string{"JBA", "J B A", "J.B.A", "J-B-A"}, body.WordBoost)
			assert.Equal(t, "high", body.BoostParam)
			assert.True(t, body.AutoChapters)
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{
				"id": "job-1", "status": "queued",
			})
		})

	jobID, err := client.Submit(context.Background(), filePath, "/api/v2/sessions/s1/media", 16)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
}

func TestSubmitByURLForLargeFiles(t *testing.T) {
	client := newTestClient(t, func(c *Config) {
		c.UploadThreshold = 10
		c.PublicBaseURL = "https://transcriptor.example.com"
	})
	filePath := writeTestFile(t, "this file is over the tiny threshold")

	httpmock.RegisterResponder(http.MethodPost, "https://api.assemblyai.com/v2/transcript",
		func(req *http.Request) (*http.Response, error) {
			var body transcriptRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "https://transcriptor.example.com/api/v2/sessions/s1/media", body.AudioURL)
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{
				"id": "job-2", "status": "queued",
			})
		})

	jobID, err := client.Submit(context.Background(), filePath, "/api/v2/sessions/s1/media", 1000)
	require.NoError(t, err)
	assert.Equal(t, "job-2", jobID)

	// No direct upload happened
	info := httpmock.GetCallCountInfo()
	assert.Zero(t, info["POST https://api.assemblyai.com/v2/upload"])
}

func TestSubmitLargeFileWithoutPublicURL(t *testing.T) {
	client := newTestClient(t, func(c *Config) {
		c.UploadThreshold = 10
	})
	filePath := writeTestFile(t, "over threshold")

	_, err := client.Submit(context.Background(), filePath, "/media", 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public base URL")
}

func TestSubmitRetriesGatewayErrors(t *testing.T) {
	client := newTestClient(t)
	filePath := writeTestFile(t, "audio")

	httpmock.RegisterResponder(http.MethodPost, "https://api.assemblyai.com/v2/upload",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]string{
			"upload_url": "https://cdn.example.com/upload/abc",
		}))

	var calls int32
	httpmock.RegisterResponder(http.MethodPost, "https://api.assemblyai.com/v2/transcript",
		func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, "upstream down"), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{
				"id": "job-3", "status": "queued",
			})
		})

	jobID, err := client.Submit(context.Background(), filePath, "/media", 5)
	require.NoError(t, err)
	assert.Equal(t, "job-3", jobID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSubmitDoesNotRetryClientErrors(t *testing.T) {
	client := newTestClient(t)
	filePath := writeTestFile(t, "audio")

	httpmock.RegisterResponder(http.MethodPost, "https://api.assemblyai.com/v2/upload",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]string{
			"upload_url": "https://cdn.example.com/upload/abc",
		}))

	var calls int32
	httpmock.RegisterResponder(http.MethodPost, "https://api.assemblyai.com/v2/transcript",
		func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return httpmock.NewJsonResponse(http.StatusUnauthorized, map[string]string{
				"error": "invalid api key",
			})
		})

	_, err := client.Submit(context.Background(), filePath, "/media", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchStatus(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://api.assemblyai.com/v2/transcript/job-1",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"id":     "job-1",
			"status": "processing",
		}))

	transcript, err := client.FetchStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "processing", transcript.Status)
}

func TestPollUntilTerminalCompletes(t *testing.T) {
	client := newTestClient(t)

	responses := []string{"queued", "processing", "completed"}
	var calls int32
	httpmock.RegisterResponder(http.MethodGet, "https://api.assemblyai.com/v2/transcript/job-1",
		func(req *http.Request) (*http.Response, error) {
			n := atomic.AddInt32(&calls, 1)
			idx := int(n) - 1
			if idx >= len(responses) {
				idx = len(responses) - 1
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"id":             "job-1",
				"status":         responses[idx],
				"text":           "hello world",
				"confidence":     0.95,
				"audio_duration": 12.5,
				"words": []map[string]any{
					{"text": "hello", "start": 0, "end": 500, "confidence": 0.96},
					{"text": "world", "start": 500, "end": 1000, "confidence": 0.94},
				},
			})
		})

	var observed []string
	transcript, err := client.PollUntilTerminal(context.Background(), "job-1", func(status string) {
		observed = append(observed, status)
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", transcript.Status)
	assert.Equal(t, "hello world", transcript.Text)
	require.Len(t, transcript.Words, 2)
	assert.Equal(t, []string{"queued", "processing", "completed"}, observed)
}

func TestPollUntilTerminalReportsJobError(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://api.assemblyai.com/v2/transcript/job-1",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"id":     "job-1",
			"status": "error",
			"error":  "audio file is unreadable",
		}))

	_, err := client.PollUntilTerminal(context.Background(), "job-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio file is unreadable")
}

func TestPollUntilTerminalPassesThroughUnknownStatus(t *testing.T) {
	client := newTestClient(t, func(c *Config) {
		c.PollTimeout = 40 * time.Millisecond
	})

	httpmock.RegisterResponder(http.MethodGet, "https://api.assemblyai.com/v2/transcript/job-1",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"id":     "job-1",
			"status": "transcoding",
		}))

	var observed []string
	_, err := client.PollUntilTerminal(context.Background(), "job-1", func(status string) {
		observed = append(observed, status)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	// Unknown status is surfaced verbatim rather than rejected
	assert.Contains(t, observed, "transcoding")
}

func TestCheckHealthCachesResult(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "https://api.assemblyai.com/v2/transcript",
		httpmock.NewStringResponder(http.StatusOK, `{"transcripts":[]}`))

	assert.True(t, client.CheckHealth(context.Background()))
	assert.True(t, client.CheckHealth(context.Background()))

	info := httpmock.GetCallCountInfo()
	total := 0
	for _, n := range info {
		total += n
	}
	assert.Equal(t, 1, total)
}

func TestSupportedFormats(t *testing.T) {
	formats := SupportedFormats()
	assert.Contains(t, formats, "audio/wav")
	assert.Contains(t, formats, "video/mp4")
}
